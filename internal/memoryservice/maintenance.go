package memoryservice

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/chirino/memory-service/internal/memoryerr"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/scoring"
	"github.com/chirino/memory-service/internal/vectorstore"
)

// CleanupRequest is the input to Cleanup.
type CleanupRequest struct {
	Days   int
	DryRun bool
}

// CleanupSampleItem is one record of the sample returned alongside a
// Cleanup result.
type CleanupSampleItem struct {
	ID             string
	UserID         string
	Score          float64
	ContentPreview string
}

// CleanupResult is the outcome of a Cleanup run.
type CleanupResult struct {
	DryRun         bool
	DaysThreshold  int
	ScoreThreshold float64
	TotalFound     int
	DeletedCount   int
	Message        string
	Sample         []CleanupSampleItem
}

const cleanupSampleLimit = 5

// Cleanup finds memories older than Days with a score below the configured
// threshold, excluding anything flagged is_pinned or is_important in
// extra_metadata, and deletes them unless DryRun is set.
func (s *Service) Cleanup(ctx context.Context, req CleanupRequest) (CleanupResult, error) {
	days := req.Days
	if days <= 0 {
		days = 365
	}
	threshold := s.cfg.CleanupScoreThreshold
	cutoff := s.now().AddDate(0, 0, -days)

	var toClean []model.Memory
	cursor := ""
	for {
		page, err := s.store.Scroll(ctx, vectorstore.Filter{}, s.cfg.CleanupBatchSize, cursor)
		if err != nil {
			return CleanupResult{}, &memoryerr.StorageUnavailableError{Op: "cleanup", Err: err}
		}
		for _, p := range page.Points {
			mem := fromPayload(p.ID, p.Payload)
			if !mem.CreatedAt.Before(cutoff) {
				continue
			}
			if mem.Score >= threshold {
				continue
			}
			if isPinnedOrImportant(mem.ExtraMetadata) {
				continue
			}
			toClean = append(toClean, mem)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	sample := make([]CleanupSampleItem, 0, cleanupSampleLimit)
	for i, mem := range toClean {
		if i >= s.cfg.CleanupSampleSize {
			break
		}
		sample = append(sample, CleanupSampleItem{
			ID:             mem.ID,
			UserID:         mem.UserID,
			Score:          mem.Score,
			ContentPreview: truncate(mem.ContentPlaintext, 50),
		})
	}

	deleted := 0
	if !req.DryRun && len(toClean) > 0 {
		for i := 0; i < len(toClean); i += s.cfg.CleanupBatchSize {
			end := i + s.cfg.CleanupBatchSize
			if end > len(toClean) {
				end = len(toClean)
			}
			ids := make([]string, 0, end-i)
			for _, mem := range toClean[i:end] {
				ids = append(ids, mem.ID)
			}
			if err := s.store.Delete(ctx, ids); err != nil {
				return CleanupResult{}, &memoryerr.StorageUnavailableError{Op: "cleanup_delete", Err: err}
			}
			deleted += len(ids)
			log.Info("deleted memory batch during cleanup", "count", len(ids))
		}
	}

	msg := fmt.Sprintf("found %d old memories to clean up", len(toClean))
	if !req.DryRun {
		msg += fmt.Sprintf(", deleted %d", deleted)
	} else {
		msg += " (dry run, no deletions)"
	}

	return CleanupResult{
		DryRun:         req.DryRun,
		DaysThreshold:  days,
		ScoreThreshold: threshold,
		TotalFound:     len(toClean),
		DeletedCount:   deleted,
		Message:        msg,
		Sample:         sample,
	}, nil
}

func isPinnedOrImportant(extra map[string]any) bool {
	if extra == nil {
		return false
	}
	if v, ok := extra["is_pinned"].(bool); ok && v {
		return true
	}
	if v, ok := extra["is_important"].(bool); ok && v {
		return true
	}
	return false
}

// RecalculateResult is the outcome of a RecalculateScores run.
type RecalculateResult struct {
	TotalProcessed int
	UpdatedCount   int
	UnchangedCount int
	Errors         []string
}

const scoreChangeThreshold = 0.01
const maxRecalculateErrors = 10

// RecalculateScores recomputes every memory's stored score from its current
// sector confidence, age and access count, persisting only the scores that
// moved by more than the change threshold.
func (s *Service) RecalculateScores(ctx context.Context, batchSize int) (RecalculateResult, error) {
	if batchSize <= 0 {
		batchSize = s.cfg.CleanupBatchSize
	}
	now := s.now()

	var result RecalculateResult
	cursor := ""
	for {
		page, err := s.store.Scroll(ctx, vectorstore.Filter{}, batchSize, cursor)
		if err != nil {
			return RecalculateResult{}, &memoryerr.StorageUnavailableError{Op: "recalculate_scores", Err: err}
		}
		if len(page.Points) == 0 {
			break
		}
		for _, p := range page.Points {
			mem := fromPayload(p.ID, p.Payload)
			if mem.CreatedAt.IsZero() {
				continue
			}

			breakdown := scoring.Score(mem.SectorConfidence, mem.SectorPrimary, mem.SectorSecondary, nil, mem.CreatedAt, now, mem.AccessCount)
			newScore := breakdown.FinalScore
			if newScore > 1 {
				newScore = 1
			}

			diff := newScore - mem.Score
			if diff < 0 {
				diff = -diff
			}
			if diff > scoreChangeThreshold {
				patch := map[string]any{
					"score":            newScore,
					"score_updated_at": timeString(now),
				}
				if err := s.store.SetPayload(ctx, mem.ID, patch); err != nil {
					if len(result.Errors) < maxRecalculateErrors {
						result.Errors = append(result.Errors, fmt.Sprintf("memory %s: %v", mem.ID, err))
					}
					continue
				}
				result.UpdatedCount++
			} else {
				result.UnchangedCount++
			}
			result.TotalProcessed++
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	return result, nil
}
