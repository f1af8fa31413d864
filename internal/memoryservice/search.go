package memoryservice

import (
	"context"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/chirino/memory-service/internal/memoryerr"
	"github.com/chirino/memory-service/internal/model"
	"github.com/chirino/memory-service/internal/scoring"
	"github.com/chirino/memory-service/internal/vectorstore"
)

// SearchRequest is the input to Search.
type SearchRequest struct {
	Query           string
	UserID          string
	ProjectID       string
	Sectors         []model.Sector
	MemoryTypes     []string
	OnlyCurrent     bool
	Limit           int
	WithExplanation bool
}

// SearchResultItem is one scored, decrypted search hit.
type SearchResultItem struct {
	Memory      model.Memory
	Score       float64
	Breakdown   *scoring.Breakdown
	Explanation string
}

// SearchResponse is the full result of a Search call.
type SearchResponse struct {
	Query      string
	TotalFound int
	Results    []SearchResultItem
}

// Search finds memories for a query, applying the composite scoring engine
// (vector similarity × sector boost × time boost × access boost) over the
// raw vector-store hits.
func (s *Service) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	if req.Limit <= 0 {
		req.Limit = 10
	}
	queryVec := toFloat32(s.embedder.Embed(ctx, req.Query))

	filter := vectorstore.Filter{
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		OnlyCurrent: req.OnlyCurrent,
		MemoryTypes: req.MemoryTypes,
	}

	raw, err := s.store.Search(ctx, queryVec, filter, req.Limit*2)
	if err != nil {
		return SearchResponse{}, &memoryerr.StorageUnavailableError{Op: "search", Err: err}
	}

	now := s.now()
	items := make([]SearchResultItem, 0, len(raw))
	for _, r := range raw {
		mem := fromPayload(r.ID, r.Payload)
		if len(req.MemoryTypes) > 0 && !overlaps(mem.MemoryTypes, req.MemoryTypes) {
			continue
		}

		breakdown := scoring.Score(r.Score, mem.SectorPrimary, mem.SectorSecondary, req.Sectors, mem.CreatedAt, now, mem.AccessCount)

		if content, err := s.decryptContent(ctx, mem); err != nil {
			log.Warn("memory decryption failed", "err", err, "id", mem.ID)
			mem.ContentPlaintext = "[Encrypted content - decryption failed]"
		} else {
			mem.ContentPlaintext = content
		}

		item := SearchResultItem{Memory: mem, Score: breakdown.FinalScore}
		if req.WithExplanation {
			bd := breakdown
			item.Breakdown = &bd
			item.Explanation = scoring.Explain(breakdown)
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if len(items) > req.Limit {
		items = items[:req.Limit]
	}

	return SearchResponse{Query: req.Query, TotalFound: len(items), Results: items}, nil
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
