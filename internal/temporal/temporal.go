// Package temporal implements the Temporal Knowledge Graph: validity
// intervals over memories, supersession, timeline reconstruction, and
// point-in-time queries. It operates over memories the Memory Service has
// already fetched — it never touches the vector store directly, matching
// the original implementation's TemporalKnowledgeGraph, which holds only a
// reference to the memory service.
package temporal

import (
	"sort"
	"time"

	"github.com/chirino/memory-service/internal/model"
)

// TimelineEntry is one reconstructed period in an entity's evolution.
type TimelineEntry struct {
	Memory    model.Memory
	From      time.Time
	To        time.Time
	ToPresent bool
	IsCurrent bool
}

// GetTimeline reconstructs the chronological timeline of memories sorted by
// TemporalValidFrom. period.to resolution follows the original
// implementation's precedence: explicit valid_until, else the next entry's
// valid_from, else "present".
func GetTimeline(memories []model.Memory) []TimelineEntry {
	sorted := make([]model.Memory, len(memories))
	copy(sorted, memories)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].TemporalValidFrom.Before(sorted[j].TemporalValidFrom)
	})

	timeline := make([]TimelineEntry, 0, len(sorted))
	for i, mem := range sorted {
		entry := TimelineEntry{
			Memory:    mem,
			From:      mem.TemporalValidFrom,
			IsCurrent: mem.TemporalIsCurrent,
		}
		switch {
		case mem.TemporalValidUntil != nil:
			entry.To = *mem.TemporalValidUntil
		case i < len(sorted)-1:
			entry.To = sorted[i+1].TemporalValidFrom
		default:
			entry.ToPresent = true
		}
		timeline = append(timeline, entry)
	}
	return timeline
}

// QueryAtTime returns the timeline entry valid at instant ts, scanning
// newest-first and returning the first period that contains ts.
func QueryAtTime(memories []model.Memory, ts time.Time) *TimelineEntry {
	timeline := GetTimeline(memories)
	for i := len(timeline) - 1; i >= 0; i-- {
		e := timeline[i]
		if e.From.After(ts) {
			continue
		}
		if e.ToPresent || !e.To.Before(ts) {
			return &timeline[i]
		}
	}
	return nil
}

// IsValidAt reports whether mem was valid at instant ts.
func IsValidAt(mem model.Memory, ts time.Time) bool {
	if mem.TemporalValidFrom.After(ts) {
		return false
	}
	if mem.TemporalValidUntil != nil && mem.TemporalValidUntil.Before(ts) {
		return false
	}
	return true
}

// GetCurrentValue returns the most recent timeline entry if it is marked
// current, matching the original's "last entry, if is_current" semantics.
func GetCurrentValue(timeline []TimelineEntry) *TimelineEntry {
	if len(timeline) == 0 {
		return nil
	}
	last := timeline[len(timeline)-1]
	if !last.IsCurrent {
		return nil
	}
	return &last
}

// SupersedeResult describes the two writes Supersede performs.
type SupersedeResult struct {
	New        model.Memory
	Updated    model.Memory
	Retries    int
	ClearedNew bool
}

// PredecessorUpdater persists the predecessor's superseded_by/is_current
// flip. Supersede calls it after the new record is written; Memory Service
// supplies the vector-store-backed implementation.
type PredecessorUpdater func(predecessorID, newID string) error

// Supersede implements the two-write ordering: write the new record first
// (done by the caller before invoking Supersede), then flip the
// predecessor's temporal_is_current off and set its superseded_by. If the
// predecessor update fails on all maxAttempts attempts, the new record's
// temporal_is_current is cleared instead of leaving two current rows for
// the same entity.
func Supersede(newRecord model.Memory, predecessor model.Memory, update PredecessorUpdater, maxAttempts int, baseDelay time.Duration, sleep func(time.Duration)) SupersedeResult {
	newRecord.Supersedes = predecessor.ID
	predecessor.SupersededBy = newRecord.ID
	predecessor.TemporalIsCurrent = false

	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		if err := update(predecessor.ID, newRecord.ID); err == nil {
			return SupersedeResult{New: newRecord, Updated: predecessor, Retries: attempts - 1}
		} else {
			lastErr = err
		}
		if attempts < maxAttempts && sleep != nil {
			sleep(baseDelay)
		}
	}
	_ = lastErr

	newRecord.TemporalIsCurrent = false
	return SupersedeResult{New: newRecord, Retries: attempts, ClearedNew: true}
}
