package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-service/internal/model"
)

func mkMemory(id string, from time.Time, until *time.Time, current bool) model.Memory {
	return model.Memory{
		ID:                 id,
		TemporalValidFrom:  from,
		TemporalValidUntil: until,
		TemporalIsCurrent:  current,
	}
}

func TestGetTimelineResolvesToFromNextEntry(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	memories := []model.Memory{
		mkMemory("b", base.AddDate(0, 6, 0), nil, true),
		mkMemory("a", base, nil, false),
	}
	timeline := GetTimeline(memories)
	require.Len(t, timeline, 2)
	require.Equal(t, "a", timeline[0].Memory.ID)
	require.False(t, timeline[0].ToPresent)
	require.Equal(t, base.AddDate(0, 6, 0), timeline[0].To)
	require.True(t, timeline[1].ToPresent)
}

func TestGetTimelineHonorsExplicitValidUntil(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := base.AddDate(0, 3, 0)
	memories := []model.Memory{mkMemory("a", base, &until, false)}
	timeline := GetTimeline(memories)
	require.Equal(t, until, timeline[0].To)
	require.False(t, timeline[0].ToPresent)
}

func TestQueryAtTimeScansNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	memories := []model.Memory{
		mkMemory("old", base, nil, false),
		mkMemory("new", base.AddDate(0, 6, 0), nil, true),
	}
	result := QueryAtTime(memories, base.AddDate(0, 8, 0))
	require.NotNil(t, result)
	require.Equal(t, "new", result.Memory.ID)

	result = QueryAtTime(memories, base.AddDate(0, 2, 0))
	require.NotNil(t, result)
	require.Equal(t, "old", result.Memory.ID)
}

func TestIsValidAtRespectsBounds(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := base.AddDate(0, 1, 0)
	mem := mkMemory("a", base, &until, true)
	require.False(t, IsValidAt(mem, base.AddDate(0, -1, 0)))
	require.True(t, IsValidAt(mem, base.AddDate(0, 0, 15)))
	require.False(t, IsValidAt(mem, base.AddDate(0, 2, 0)))
}

func TestGetCurrentValueRequiresLastEntryCurrent(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	timeline := GetTimeline([]model.Memory{mkMemory("a", base, nil, false)})
	require.Nil(t, GetCurrentValue(timeline))

	timeline = GetTimeline([]model.Memory{mkMemory("a", base, nil, true)})
	require.NotNil(t, GetCurrentValue(timeline))
}

func TestSupersedeTwoWriteOrdering(t *testing.T) {
	predecessor := mkMemory("old", time.Now(), nil, true)
	newRecord := mkMemory("new", time.Now(), nil, true)

	var calledWith string
	result := Supersede(newRecord, predecessor, func(predecessorID, newID string) error {
		calledWith = predecessorID + "->" + newID
		return nil
	}, 3, time.Millisecond, nil)

	require.Equal(t, "old->new", calledWith)
	require.Equal(t, "old", result.New.Supersedes)
	require.False(t, result.Updated.TemporalIsCurrent)
	require.Equal(t, "new", result.Updated.SupersededBy)
	require.False(t, result.ClearedNew)
}

func TestSupersedeClearsNewRecordAfterExhaustingRetries(t *testing.T) {
	predecessor := mkMemory("old", time.Now(), nil, true)
	newRecord := mkMemory("new", time.Now(), nil, true)

	var sleeps int
	result := Supersede(newRecord, predecessor, func(string, string) error {
		return errors.New("store unavailable")
	}, 3, time.Millisecond, func(time.Duration) { sleeps++ })

	require.True(t, result.ClearedNew)
	require.False(t, result.New.TemporalIsCurrent)
	require.Equal(t, 3, result.Retries)
	require.Equal(t, 2, sleeps)
}
