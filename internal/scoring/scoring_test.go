package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chirino/memory-service/internal/model"
)

func TestSectorBoostNoFilter(t *testing.T) {
	require.Equal(t, 1.0, SectorBoost(model.SectorSemantic, nil, nil))
}

func TestSectorBoostPrimaryMatch(t *testing.T) {
	got := SectorBoost(model.SectorSemantic, nil, []model.Sector{model.SectorSemantic})
	require.Equal(t, 1.2, got)
}

func TestSectorBoostSecondaryMatch(t *testing.T) {
	got := SectorBoost(model.SectorEpisodic, []model.Sector{model.SectorSemantic}, []model.Sector{model.SectorSemantic})
	require.Equal(t, 1.1, got)
}

func TestSectorBoostMismatch(t *testing.T) {
	got := SectorBoost(model.SectorEpisodic, nil, []model.Sector{model.SectorSemantic})
	require.Equal(t, 0.8, got)
}

func TestTimeBoostBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, 1.2, TimeBoost(now.Add(-3*24*time.Hour), now))
	require.Equal(t, 1.1, TimeBoost(now.Add(-20*24*time.Hour), now))
	require.Equal(t, 1.0, TimeBoost(now.Add(-100*24*time.Hour), now))
	require.Equal(t, 0.8, TimeBoost(now.Add(-400*24*time.Hour), now))
}

func TestAccessBoostCapsAtMax(t *testing.T) {
	require.Equal(t, 1.0, AccessBoost(0))
	require.InDelta(t, 1.1, AccessBoost(5), 0.0001)
	require.Equal(t, 1.2, AccessBoost(100))
}

func TestScenarioCompositeScore(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	createdAt := now.Add(-3 * 24 * time.Hour)
	b := Score(0.70, model.SectorSemantic, nil, nil, createdAt, now, 0)
	require.InDelta(t, 0.840, b.FinalScore, 0.0001)
}

func TestExplainModerateMatchWithNeutralBoosts(t *testing.T) {
	b := Breakdown{VectorSimilarity: 0.6, SectorBoost: 1.0, TimeBoost: 1.0, AccessBoost: 1.0}
	require.Equal(t, "moderate semantic match", Explain(b))
}

func TestExplainAllFactors(t *testing.T) {
	b := Breakdown{VectorSimilarity: 0.9, SectorBoost: 1.2, TimeBoost: 1.2, AccessBoost: 1.2}
	require.Equal(t, "high semantic similarity; matches requested cognitive sector; recently created; frequently accessed", Explain(b))
}
