// Package scoring implements the composite relevance scoring engine: pure,
// deterministic functions with no I/O, so the formula is independently
// testable and explainable.
//
// final_score = vector_similarity × sector_boost × time_boost × access_boost
package scoring

import (
	"strings"
	"time"

	"github.com/chirino/memory-service/internal/model"
)

const (
	recentDays   = 7
	recentBoost  = 1.2
	monthDays    = 30
	monthBoost   = 1.1
	oldDays      = 365
	oldPenalty   = 0.8
	neutralBoost = 1.0

	primaryMatchBoost   = 1.2
	secondaryMatchBoost = 1.1
	mismatchPenalty     = 0.8

	maxAccessBoost = 1.2
	accessDecay    = 0.02
)

// Breakdown is the per-factor detail behind a composite score.
type Breakdown struct {
	VectorSimilarity float64
	SectorBoost      float64
	TimeBoost        float64
	AccessBoost      float64
	FinalScore       float64
}

// SectorBoost returns the sector-match multiplier. An empty querySectors
// means no sector filter was requested, so the boost is neutral.
func SectorBoost(primary model.Sector, secondary []model.Sector, querySectors []model.Sector) float64 {
	if len(querySectors) == 0 {
		return neutralBoost
	}
	for _, q := range querySectors {
		if q == primary {
			return primaryMatchBoost
		}
	}
	for _, s := range secondary {
		for _, q := range querySectors {
			if s == q {
				return secondaryMatchBoost
			}
		}
	}
	return mismatchPenalty
}

// TimeBoost returns the recency multiplier for a memory created at
// createdAt, evaluated relative to now.
func TimeBoost(createdAt, now time.Time) float64 {
	daysOld := int(now.Sub(createdAt).Hours() / 24)
	switch {
	case daysOld < recentDays:
		return recentBoost
	case daysOld < monthDays:
		return monthBoost
	case daysOld > oldDays:
		return oldPenalty
	default:
		return neutralBoost
	}
}

// AccessBoost returns the access-frequency multiplier, capped at
// maxAccessBoost.
func AccessBoost(accessCount int) float64 {
	boost := neutralBoost + float64(accessCount)*accessDecay
	if boost > maxAccessBoost {
		return maxAccessBoost
	}
	return boost
}

// Score computes the full composite score and its breakdown.
func Score(vectorSimilarity float64, primary model.Sector, secondary []model.Sector, querySectors []model.Sector, createdAt, now time.Time, accessCount int) Breakdown {
	sb := SectorBoost(primary, secondary, querySectors)
	tb := TimeBoost(createdAt, now)
	ab := AccessBoost(accessCount)
	return Breakdown{
		VectorSimilarity: vectorSimilarity,
		SectorBoost:      sb,
		TimeBoost:        tb,
		AccessBoost:      ab,
		FinalScore:       vectorSimilarity * sb * tb * ab,
	}
}

// Explain generates a short human-readable explanation of a Breakdown's
// factors, matching the original implementation's threshold buckets.
func Explain(b Breakdown) string {
	var parts []string

	switch {
	case b.VectorSimilarity > 0.8:
		parts = append(parts, "high semantic similarity")
	case b.VectorSimilarity > 0.5:
		parts = append(parts, "moderate semantic match")
	default:
		parts = append(parts, "weak semantic match")
	}

	switch {
	case b.SectorBoost > 1.1:
		parts = append(parts, "matches requested cognitive sector")
	case b.SectorBoost < 1.0:
		parts = append(parts, "sector mismatch")
	}

	switch {
	case b.TimeBoost > 1.1:
		parts = append(parts, "recently created")
	case b.TimeBoost < 1.0:
		parts = append(parts, "older memory")
	}

	if b.AccessBoost > 1.1 {
		parts = append(parts, "frequently accessed")
	}

	if len(parts) == 0 {
		return "standard relevance"
	}
	return strings.Join(parts, "; ")
}
