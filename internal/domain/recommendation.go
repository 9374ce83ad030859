package domain

import (
	"math"
	"slices"
	"strings"
)

// Recommendation is an advisory, non-binding suggestion of engineer-to-task
// fit. It is ephemeral and carries no reservation: availability must be
// re-validated at acceptance time, not at recommendation time.
type Recommendation struct {
	EngineerID string
	Score      float64
}

// NormalizeRecommendations enforces the ordering and cap contract on output
// from the scoring oracle. The gateway is untrusted: entries are de-duped
// (highest score wins), scores are clamped into [0,1], ordering is
// descending by score with ties broken by engineer id ascending, and the
// result is truncated to limit. An empty result is a valid outcome.
func NormalizeRecommendations(recs []Recommendation, limit int) []Recommendation {
	if limit <= 0 {
		return []Recommendation{}
	}

	best := make(map[string]float64, len(recs))
	for _, rec := range recs {
		id := strings.TrimSpace(rec.EngineerID)
		if id == "" {
			continue
		}
		score := rec.Score
		if math.IsNaN(score) {
			continue
		}
		score = math.Min(1, math.Max(0, score))
		if existing, ok := best[id]; !ok || score > existing {
			best[id] = score
		}
	}

	out := make([]Recommendation, 0, len(best))
	for id, score := range best {
		out = append(out, Recommendation{EngineerID: id, Score: score})
	}
	slices.SortFunc(out, func(a, b Recommendation) int {
		if a.Score == b.Score {
			return strings.Compare(a.EngineerID, b.EngineerID)
		}
		if a.Score > b.Score {
			return -1
		}
		return 1
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
