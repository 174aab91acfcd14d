// Package scoring orders context candidates by a weighted blend of fused
// rank, recency, importance, and memory strength.
package scoring

import (
	"math"
	"time"

	"github.com/rcliao/working-memory/internal/config"
)

// Features are the inputs to a candidate's score. Each is expected in [0,1]
// except CreatedAt.
type Features struct {
	RankNorm   float64
	Importance float64
	Strength   float64
	CreatedAt  time.Time
}

// Scorer computes relevance weights.
type Scorer struct {
	weights  config.Weights
	halfLife time.Duration
	now      time.Time
}

// New creates a scorer that measures age against now.
func New(weights config.Weights, halfLife time.Duration, now time.Time) *Scorer {
	if halfLife <= 0 {
		halfLife = 72 * time.Hour
	}
	return &Scorer{weights: weights, halfLife: halfLife, now: now}
}

// Score returns
// w_rank*rank + w_recency*recency + w_importance*importance + w_strength*strength.
func (s *Scorer) Score(f Features) float64 {
	return s.weights.Rank*clamp(f.RankNorm) +
		s.weights.Recency*Recency(s.now.Sub(f.CreatedAt), s.halfLife) +
		s.weights.Importance*clamp(f.Importance) +
		s.weights.Strength*clamp(f.Strength)
}

// Recency is exponential decay with the given half-life. Future timestamps
// count as age zero.
func Recency(age, halfLife time.Duration) float64 {
	if age <= 0 {
		return 1
	}
	return math.Exp(-math.Ln2 * age.Hours() / halfLife.Hours())
}

// Normalize divides each score by the maximum, so the best candidate gets 1.
func Normalize(scores []float64) []float64 {
	out := make([]float64, len(scores))
	var top float64
	for _, s := range scores {
		top = max(top, s)
	}
	if top == 0 {
		return out
	}
	for i, s := range scores {
		out[i] = s / top
	}
	return out
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
