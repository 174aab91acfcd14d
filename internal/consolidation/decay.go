package consolidation

import (
	"math"
	"time"

	"github.com/rcliao/working-memory/internal/store"
)

// ExponentialDecay returns a StrengthFunc computing v * base^days, clamped
// to [0,1].
func ExponentialDecay(base float64) store.StrengthFunc {
	return func(v float64, elapsed time.Duration) float64 {
		days := elapsed.Hours() / 24
		if days <= 0 {
			return clamp01(v)
		}
		return clamp01(v * math.Pow(base, days))
	}
}

// Reinforce applies n further observations to confidence c:
// each one moves c a fraction rate of the way toward 1.
func Reinforce(c, rate float64, n int) float64 {
	c = clamp01(c)
	for i := 0; i < n; i++ {
		c += (1 - c) * rate
	}
	return clamp01(c)
}

// InitialConfidence is the confidence of a principle first seen in n
// episodes.
func InitialConfidence(initial, rate float64, n int) float64 {
	return Reinforce(initial, rate, max(n-1, 0))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
