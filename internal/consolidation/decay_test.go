package consolidation

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialDecay(t *testing.T) {
	fn := ExponentialDecay(0.5)
	assert.InDelta(t, 0.5, fn(1, 24*time.Hour), 1e-9)
	assert.InDelta(t, 0.25, fn(1, 48*time.Hour), 1e-9)
	assert.Equal(t, 0.8, fn(0.8, 0))
	assert.Equal(t, 1.0, fn(1.7, time.Hour), "values are clamped")
	assert.Equal(t, 0.0, fn(math.NaN(), time.Hour))
}

func TestReinforce(t *testing.T) {
	assert.Equal(t, 0.3, Reinforce(0.3, 0.25, 0))
	assert.InDelta(t, 0.475, Reinforce(0.3, 0.25, 1), 1e-12)
	assert.InDelta(t, 1-0.7*math.Pow(0.75, 5), InitialConfidence(0.3, 0.25, 6), 1e-12)
	assert.Equal(t, 0.3, InitialConfidence(0.3, 0.25, 0))
	assert.LessOrEqual(t, Reinforce(0.99, 1, 100), 1.0)
}

func TestStrengthStaysInUnitInterval(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	decay := ExponentialDecay(0.95)
	v := 1.0
	for i := 0; i < 10000; i++ {
		if r.Intn(2) == 0 {
			v = decay(v, time.Duration(r.Intn(1000))*time.Hour)
		} else {
			v = Reinforce(v, r.Float64(), r.Intn(4))
		}
		if v < 0 || v > 1 {
			t.Fatalf("step %d: value %f left [0,1]", i, v)
		}
	}
}
