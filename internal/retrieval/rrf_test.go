package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func list(ids ...string) []Candidate {
	out := make([]Candidate, len(ids))
	for i, id := range ids {
		out[i] = Candidate{ID: id}
	}
	return out
}

func ids(fused []Fused) []string {
	out := make([]string, len(fused))
	for i, f := range fused {
		out[i] = f.ID
	}
	return out
}

func TestFuseRRFSharedCandidatesWin(t *testing.T) {
	fused := FuseRRF(60, list("A", "B", "C"), list("B", "A", "D"))
	require.Len(t, fused, 4)

	score := map[string]float64{}
	for _, f := range fused {
		score[f.ID] = f.Score
	}
	for _, top := range []string{"A", "B"} {
		for _, low := range []string{"C", "D"} {
			assert.Greater(t, score[top], score[low], "%s should outrank %s", top, low)
		}
	}
	assert.InDelta(t, 1.0/61+1.0/62, score["A"], 1e-12)
	assert.Equal(t, []int{1, 2}, fused[0].Ranks[:])
}

func TestFuseRRFDeterministic(t *testing.T) {
	a := list("A", "B", "C")
	b := list("B", "A", "D")
	first := FuseRRF(60, a, b)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, FuseRRF(60, a, b))
	}
}

func TestFuseRRFTieBreaks(t *testing.T) {
	now := time.Now()
	// X and Y have identical scores; Y is newer.
	fused := FuseRRF(60,
		[]Candidate{{ID: "X", CreatedAt: now.Add(-time.Hour)}},
		[]Candidate{{ID: "Y", CreatedAt: now}},
	)
	assert.Equal(t, []string{"Y", "X"}, ids(fused))

	// equal score and time fall back to id order
	fused = FuseRRF(60, []Candidate{{ID: "b", CreatedAt: now}}, []Candidate{{ID: "a", CreatedAt: now}})
	assert.Equal(t, []string{"a", "b"}, ids(fused))
}

func TestFuseRRFEdgeCases(t *testing.T) {
	assert.Empty(t, FuseRRF(60))
	assert.Empty(t, FuseRRF(60, nil, nil))

	// one list passes through in order
	assert.Equal(t, []string{"C", "A", "B"}, ids(FuseRRF(60, list("C", "A", "B"))))

	// duplicates inside a list count once at their best rank
	fused := FuseRRF(60, list("A", "A", "B"))
	assert.InDelta(t, 1.0/61, fused[0].Score, 1e-12)

	// non-positive k falls back to the default
	assert.Equal(t, FuseRRF(DefaultK, list("A")), FuseRRF(0, list("A")))
}
