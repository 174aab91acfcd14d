// Package retrieval fuses keyword and vector candidate lists.
package retrieval

import (
	"sort"
	"time"
)

// DefaultK is the RRF rank damping constant.
const DefaultK = 60

// Candidate is one entry of a ranked list. Position in the list is its rank.
type Candidate struct {
	ID        string
	CreatedAt time.Time
}

// Fused is a candidate after reciprocal rank fusion. Ranks holds the 1-based
// rank in each input list, 0 where the candidate was absent.
type Fused struct {
	ID        string
	Score     float64
	CreatedAt time.Time
	Ranks     []int
}

// FuseRRF combines ranked lists with reciprocal rank fusion:
// score = Σ 1/(k + rank). Output is ordered by score desc, then created_at
// desc, then id asc, so equal inputs always give equal output. A repeated id
// within one list counts at its best rank only.
func FuseRRF(k int, lists ...[]Candidate) []Fused {
	if k <= 0 {
		k = DefaultK
	}
	byID := make(map[string]*Fused)
	var order []string
	for li, list := range lists {
		for i, c := range list {
			f, ok := byID[c.ID]
			if !ok {
				f = &Fused{ID: c.ID, CreatedAt: c.CreatedAt, Ranks: make([]int, len(lists))}
				byID[c.ID] = f
				order = append(order, c.ID)
			}
			if f.Ranks[li] != 0 {
				continue
			}
			rank := i + 1
			f.Ranks[li] = rank
			f.Score += 1.0 / float64(k+rank)
			if c.CreatedAt.After(f.CreatedAt) {
				f.CreatedAt = c.CreatedAt
			}
		}
	}

	out := make([]Fused, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
