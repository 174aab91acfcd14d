// Package packer selects scored items into ordered sections under a hard
// token budget.
package packer

import (
	"errors"
	"sort"

	"github.com/rcliao/working-memory/internal/model"
)

// ErrInvalidBudget is returned for a non-positive budget.
var ErrInvalidBudget = errors.New("packer: budget must be positive")

// Pack fills sections in model.SectionOrder. Within a section, candidates
// are taken by score desc, created_at desc, id asc; the section closes at
// the first candidate that does not fit the remaining budget, and packing
// moves on to the next section. An item id already admitted by an earlier
// section is skipped. Items are never truncated.
//
// The returned sections always sum to at most budget.
func Pack(budget int, candidates map[model.SectionName][]model.Item) ([]model.Section, int, error) {
	if budget <= 0 {
		return nil, 0, ErrInvalidBudget
	}

	remaining := budget
	seen := make(map[string]bool)
	sections := make([]model.Section, 0, len(model.SectionOrder))

	for _, name := range model.SectionOrder {
		sec := model.Section{Name: name, Items: []model.Item{}}
		for _, it := range sorted(candidates[name]) {
			if seen[it.ID] {
				continue
			}
			cost := max(it.TokenEst, 0)
			if cost > remaining {
				break
			}
			remaining -= cost
			sec.TokenEst += cost
			seen[it.ID] = true
			sec.Items = append(sec.Items, it)
		}
		sections = append(sections, sec)
	}
	return sections, budget - remaining, nil
}

func sorted(items []model.Item) []model.Item {
	out := make([]model.Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
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
