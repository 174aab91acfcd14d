package packer

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/working-memory/internal/model"
)

func item(id string, tokens int, score float64) model.Item {
	return model.Item{ID: id, TokenEst: tokens, Score: score, Type: model.ItemChunk}
}

func itemIDs(sec model.Section) []string {
	out := make([]string, len(sec.Items))
	for i, it := range sec.Items {
		out[i] = it.ID
	}
	return out
}

func TestPackSectionOrderAndGreedy(t *testing.T) {
	sections, used, err := Pack(30, map[model.SectionName][]model.Item{
		model.SectionEvidence:  {item("e1", 10, 0.9), item("e2", 11, 0.5), item("e3", 1, 0.1)},
		model.SectionRules:     {item("r1", 5, 1)},
		model.SectionRecent:    {item("n1", 5, 0)},
		model.SectionDecisions: {item("d1", 1, 1)},
	})
	require.NoError(t, err)
	require.Len(t, sections, 4)
	for i, name := range model.SectionOrder {
		assert.Equal(t, name, sections[i].Name)
	}

	assert.Equal(t, []string{"r1"}, itemIDs(sections[0]))
	assert.Equal(t, []string{"n1"}, itemIDs(sections[1]))
	// e2 no longer fits, so the section stops before the cheaper e3
	assert.Equal(t, []string{"e1"}, itemIDs(sections[2]))
	assert.Equal(t, []string{"d1"}, itemIDs(sections[3]))
	assert.Equal(t, 21, used)
}

func TestPackNothingFits(t *testing.T) {
	sections, used, err := Pack(1, map[model.SectionName][]model.Item{
		model.SectionRecent:   {item("a", 3, 0), item("b", 2, 0)},
		model.SectionEvidence: {item("c", 5, 1)},
	})
	require.NoError(t, err)
	assert.Zero(t, used)
	for _, s := range sections {
		assert.Empty(t, s.Items, s.Name)
		assert.Zero(t, s.TokenEst)
	}
}

func TestPackInvalidBudget(t *testing.T) {
	for _, b := range []int{0, -5} {
		_, _, err := Pack(b, nil)
		assert.ErrorIs(t, err, ErrInvalidBudget)
	}
}

func TestPackDeduplicatesAcrossSections(t *testing.T) {
	sections, used, err := Pack(100, map[model.SectionName][]model.Item{
		model.SectionRecent:   {item("x", 4, 0)},
		model.SectionEvidence: {item("x", 4, 1), item("y", 4, 0.5)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, itemIDs(sections[1]))
	assert.Equal(t, []string{"y"}, itemIDs(sections[2]))
	assert.Equal(t, 8, used)
}

func TestPackTieBreaks(t *testing.T) {
	now := time.Now()
	a := model.Item{ID: "a", TokenEst: 1, CreatedAt: now.Add(-time.Minute)}
	b := model.Item{ID: "b", TokenEst: 1, CreatedAt: now}
	c := model.Item{ID: "c", TokenEst: 1, CreatedAt: now}

	sections, _, err := Pack(10, map[model.SectionName][]model.Item{model.SectionRecent: {a, c, b}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, itemIDs(sections[1]))
}

func TestPackDeterministic(t *testing.T) {
	cands := randomCandidates(rand.New(rand.NewSource(7)), 40)
	first, usedFirst, _ := Pack(120, cands)
	for i := 0; i < 5; i++ {
		again, used, _ := Pack(120, cands)
		assert.Equal(t, first, again)
		assert.Equal(t, usedFirst, used)
	}
}

func randomCandidates(r *rand.Rand, n int) map[model.SectionName][]model.Item {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make(map[model.SectionName][]model.Item)
	for i := 0; i < n; i++ {
		name := model.SectionOrder[r.Intn(len(model.SectionOrder))]
		out[name] = append(out[name], model.Item{
			// a small id space forces cross-section duplicates
			ID:        fmt.Sprintf("i%d", r.Intn(n/2+1)),
			TokenEst:  r.Intn(60),
			Score:     float64(r.Intn(5)) / 4,
			CreatedAt: base.Add(time.Duration(r.Intn(100)) * time.Minute),
		})
	}
	return out
}

func checkBudget(t *testing.T, budget int, sections []model.Section, used int) {
	t.Helper()
	total := 0
	seen := map[string]bool{}
	for _, s := range sections {
		sum := 0
		for _, it := range s.Items {
			sum += it.TokenEst
			if seen[it.ID] {
				t.Fatalf("item %s packed twice", it.ID)
			}
			seen[it.ID] = true
		}
		if sum != s.TokenEst {
			t.Fatalf("section %s token_est %d != item sum %d", s.Name, s.TokenEst, sum)
		}
		total += sum
	}
	if total != used {
		t.Fatalf("used %d != total %d", used, total)
	}
	if total > budget {
		t.Fatalf("packed %d tokens into a budget of %d", total, budget)
	}
}

func TestPackNeverExceedsBudget(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		budget := r.Intn(300) + 1
		cands := randomCandidates(r, r.Intn(50)+1)
		sections, used, err := Pack(budget, cands)
		require.NoError(t, err)
		checkBudget(t, budget, sections, used)
	}
}

func FuzzPackNeverExceedsBudget(f *testing.F) {
	f.Add(int64(1), 50, 20)
	f.Add(int64(2), 1, 5)
	f.Add(int64(3), 1000, 100)
	f.Fuzz(func(t *testing.T, seed int64, budget, n int) {
		if budget <= 0 || n <= 0 || n > 500 {
			t.Skip()
		}
		cands := randomCandidates(rand.New(rand.NewSource(seed)), n)
		sections, used, err := Pack(budget, cands)
		if err != nil {
			t.Fatal(err)
		}
		checkBudget(t, budget, sections, used)
	})
}
