package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rcliao/working-memory/internal/llm"
	"github.com/rcliao/working-memory/internal/model"
)

// Candidate is a principle proposed by an extractor, with the distinct
// episodes that support it.
type Candidate struct {
	Principle      string
	Category       string
	SourceEpisodes []string
}

// Extractor proposes principles from a batch of episodes.
type Extractor interface {
	Extract(ctx context.Context, episodes []model.Episode) ([]Candidate, error)
}

// HeuristicExtractor clusters learned and noticed statements by term
// overlap and keeps clusters observed in at least MinSupport episodes.
type HeuristicExtractor struct {
	Threshold  float64
	MinSupport int
}

type cluster struct {
	text     string
	terms    map[string]bool
	category string
	episodes []string
	seen     map[string]bool
}

func (h HeuristicExtractor) Extract(_ context.Context, episodes []model.Episode) ([]Candidate, error) {
	threshold := h.Threshold
	if threshold <= 0 {
		threshold = 0.6
	}
	var clusters []*cluster

	add := func(epID, statement, category string) {
		statement = strings.TrimSpace(statement)
		t := terms(statement)
		if len(t) == 0 {
			return
		}
		var best *cluster
		var bestSim float64
		for _, c := range clusters {
			if sim := jaccard(t, c.terms); sim >= threshold && sim > bestSim {
				best, bestSim = c, sim
			}
		}
		if best == nil {
			best = &cluster{text: statement, terms: t, category: category, seen: map[string]bool{}}
			clusters = append(clusters, best)
		}
		if category == "lesson" {
			best.category = "lesson"
		}
		if !best.seen[epID] {
			best.seen[epID] = true
			best.episodes = append(best.episodes, epID)
		}
	}

	for _, ep := range episodes {
		for _, s := range ep.WhatLearned {
			add(ep.ID, s, "lesson")
		}
		for _, s := range ep.WhatNoticed {
			add(ep.ID, s, "observation")
		}
	}

	minSupport := max(h.MinSupport, 1)
	var out []Candidate
	for _, c := range clusters {
		if len(c.episodes) < minSupport {
			continue
		}
		out = append(out, Candidate{Principle: c.text, Category: c.category, SourceEpisodes: c.episodes})
	}
	// stable: most supported first, ties keep first-seen order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j].SourceEpisodes) > len(out[j-1].SourceEpisodes); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

const extractSystem = `You distill durable principles from an agent's episodic memory.
Return only a JSON array. Each element: {"principle": string, "category": string, "source_episodes": [episode ids]}.
A principle is a timeless, general statement supported by the listed episodes. Omit one-off details.`

// LLMExtractor asks a completer for principles.
type LLMExtractor struct {
	Completer llm.Completer
}

type llmPrinciple struct {
	Principle      string   `json:"principle"`
	Category       string   `json:"category"`
	SourceEpisodes []string `json:"source_episodes"`
}

func (x LLMExtractor) Extract(ctx context.Context, episodes []model.Episode) ([]Candidate, error) {
	raw, err := x.Completer.Complete(ctx, extractSystem, digest(episodes))
	if err != nil {
		return nil, err
	}
	body, ok := llm.ExtractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("extract: no JSON in response")
	}
	var parsed []llmPrinciple
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	known := make(map[string]bool, len(episodes))
	for _, ep := range episodes {
		known[ep.ID] = true
	}
	var out []Candidate
	for _, p := range parsed {
		text := strings.TrimSpace(p.Principle)
		if text == "" {
			continue
		}
		// drop ids the model invented
		seen := map[string]bool{}
		var sources []string
		for _, id := range p.SourceEpisodes {
			if known[id] && !seen[id] {
				seen[id] = true
				sources = append(sources, id)
			}
		}
		if len(sources) == 0 {
			continue
		}
		category := strings.TrimSpace(p.Category)
		if category == "" {
			category = "lesson"
		}
		out = append(out, Candidate{Principle: text, Category: category, SourceEpisodes: sources})
	}
	return out, nil
}

// digest renders episodes for a prompt.
func digest(episodes []model.Episode) string {
	var b strings.Builder
	for _, ep := range episodes {
		fmt.Fprintf(&b, "[%s] significance=%.2f\n", ep.ID, ep.Significance)
		fmt.Fprintf(&b, "happened: %s\n", ep.Text())
		if len(ep.WhatNoticed) > 0 {
			fmt.Fprintf(&b, "noticed: %s\n", strings.Join(ep.WhatNoticed, "; "))
		}
		if len(ep.WhatLearned) > 0 {
			fmt.Fprintf(&b, "learned: %s\n", strings.Join(ep.WhatLearned, "; "))
		}
		if ep.Becoming != "" {
			fmt.Fprintf(&b, "becoming: %s\n", ep.Becoming)
		}
		b.WriteString("\n")
	}
	return b.String()
}
