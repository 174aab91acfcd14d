package consolidation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rcliao/working-memory/internal/llm"
	"github.com/rcliao/working-memory/internal/model"
)

// Reflection sources.
const (
	SourceLLM       = "llm"
	SourceHeuristic = "heuristic"
)

// Draft is a reflection before it is stored.
type Draft struct {
	Summary           string
	KeyInsights       []string
	Themes            []string
	IdentityEvolution string
	Source            string
}

// Reflector synthesizes a reflection over a window of episodes.
type Reflector interface {
	Reflect(ctx context.Context, episodes []model.Episode) (*Draft, error)
}

// HeuristicReflector builds an extractive reflection without a model.
type HeuristicReflector struct{}

func (HeuristicReflector) Reflect(_ context.Context, episodes []model.Episode) (*Draft, error) {
	if len(episodes) == 0 {
		return nil, fmt.Errorf("reflect: no episodes")
	}
	top := make([]model.Episode, len(episodes))
	copy(top, episodes)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Significance > top[j].Significance })
	if len(top) > 3 {
		top = top[:3]
	}

	var lines []string
	for _, ep := range top {
		if s := firstSentence(ep.Text()); s != "" {
			lines = append(lines, s)
		}
	}
	summary := fmt.Sprintf("%d episode(s) reviewed.", len(episodes))
	if len(lines) > 0 {
		summary += " Most significant: " + strings.Join(lines, " ")
	}

	var learned, tags, becoming []string
	for _, ep := range episodes {
		learned = append(learned, ep.WhatLearned...)
		tags = append(tags, ep.Tags...)
		if ep.Becoming != "" {
			becoming = append(becoming, ep.Becoming)
		}
	}
	return &Draft{
		Summary:           summary,
		KeyInsights:       ranked(learned, 5),
		Themes:            ranked(tags, 5),
		IdentityEvolution: strings.Join(ranked(becoming, 3), "; "),
		Source:            SourceHeuristic,
	}, nil
}

// LLMReflector asks salient questions, answers them as insights, then
// summarizes.
type LLMReflector struct {
	Completer llm.Completer
}

const (
	questionsSystem = `You review an agent's recent episodes. Return only a JSON array of the 3 most salient high-level questions these episodes raise.`
	insightsSystem  = `You answer reflective questions about an agent's recent episodes. Return only a JSON array of short insight statements, one per question.`
	summarySystem   = `You write an agent's periodic reflection. Return only a JSON object: {"summary": string, "themes": [string], "identity_evolution": string}. Keep the summary under 80 words.`
)

func (r LLMReflector) Reflect(ctx context.Context, episodes []model.Episode) (*Draft, error) {
	d := digest(episodes)

	var questions []string
	if err := r.ask(ctx, questionsSystem, d, &questions); err != nil {
		return nil, fmt.Errorf("questions: %w", err)
	}
	var insights []string
	prompt := d + "Questions:\n- " + strings.Join(questions, "\n- ")
	if err := r.ask(ctx, insightsSystem, prompt, &insights); err != nil {
		return nil, fmt.Errorf("insights: %w", err)
	}
	var out struct {
		Summary           string   `json:"summary"`
		Themes            []string `json:"themes"`
		IdentityEvolution string   `json:"identity_evolution"`
	}
	prompt = d + "Insights:\n- " + strings.Join(insights, "\n- ")
	if err := r.ask(ctx, summarySystem, prompt, &out); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return nil, fmt.Errorf("summary: empty")
	}
	return &Draft{
		Summary:           strings.TrimSpace(out.Summary),
		KeyInsights:       insights,
		Themes:            out.Themes,
		IdentityEvolution: out.IdentityEvolution,
		Source:            SourceLLM,
	}, nil
}

func (r LLMReflector) ask(ctx context.Context, system, user string, v any) error {
	raw, err := r.Completer.Complete(ctx, system, user)
	if err != nil {
		return err
	}
	body, ok := llm.ExtractJSON(raw)
	if !ok {
		return fmt.Errorf("no JSON in response")
	}
	return json.Unmarshal([]byte(body), v)
}
