package acb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/working-memory/internal/chunker"
	"github.com/rcliao/working-memory/internal/config"
	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/model"
	"github.com/rcliao/working-memory/internal/packer"
	"github.com/rcliao/working-memory/internal/retrieval"
	"github.com/rcliao/working-memory/internal/store"
)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "acb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newBuilder(src Source, kw retrieval.KeywordSearcher) *Builder {
	cfg := config.DefaultConfig()
	return New(src, retrieval.New(kw, retrieval.Options{Logger: logger.NewNop()}), Options{
		ACB:     cfg.ACB,
		Scoring: cfg.Scoring,
		Logger:  logger.NewNop(),
	})
}

func record(t *testing.T, s *store.SQLiteStore, session, content string, mut ...func(*model.Event)) *model.Event {
	t.Helper()
	ev := model.Event{
		TenantID:    "t1",
		SessionID:   session,
		Channel:     model.ChannelPrivate,
		Actor:       model.Actor{Type: model.ActorHuman, ID: "u1"},
		Kind:        model.KindMessage,
		Sensitivity: model.SensitivityNone,
		Content:     content,
	}
	for _, m := range mut {
		m(&ev)
	}
	out, _, err := s.InsertEvent(context.Background(), store.EventParams{
		Event:      ev,
		Importance: chunker.Importance(ev.Kind, ev.Tags, nil),
		Chunking:   chunker.DefaultOptions(),
	})
	require.NoError(t, err)
	return out
}

func sectionTexts(a *model.ACB, name model.SectionName) []string {
	var out []string
	for _, it := range a.Section(name).Items {
		out = append(out, it.Text)
	}
	return out
}

func TestBuildRecentWindow(t *testing.T) {
	s := newStore(t)
	base := time.Now().Add(-time.Hour)
	for i, text := range []string{"first message", "second message", "third message"} {
		record(t, s, "s1", text, func(e *model.Event) { e.CreatedAt = base.Add(time.Duration(i) * time.Minute) })
	}

	b := newBuilder(s, s)
	got, err := b.Build(context.Background(), Request{
		TenantID: "t1", SessionID: "s1", Channel: model.ChannelPrivate, MaxTokens: 50,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"third message", "second message", "first message"}, sectionTexts(got, model.SectionRecent))
	assert.LessOrEqual(t, got.TokenUsedEst, 50)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "default", got.Provenance.Profile)
	require.Len(t, got.Sections, 4)
	for i, name := range model.SectionOrder {
		assert.Equal(t, name, got.Sections[i].Name)
	}
}

func TestBuildTinyBudgetIsEmpty(t *testing.T) {
	s := newStore(t)
	record(t, s, "s1", "first message")
	record(t, s, "s1", "second message")

	got, err := newBuilder(s, s).Build(context.Background(), Request{
		TenantID: "t1", SessionID: "s1", Channel: model.ChannelPrivate, Query: "message", MaxTokens: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.TokenUsedEst)
	for _, sec := range got.Sections {
		assert.Empty(t, sec.Items, sec.Name)
	}
}

func TestBuildInvalidBudget(t *testing.T) {
	s := newStore(t)
	_, err := newBuilder(s, s).Build(context.Background(), Request{TenantID: "t1", MaxTokens: 0})
	assert.ErrorIs(t, err, packer.ErrInvalidBudget)
}

func TestBuildHonoursSensitivity(t *testing.T) {
	s := newStore(t)
	record(t, s, "s1", "ordinary note")
	record(t, s, "s1", "salary details", func(e *model.Event) { e.Sensitivity = model.SensitivityHigh })
	record(t, s, "s1", "the password is hunter2", func(e *model.Event) { e.Sensitivity = model.SensitivitySecret })

	b := newBuilder(s, s)
	ctx := context.Background()

	public, err := b.Build(ctx, Request{TenantID: "t1", SessionID: "s1", Channel: model.ChannelPublic, MaxTokens: 500})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ordinary note"}, sectionTexts(public, model.SectionRecent))

	private, err := b.Build(ctx, Request{TenantID: "t1", SessionID: "s1", Channel: model.ChannelPrivate, MaxTokens: 500})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ordinary note", "salary details"}, sectionTexts(private, model.SectionRecent))
}

func TestBuildRetrievedEvidenceAndDecisions(t *testing.T) {
	s := newStore(t)
	q := record(t, s, "s1", "Should we move the queue to Postgres?")
	record(t, s, "s2", "Decision: leave the queue where it is for now.", func(e *model.Event) {
		e.Kind = model.KindDecision
		e.Refs = []string{q.ID}
	})
	record(t, s, "s3", "Postgres vacuum settings were tuned last week")

	got, err := newBuilder(s, s).Build(context.Background(), Request{
		TenantID: "t1", SessionID: "s1", Channel: model.ChannelPrivate,
		Query: "postgres vacuum", MaxTokens: 500,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Should we move the queue to Postgres?"}, sectionTexts(got, model.SectionRecent))
	assert.Contains(t, sectionTexts(got, model.SectionEvidence), "Postgres vacuum settings were tuned last week")
	// the question is already in the recent window
	assert.NotContains(t, sectionTexts(got, model.SectionEvidence), "Should we move the queue to Postgres?")
	assert.Contains(t, sectionTexts(got, model.SectionDecisions), "Decision: leave the queue where it is for now.")
	assert.True(t, got.Provenance.VectorDegraded)
	assert.Greater(t, got.Provenance.Candidates["keyword"], 0)
}

func TestBuildBoostsIncludedEpisodes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ep, err := s.InsertEpisode(ctx, store.EpisodeParams{
		TenantID: "t1", SessionID: "s1",
		WhatHappened: "Debugged the flaky deploy pipeline",
		Significance: 0.7,
	})
	require.NoError(t, err)
	_, err = s.InsertPrinciple(ctx, store.PrincipleParams{
		TenantID: "t1", Principle: "Pin the deploy pipeline tool versions", Category: "lesson", Confidence: 0.3,
	})
	require.NoError(t, err)

	got, err := newBuilder(s, s).Build(ctx, Request{
		TenantID: "t1", SessionID: "s1", Channel: model.ChannelPrivate, Query: "deploy pipeline", MaxTokens: 500,
	})
	require.NoError(t, err)

	types := map[model.ItemType]int{}
	for _, it := range got.Section(model.SectionDecisions).Items {
		types[it.Type]++
	}
	assert.Equal(t, 1, types[model.ItemEpisode])
	assert.Equal(t, 1, types[model.ItemPrinciple])

	after, err := s.GetEpisode(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.RetrievalCount)
	assert.NotNil(t, after.LastRetrievedAt)
}

func TestBuildRulesFirst(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.InsertRule(ctx, store.RuleParams{TenantID: "t1", Text: "Answer in English.", Priority: 1})
	require.NoError(t, err)
	_, err = s.InsertRule(ctx, store.RuleParams{TenantID: "t1", Text: "Never share credentials.", Priority: 5})
	require.NoError(t, err)
	_, err = s.InsertRule(ctx, store.RuleParams{TenantID: "t1", Channel: model.ChannelPublic, Text: "Be brief in public.", Priority: 3})
	require.NoError(t, err)
	record(t, s, "s1", "a message that will not fit after the rules")

	got, err := newBuilder(s, s).Build(ctx, Request{
		TenantID: "t1", SessionID: "s1", Channel: model.ChannelPrivate, MaxTokens: 11,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Never share credentials.", "Answer in English."}, sectionTexts(got, model.SectionRules))
	assert.Empty(t, got.Section(model.SectionRecent).Items)
}

type brokenRules struct {
	*store.SQLiteStore
}

func (brokenRules) RulesFor(context.Context, string, string, model.Channel) ([]model.Rule, error) {
	return nil, errors.New("rules table is locked")
}

func TestBuildDegradesOnChannelFailure(t *testing.T) {
	s := newStore(t)
	record(t, s, "s1", "still visible")

	got, err := newBuilder(brokenRules{s}, s).Build(context.Background(), Request{
		TenantID: "t1", SessionID: "s1", Channel: model.ChannelPrivate, MaxTokens: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"rules"}, got.Provenance.Degraded)
	assert.Equal(t, []string{"still visible"}, sectionTexts(got, model.SectionRecent))
}

func TestBuildCancelled(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newBuilder(s, s).Build(ctx, Request{TenantID: "t1", SessionID: "s1", MaxTokens: 100})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestString(t *testing.T) {
	a := &model.ACB{Sections: []model.Section{
		{Name: model.SectionRules, Items: []model.Item{{Text: "be kind"}}, TokenEst: 2},
		{Name: model.SectionRecent, Items: []model.Item{}},
	}}
	assert.Equal(t, "## rules (2 tokens)\n- be kind\n\n", String(a))
}
