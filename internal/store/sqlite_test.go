package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rcliao/working-memory/internal/chunker"
	"github.com/rcliao/working-memory/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEvent(tenant, session, content string) EventParams {
	return EventParams{
		Event: model.Event{
			TenantID:    tenant,
			SessionID:   session,
			Channel:     model.ChannelPrivate,
			Actor:       model.Actor{Type: model.ActorHuman, ID: "u1"},
			Kind:        model.KindMessage,
			Sensitivity: model.SensitivityNone,
			Content:     content,
		},
		Importance: 0.3,
		Chunking:   chunker.DefaultOptions(),
	}
}

func TestInsertAndGetEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := testEvent("t1", "s1", "We agreed to ship on Friday.")
	p.Event.Tags = []string{"release"}
	p.Event.Refs = []string{"01PREVIOUS"}
	p.Event.Data = []byte(`{"ticket":42}`)

	ev, chunks, err := s.InsertEvent(ctx, p)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("expected event id")
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].TokenEst != chunker.EstimateTokens("We agreed to ship on Friday.") {
		t.Errorf("unexpected token estimate %d", chunks[0].TokenEst)
	}

	got, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != p.Event.Content || got.Actor.ID != "u1" {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "release" {
		t.Errorf("tags = %v", got.Tags)
	}
	if string(got.Data) != `{"ticket":42}` {
		t.Errorf("data = %s", got.Data)
	}
	if !got.CreatedAt.Equal(ev.CreatedAt.UTC()) {
		t.Errorf("created_at %v != %v", got.CreatedAt, ev.CreatedAt)
	}
}

func TestGetEventNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetEvent(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLongEventProducesSeveralChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	content := strings.Repeat("The migration plan covers schema changes and rollbacks. ", 40)
	_, chunks, err := s.InsertEvent(ctx, testEvent("t1", "s1", content))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}

	stored, err := s.ChunksByIDs(ctx, "t1", []string{chunks[0].ID, chunks[1].ID})
	if err != nil {
		t.Fatalf("chunks by ids: %v", err)
	}
	byID := map[string]model.Chunk{}
	for _, c := range stored {
		byID[c.ID] = c
	}
	for _, c := range chunks[:2] {
		if byID[c.ID].TokenEst != c.TokenEst {
			t.Errorf("chunk %s token estimate changed: %d -> %d", c.ID, c.TokenEst, byID[c.ID].TokenEst)
		}
	}
}

func TestRecentChunks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for i, text := range []string{"first", "second", "third"} {
		p := testEvent("t1", "s1", text)
		p.Event.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if _, _, err := s.InsertEvent(ctx, p); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, _, err := s.InsertEvent(ctx, testEvent("t1", "other", "elsewhere")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	recent, err := s.RecentChunks(ctx, "t1", "s1", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2, got %d", len(recent))
	}
	if recent[0].Text != "third" || recent[1].Text != "second" {
		t.Errorf("unexpected order: %q, %q", recent[0].Text, recent[1].Text)
	}
}

func TestChunkEmbeddingRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, chunks, err := s.InsertEvent(ctx, testEvent("t1", "s1", "vectors please"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	missing, err := s.ChunksMissingEmbedding(ctx, "t1", 10)
	if err != nil || len(missing) != 1 {
		t.Fatalf("expected 1 chunk missing an embedding, got %d (%v)", len(missing), err)
	}

	if err := s.SetChunkEmbedding(ctx, chunks[0].ID, []float32{0.5, -0.25, 1}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	embedded, err := s.EmbeddedChunks(ctx)
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	if len(embedded) != 1 || len(embedded[0].Embedding) != 3 || embedded[0].Embedding[1] != -0.25 {
		t.Fatalf("unexpected embedded chunks: %+v", embedded)
	}

	if err := s.SetChunkEmbedding(ctx, "nope", []float32{1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDecisionChunksReferencing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	q, _, err := s.InsertEvent(ctx, testEvent("t1", "s1", "Should we use Postgres?"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	d := testEvent("t1", "s1", "Decision: use Postgres.")
	d.Event.Kind = model.KindDecision
	d.Event.Refs = []string{q.ID}
	if _, _, err := s.InsertEvent(ctx, d); err != nil {
		t.Fatalf("insert decision: %v", err)
	}

	got, err := s.DecisionChunksReferencing(ctx, "t1", []string{q.ID}, 5)
	if err != nil {
		t.Fatalf("decisions: %v", err)
	}
	if len(got) != 1 || got[0].Kind != model.KindDecision {
		t.Fatalf("expected the decision chunk, got %+v", got)
	}
}

func TestDeleteTenant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.InsertEvent(ctx, testEvent("gone", "s1", "remove me"))
	s.InsertEpisode(ctx, EpisodeParams{TenantID: "gone", SessionID: "s1", WhatHappened: "x", Significance: 0.5})
	s.InsertEvent(ctx, testEvent("kept", "s1", "keep me"))

	counts, err := s.DeleteTenant(ctx, "gone")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if counts.Events != 1 || counts.Chunks != 1 || counts.Episodes != 1 {
		t.Errorf("unexpected counts %+v", counts)
	}

	hits, _ := s.SearchChunks(ctx, "gone", "remove", 10)
	if len(hits) != 0 {
		t.Errorf("deleted tenant still searchable: %v", hits)
	}
	hits, _ = s.SearchChunks(ctx, "kept", "keep", 10)
	if len(hits) != 1 {
		t.Errorf("other tenant affected: %v", hits)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	s.InsertEvent(ctx, testEvent("t1", "s1", "one"))
	s.InsertEvent(ctx, testEvent("t1", "s2", "two"))
	s.InsertEvent(ctx, testEvent("t2", "s1", "three"))

	st, err := s.Stats(ctx, filepath.Join(t.TempDir(), "none.db"), "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Events != 3 || st.Chunks != 3 {
		t.Errorf("unexpected totals %+v", st)
	}
	if len(st.Tenants) != 2 || st.Tenants[0].TenantID != "t1" || st.Tenants[0].Sessions != 2 {
		t.Errorf("unexpected tenants %+v", st.Tenants)
	}

	one, err := s.Stats(ctx, "", "t2")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if one.Events != 1 || one.Tenants != nil {
		t.Errorf("unexpected tenant stats %+v", one)
	}
}
