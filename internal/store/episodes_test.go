package store

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/working-memory/internal/model"
)

func insertTestEpisode(t *testing.T, s *SQLiteStore, tenant string, created time.Time) *model.Episode {
	t.Helper()
	ep, err := s.InsertEpisode(context.Background(), EpisodeParams{
		TenantID:     tenant,
		SessionID:    "s1",
		WhatHappened: "Paired on the retry logic. It was subtle.",
		WhatLearned:  []string{"Backoff needs jitter"},
		Significance: 0.6,
		CreatedAt:    created,
	})
	if err != nil {
		t.Fatalf("insert episode: %v", err)
	}
	return ep
}

func TestInsertAndGetEpisode(t *testing.T) {
	s := newTestStore(t)
	ep := insertTestEpisode(t, s, "t1", time.Time{})

	got, err := s.GetEpisode(context.Background(), ep.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CompressionLevel != model.LevelFull || got.MemoryStrength != 1.0 {
		t.Errorf("new episode should be full strength, got %s %.2f", got.CompressionLevel, got.MemoryStrength)
	}
	if len(got.WhatLearned) != 1 || got.WhatLearned[0] != "Backoff needs jitter" {
		t.Errorf("learned = %v", got.WhatLearned)
	}

	if _, err := s.GetEpisode(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListEpisodesWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()

	old := insertTestEpisode(t, s, "t1", now.Add(-48*time.Hour))
	mid := insertTestEpisode(t, s, "t1", now.Add(-2*time.Hour))
	insertTestEpisode(t, s, "t2", now.Add(-time.Hour))

	eps, err := s.ListEpisodes(ctx, EpisodeFilter{TenantID: "t1", Since: now.Add(-24 * time.Hour), Until: now})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(eps) != 1 || eps[0].ID != mid.ID {
		t.Fatalf("expected only the recent episode, got %+v", eps)
	}

	all, _ := s.ListEpisodes(ctx, EpisodeFilter{TenantID: "t1", Level: model.LevelFull})
	if len(all) != 2 || all[0].ID != old.ID {
		t.Errorf("expected oldest first, got %d episodes", len(all))
	}
}

func TestAdvanceCompressionIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ep := insertTestEpisode(t, s, "t1", time.Time{})
	now := time.Now()

	ok, err := s.AdvanceCompression(ctx, ep.ID, model.LevelFull, model.LevelSummary, "Paired on the retry logic.", now)
	if err != nil || !ok {
		t.Fatalf("first advance: %v %v", ok, err)
	}
	ok, err = s.AdvanceCompression(ctx, ep.ID, model.LevelFull, model.LevelSummary, "again", now)
	if err != nil || ok {
		t.Fatalf("second advance should be a no-op: %v %v", ok, err)
	}

	got, _ := s.GetEpisode(ctx, ep.ID)
	if got.CompressionLevel != model.LevelSummary || got.Summary != "Paired on the retry logic." {
		t.Errorf("unexpected episode %+v", got)
	}
	if got.Text() != got.Summary {
		t.Errorf("compressed episode should render its summary")
	}

	if _, err := s.AdvanceCompression(ctx, ep.ID, model.LevelSummary, model.LevelFull, "", now); err == nil {
		t.Error("regression should be rejected")
	}
}

func TestBoostEpisodeConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ep := insertTestEpisode(t, s, "t1", time.Time{})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.BoostEpisode(ctx, ep.ID, 0.1, time.Now()); err != nil {
				t.Errorf("boost: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _ := s.GetEpisode(ctx, ep.ID)
	if got.RetrievalCount != n {
		t.Errorf("retrieval_count = %d, want %d", got.RetrievalCount, n)
	}
	if got.MemoryStrength > 1.0 {
		t.Errorf("strength exceeded 1: %f", got.MemoryStrength)
	}
	if got.LastRetrievedAt == nil {
		t.Error("last_retrieved_at not set")
	}
}

func TestDecayEpisodesDoesNotCompound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now().UTC()
	ep := insertTestEpisode(t, s, "t1", now.Add(-10*24*time.Hour))

	halve := func(v float64, elapsed time.Duration) float64 {
		days := elapsed.Hours() / 24
		return v * math.Pow(0.5, days/10)
	}

	n, err := s.DecayEpisodes(ctx, "t1", now, halve)
	if err != nil || n != 1 {
		t.Fatalf("decay: %d %v", n, err)
	}
	got, _ := s.GetEpisode(ctx, ep.ID)
	if math.Abs(got.MemoryStrength-0.5) > 1e-6 {
		t.Fatalf("strength = %f, want 0.5", got.MemoryStrength)
	}

	n, err = s.DecayEpisodes(ctx, "t1", now, halve)
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if n != 0 {
		t.Errorf("second run at the same instant updated %d episodes", n)
	}
	got, _ = s.GetEpisode(ctx, ep.ID)
	if math.Abs(got.MemoryStrength-0.5) > 1e-6 {
		t.Errorf("strength compounded to %f", got.MemoryStrength)
	}
}

func TestEpisodeLevelCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := insertTestEpisode(t, s, "t1", time.Time{})
	insertTestEpisode(t, s, "t1", time.Time{})
	s.AdvanceCompression(ctx, a.ID, model.LevelFull, model.LevelSummary, "sum", time.Now())

	counts, err := s.EpisodeLevelCounts(ctx, "t1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[model.LevelFull] != 1 || counts[model.LevelSummary] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}
