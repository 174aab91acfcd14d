package store

import (
	"context"
	"errors"
	"testing"
)

func TestTaskEdges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.AddTaskEdge(ctx, "t1", "build", "design", nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.AddTaskEdge(ctx, "t1", "ship", "build", nil); err != nil {
		t.Fatalf("add: %v", err)
	}
	// duplicate is ignored
	if _, err := s.AddTaskEdge(ctx, "t1", "ship", "build", nil); err != nil {
		t.Fatalf("add duplicate: %v", err)
	}

	edges, err := s.TaskEdges(ctx, "t1", "build")
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges touching build, got %d", len(edges))
	}

	all, _ := s.TaskEdges(ctx, "t1", "")
	if len(all) != 2 {
		t.Errorf("expected 2 edges, got %d", len(all))
	}

	if err := s.RemoveTaskEdge(ctx, "t1", "ship", "build"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	all, _ = s.TaskEdges(ctx, "t1", "")
	if len(all) != 1 {
		t.Errorf("expected 1 edge after removal, got %d", len(all))
	}
}

func TestAddTaskEdgeCheckRejects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.AddTaskEdge(ctx, "t1", "a", "b", nil)

	errCycle := errors.New("cycle")
	var seen int
	_, err := s.AddTaskEdge(ctx, "t1", "b", "a", func(existing []TaskEdge) error {
		seen = len(existing)
		return errCycle
	})
	if !errors.Is(err, errCycle) {
		t.Fatalf("expected check error, got %v", err)
	}
	if seen != 1 {
		t.Errorf("check saw %d edges, want 1", seen)
	}

	all, _ := s.TaskEdges(ctx, "t1", "")
	if len(all) != 1 {
		t.Errorf("rejected edge was stored")
	}
}
