// Package store persists events, chunks, episodes, principles, reflections,
// rules, and task edges in SQLite.
package store

import (
	"errors"
	"time"

	"github.com/rcliao/working-memory/internal/chunker"
	"github.com/rcliao/working-memory/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// EventParams holds parameters for recording an event.
type EventParams struct {
	Event      model.Event
	Importance float64
	Chunking   chunker.Options
}

// EpisodeParams holds parameters for recording an episode.
type EpisodeParams struct {
	TenantID     string
	SessionID    string
	WhatHappened string
	WhatNoticed  []string
	WhatLearned  []string
	Becoming     string
	Significance float64
	Tags         []string
	CreatedAt    time.Time
}

// PrincipleParams holds parameters for a new semantic principle.
type PrincipleParams struct {
	TenantID       string
	Principle      string
	Category       string
	Confidence     float64
	SourceEpisodes []string
	At             time.Time
}

// RuleParams holds parameters for a new rule.
type RuleParams struct {
	TenantID string
	AgentID  string
	Channel  model.Channel
	Text     string
	Priority float64
	At       time.Time
}

// EpisodeFilter selects episodes for consolidation.
type EpisodeFilter struct {
	TenantID string
	Level    model.CompressionLevel
	Since    time.Time
	Until    time.Time
	Limit    int
}

// ChunkHit is a chunk returned by keyword search with its 1-based rank.
type ChunkHit struct {
	ChunkID   string
	Rank      int
	CreatedAt time.Time
}

// StrengthFunc maps a record's current value and the time elapsed since its
// decay anchor to a new value.
type StrengthFunc func(current float64, elapsed time.Duration) float64
