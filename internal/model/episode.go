package model

import "time"

// CompressionLevel is how far an episode has been consolidated.
type CompressionLevel string

const (
	LevelFull       CompressionLevel = "full"
	LevelSummary    CompressionLevel = "summary"
	LevelQuickRef   CompressionLevel = "quick_ref"
	LevelIntegrated CompressionLevel = "integrated"
)

var levelRank = map[CompressionLevel]int{
	LevelFull:       0,
	LevelSummary:    1,
	LevelQuickRef:   2,
	LevelIntegrated: 3,
}

// Rank orders levels; unknown levels rank -1.
func (l CompressionLevel) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// Next returns the following level. ok is false at the final level.
func (l CompressionLevel) Next() (next CompressionLevel, ok bool) {
	switch l {
	case LevelFull:
		return LevelSummary, true
	case LevelSummary:
		return LevelQuickRef, true
	case LevelQuickRef:
		return LevelIntegrated, true
	}
	return l, false
}

// Tier is a consolidation cadence class.
type Tier string

const (
	TierShort  Tier = "short"
	TierMedium Tier = "medium"
	TierLong   Tier = "long"
)

// ValidTiers are the allowed consolidation tiers.
var ValidTiers = map[Tier]bool{
	TierShort:  true,
	TierMedium: true,
	TierLong:   true,
}

// Episode is a narrative memory unit bound to one session.
type Episode struct {
	ID               string           `json:"id"`
	TenantID         string           `json:"tenant_id"`
	SessionID        string           `json:"session_id"`
	WhatHappened     string           `json:"what_happened"`
	WhatNoticed      []string         `json:"what_noticed,omitempty"`
	WhatLearned      []string         `json:"what_learned,omitempty"`
	Becoming         string           `json:"becoming,omitempty"`
	Significance     float64          `json:"significance"`
	Tags             []string         `json:"tags,omitempty"`
	CompressionLevel CompressionLevel `json:"compression_level"`
	Summary          string           `json:"summary,omitempty"`
	MemoryStrength   float64          `json:"memory_strength"`
	RetrievalCount   int              `json:"retrieval_count"`
	LastRetrievedAt  *time.Time       `json:"last_retrieved_at,omitempty"`
	LastDecayAt      *time.Time       `json:"last_decay_at,omitempty"`
	ConsolidatedAt   *time.Time       `json:"consolidated_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Text returns the representation of the episode appropriate to its
// compression level.
func (e Episode) Text() string {
	if e.CompressionLevel != LevelFull && e.Summary != "" {
		return e.Summary
	}
	return e.WhatHappened
}

// SemanticPrinciple is a timeless statement distilled from episodes.
type SemanticPrinciple struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	Principle        string     `json:"principle"`
	Category         string     `json:"category"`
	Confidence       float64    `json:"confidence"`
	SourceEpisodes   []string   `json:"source_episodes"`
	SourceCount      int        `json:"source_count"`
	MemoryStrength   float64    `json:"memory_strength"`
	RetrievalCount   int        `json:"retrieval_count"`
	LastRetrievedAt  *time.Time `json:"last_retrieved_at,omitempty"`
	LastReinforcedAt time.Time  `json:"last_reinforced_at"`
	SupersededBy     string     `json:"superseded_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Reflection is a compressed synthesis over a window of episodes.
type Reflection struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	Tier              Tier      `json:"tier"`
	PeriodStart       time.Time `json:"period_start"`
	PeriodEnd         time.Time `json:"period_end"`
	SessionCount      int       `json:"session_count"`
	Summary           string    `json:"summary"`
	KeyInsights       []string  `json:"key_insights,omitempty"`
	Themes            []string  `json:"themes,omitempty"`
	IdentityEvolution string    `json:"identity_evolution,omitempty"`
	Source            string    `json:"source"`
	CreatedAt         time.Time `json:"created_at"`
}

// Rule is an always-included instruction for an agent or channel. Empty
// AgentID or Channel apply to every agent or channel.
type Rule struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Channel   Channel   `json:"channel,omitempty"`
	Text      string    `json:"text"`
	Priority  float64   `json:"priority"`
	TokenEst  int       `json:"token_est"`
	CreatedAt time.Time `json:"created_at"`
}
