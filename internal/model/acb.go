package model

import "time"

// SectionName names an ACB section.
type SectionName string

const (
	SectionRules     SectionName = "rules"
	SectionRecent    SectionName = "recent_window"
	SectionEvidence  SectionName = "retrieved_evidence"
	SectionDecisions SectionName = "relevant_decisions"
)

// SectionOrder is the fixed packing order.
var SectionOrder = []SectionName{SectionRules, SectionRecent, SectionEvidence, SectionDecisions}

// ItemType identifies what an ACB item was built from.
type ItemType string

const (
	ItemRule      ItemType = "rule"
	ItemChunk     ItemType = "chunk"
	ItemDecision  ItemType = "decision"
	ItemEpisode   ItemType = "episode"
	ItemPrinciple ItemType = "principle"
)

// Item is one entry of an ACB section.
type Item struct {
	ID        string    `json:"id"`
	Type      ItemType  `json:"type"`
	Text      string    `json:"text"`
	TokenEst  int       `json:"token_est"`
	Score     float64   `json:"score"`
	EventID   string    `json:"event_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Section is an ordered group of items.
type Section struct {
	Name     SectionName `json:"name"`
	Items    []Item      `json:"items"`
	TokenEst int         `json:"token_est"`
}

// Provenance records how an ACB was assembled.
type Provenance struct {
	Intent         string         `json:"intent"`
	Profile        string         `json:"profile"`
	Query          string         `json:"query,omitempty"`
	Candidates     map[string]int `json:"candidates"`
	Degraded       []string       `json:"degraded,omitempty"`
	VectorDegraded bool           `json:"vector_degraded,omitempty"`
	BuiltAt        time.Time      `json:"built_at"`
}

// ACB is the active context bundle: a token-budgeted slice of memory.
type ACB struct {
	ID           string     `json:"acb_id"`
	TenantID     string     `json:"tenant_id"`
	SessionID    string     `json:"session_id"`
	BudgetTokens int        `json:"budget_tokens"`
	TokenUsedEst int        `json:"token_used_est"`
	Sections     []Section  `json:"sections"`
	Provenance   Provenance `json:"provenance"`
}

// Section returns the named section or nil.
func (a *ACB) Section(name SectionName) *Section {
	for i := range a.Sections {
		if a.Sections[i].Name == name {
			return &a.Sections[i]
		}
	}
	return nil
}
