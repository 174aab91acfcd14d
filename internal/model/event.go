// Package model defines the core working-memory data types.
package model

import (
	"encoding/json"
	"time"
)

// Channel is the conversational surface an event was observed on.
type Channel string

const (
	ChannelPrivate Channel = "private"
	ChannelPublic  Channel = "public"
	ChannelTeam    Channel = "team"
	ChannelAgent   Channel = "agent"
)

// ActorType identifies who produced an event.
type ActorType string

const (
	ActorHuman ActorType = "human"
	ActorAgent ActorType = "agent"
	ActorTool  ActorType = "tool"
)

// EventKind classifies an event.
type EventKind string

const (
	KindMessage    EventKind = "message"
	KindToolCall   EventKind = "tool_call"
	KindToolResult EventKind = "tool_result"
	KindDecision   EventKind = "decision"
	KindTaskUpdate EventKind = "task_update"
)

// Sensitivity controls where an event's content may be surfaced.
type Sensitivity string

const (
	SensitivityNone   Sensitivity = "none"
	SensitivityLow    Sensitivity = "low"
	SensitivityHigh   Sensitivity = "high"
	SensitivitySecret Sensitivity = "secret"
)

// ValidChannels are the allowed channels.
var ValidChannels = map[Channel]bool{
	ChannelPrivate: true,
	ChannelPublic:  true,
	ChannelTeam:    true,
	ChannelAgent:   true,
}

// ValidActorTypes are the allowed actor types.
var ValidActorTypes = map[ActorType]bool{
	ActorHuman: true,
	ActorAgent: true,
	ActorTool:  true,
}

// ValidEventKinds are the allowed event kinds.
var ValidEventKinds = map[EventKind]bool{
	KindMessage:    true,
	KindToolCall:   true,
	KindToolResult: true,
	KindDecision:   true,
	KindTaskUpdate: true,
}

// ValidSensitivities are the allowed sensitivity levels.
var ValidSensitivities = map[Sensitivity]bool{
	SensitivityNone:   true,
	SensitivityLow:    true,
	SensitivityHigh:   true,
	SensitivitySecret: true,
}

// VisibleOn reports whether content of this sensitivity may appear in a
// context bundle requested on channel ch. Secret content never does; high
// sensitivity content only on private channels.
func (s Sensitivity) VisibleOn(ch Channel) bool {
	switch s {
	case SensitivitySecret:
		return false
	case SensitivityHigh:
		return ch == ChannelPrivate
	default:
		return true
	}
}

// Actor is the producer of an event.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id"`
}

// Event is an immutable interaction record.
type Event struct {
	ID          string          `json:"event_id"`
	TenantID    string          `json:"tenant_id"`
	SessionID   string          `json:"session_id"`
	Channel     Channel         `json:"channel"`
	Actor       Actor           `json:"actor"`
	Kind        EventKind       `json:"kind"`
	Sensitivity Sensitivity     `json:"sensitivity"`
	Tags        []string        `json:"tags,omitempty"`
	Content     string          `json:"content"`
	Data        json.RawMessage `json:"data,omitempty"`
	Refs        []string        `json:"refs,omitempty"`
	TaskID      string          `json:"task_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Chunk is a retrievable excerpt of an event. TokenEst is fixed when the
// chunk is created.
type Chunk struct {
	ID          string      `json:"chunk_id"`
	TenantID    string      `json:"tenant_id"`
	EventID     string      `json:"event_id"`
	SessionID   string      `json:"session_id"`
	Channel     Channel     `json:"channel"`
	Kind        EventKind   `json:"kind"`
	Sensitivity Sensitivity `json:"sensitivity"`
	Seq         int         `json:"seq"`
	Text        string      `json:"text"`
	TokenEst    int         `json:"token_est"`
	Importance  float64     `json:"importance"`
	Embedding   []float32   `json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
}
