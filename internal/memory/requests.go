package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rcliao/working-memory/internal/config"
	"github.com/rcliao/working-memory/internal/model"
)

// Request is the input of one service operation. Every request is
// validated once, at the service boundary.
type Request interface {
	Operation() string
}

// Operation names, as used by DecodeRequest and Service.Do.
const (
	OpRecordEvent      = "record_event"
	OpBuildContext     = "build_context"
	OpRunConsolidation = "run_consolidation"
	OpGetEvent         = "get_event"
	OpSearch           = "search"
	OpRecordEpisode    = "record_episode"
	OpPutRule          = "put_rule"
	OpLinkTasks        = "link_tasks"
	OpUnlinkTasks      = "unlink_tasks"
	OpTaskEdges        = "task_edges"
	OpDeleteTenant     = "delete_tenant"
	OpLatestReflection = "latest_reflection"
	OpBackfill         = "backfill_embeddings"
	OpStats            = "stats"
	OpExportTenant     = "export_tenant"
	OpListEpisodes     = "list_episodes"
	OpListPrinciples   = "list_principles"
)

// RecordEventRequest records one interaction event.
type RecordEventRequest struct {
	TenantID    string            `json:"tenant_id" validate:"required"`
	SessionID   string            `json:"session_id" validate:"required"`
	Channel     model.Channel     `json:"channel" validate:"required,oneof=private public team agent"`
	ActorType   model.ActorType   `json:"actor_type" validate:"required,oneof=human agent tool"`
	ActorID     string            `json:"actor_id" validate:"required"`
	Kind        model.EventKind   `json:"kind" validate:"required,oneof=message tool_call tool_result decision task_update"`
	Sensitivity model.Sensitivity `json:"sensitivity,omitempty" validate:"omitempty,oneof=none low high secret"`
	Tags        []string          `json:"tags,omitempty" validate:"dive,required"`
	Content     string            `json:"content" validate:"required"`
	Data        json.RawMessage   `json:"data,omitempty"`
	Refs        []string          `json:"refs,omitempty" validate:"dive,required"`
	TaskID      string            `json:"task_id,omitempty"`
	Importance  *float64          `json:"importance,omitempty" validate:"omitempty,gte=0,lte=1"`
	CreatedAt   time.Time         `json:"created_at,omitempty"`
}

// RecordEventResult identifies what RecordEvent stored.
type RecordEventResult struct {
	EventID  string   `json:"event_id"`
	ChunkIDs []string `json:"chunk_ids"`
}

// BuildContextRequest asks for an active context bundle.
type BuildContextRequest struct {
	TenantID  string        `json:"tenant_id" validate:"required"`
	SessionID string        `json:"session_id" validate:"required"`
	AgentID   string        `json:"agent_id,omitempty"`
	Channel   model.Channel `json:"channel" validate:"required,oneof=private public team agent"`
	Intent    string        `json:"intent,omitempty"`
	Query     string        `json:"query,omitempty"`
	MaxTokens int           `json:"max_tokens" validate:"gt=0"`
}

// ConsolidationRequest triggers one consolidation tier.
type ConsolidationRequest struct {
	TenantID string     `json:"tenant_id" validate:"required"`
	Tier     model.Tier `json:"tier" validate:"required,oneof=short medium long"`
}

// GetEventRequest fetches an event by id.
type GetEventRequest struct {
	EventID string `json:"event_id" validate:"required"`
}

// SearchRequest runs the hybrid retriever.
type SearchRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Query    string `json:"query" validate:"required"`
	Limit    int    `json:"limit,omitempty" validate:"gte=0,lte=1000"`
}

// SearchResult holds ranked chunk ids, best first.
type SearchResult struct {
	ChunkIDs       []string      `json:"chunk_ids"`
	Scores         []float64     `json:"scores"`
	Chunks         []model.Chunk `json:"chunks,omitempty"`
	KeywordHits    int           `json:"keyword_hits"`
	VectorHits     int           `json:"vector_hits"`
	VectorDegraded bool          `json:"vector_degraded"`
}

// RecordEpisodeRequest stores an episode at session end.
type RecordEpisodeRequest struct {
	TenantID     string    `json:"tenant_id" validate:"required"`
	SessionID    string    `json:"session_id" validate:"required"`
	WhatHappened string    `json:"what_happened" validate:"required"`
	WhatNoticed  []string  `json:"what_noticed,omitempty"`
	WhatLearned  []string  `json:"what_learned,omitempty"`
	Becoming     string    `json:"becoming,omitempty"`
	Significance float64   `json:"significance" validate:"gte=0,lte=1"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// PutRuleRequest adds an always-included rule.
type PutRuleRequest struct {
	TenantID string        `json:"tenant_id" validate:"required"`
	AgentID  string        `json:"agent_id,omitempty"`
	Channel  model.Channel `json:"channel,omitempty" validate:"omitempty,oneof=private public team agent"`
	Text     string        `json:"text" validate:"required"`
	Priority float64       `json:"priority" validate:"gte=0,lte=1"`
}

// LinkTasksRequest adds or removes the dependency edge From -> To.
type LinkTasksRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required,nefield=From"`
}

// UnlinkTasksRequest removes the dependency edge From -> To.
type UnlinkTasksRequest LinkTasksRequest

// TaskEdgesRequest lists edges touching Task, or all edges when empty.
type TaskEdgesRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Task     string `json:"task,omitempty"`
}

// TenantRequest addresses a whole tenant.
type TenantRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
}

// DeleteTenantRequest removes every record of a tenant.
type DeleteTenantRequest TenantRequest

// LatestReflectionRequest fetches the newest reflection of a tenant.
type LatestReflectionRequest TenantRequest

// ExportTenantRequest lists every event of a tenant.
type ExportTenantRequest TenantRequest

// BackfillRequest embeds chunks that have no embedding yet. An empty
// TenantID covers every tenant.
type BackfillRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Limit    int    `json:"limit,omitempty" validate:"gte=0"`
}

// ListEpisodesRequest lists a tenant's episodes, oldest first, optionally
// at one compression level.
type ListEpisodesRequest struct {
	TenantID string                 `json:"tenant_id" validate:"required"`
	Level    model.CompressionLevel `json:"level,omitempty" validate:"omitempty,oneof=full summary quick_ref integrated"`
	Limit    int                    `json:"limit,omitempty" validate:"gte=0"`
}

// ListPrinciplesRequest lists a tenant's active principles, most
// confident first.
type ListPrinciplesRequest struct {
	TenantID string `json:"tenant_id" validate:"required"`
	Limit    int    `json:"limit,omitempty" validate:"gte=0"`
}

// StatsRequest reports counts for one tenant, or all when empty.
type StatsRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
}

func (RecordEventRequest) Operation() string      { return OpRecordEvent }
func (BuildContextRequest) Operation() string     { return OpBuildContext }
func (ConsolidationRequest) Operation() string    { return OpRunConsolidation }
func (GetEventRequest) Operation() string         { return OpGetEvent }
func (SearchRequest) Operation() string           { return OpSearch }
func (RecordEpisodeRequest) Operation() string    { return OpRecordEpisode }
func (PutRuleRequest) Operation() string          { return OpPutRule }
func (LinkTasksRequest) Operation() string        { return OpLinkTasks }
func (UnlinkTasksRequest) Operation() string      { return OpUnlinkTasks }
func (TaskEdgesRequest) Operation() string        { return OpTaskEdges }
func (DeleteTenantRequest) Operation() string     { return OpDeleteTenant }
func (LatestReflectionRequest) Operation() string { return OpLatestReflection }
func (ExportTenantRequest) Operation() string     { return OpExportTenant }
func (BackfillRequest) Operation() string         { return OpBackfill }
func (StatsRequest) Operation() string            { return OpStats }
func (ListEpisodesRequest) Operation() string     { return OpListEpisodes }
func (ListPrinciplesRequest) Operation() string   { return OpListPrinciples }

var requestTypes = map[string]func() Request{
	OpRecordEvent:      func() Request { return &RecordEventRequest{} },
	OpBuildContext:     func() Request { return &BuildContextRequest{} },
	OpRunConsolidation: func() Request { return &ConsolidationRequest{} },
	OpGetEvent:         func() Request { return &GetEventRequest{} },
	OpSearch:           func() Request { return &SearchRequest{} },
	OpRecordEpisode:    func() Request { return &RecordEpisodeRequest{} },
	OpPutRule:          func() Request { return &PutRuleRequest{} },
	OpLinkTasks:        func() Request { return &LinkTasksRequest{} },
	OpUnlinkTasks:      func() Request { return &UnlinkTasksRequest{} },
	OpTaskEdges:        func() Request { return &TaskEdgesRequest{} },
	OpDeleteTenant:     func() Request { return &DeleteTenantRequest{} },
	OpLatestReflection: func() Request { return &LatestReflectionRequest{} },
	OpExportTenant:     func() Request { return &ExportTenantRequest{} },
	OpBackfill:         func() Request { return &BackfillRequest{} },
	OpStats:            func() Request { return &StatsRequest{} },
	OpListEpisodes:     func() Request { return &ListEpisodesRequest{} },
	OpListPrinciples:   func() Request { return &ListPrinciplesRequest{} },
}

// Operations lists every operation name DecodeRequest accepts.
func Operations() []string {
	ops := make([]string, 0, len(requestTypes))
	for op := range requestTypes {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// DecodeRequest decodes a JSON payload into the request type for op.
// Unknown fields are rejected.
func DecodeRequest(op string, payload []byte) (Request, error) {
	mk, ok := requestTypes[op]
	if !ok {
		return nil, ValidationErrors{{Field: "op", Message: fmt.Sprintf("unknown operation %q", op)}}
	}
	req := mk()
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return nil, ValidationErrors{{Field: "payload", Message: err.Error()}}
	}
	return req, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check validates a request struct and returns ValidationErrors on failure.
func check(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{Field: fe.Field(), Message: config.FormatFieldError(fe)})
	}
	return out
}

func (r *RecordEventRequest) validate() error {
	if err := check(r); err != nil {
		return err
	}
	if len(r.Data) > 0 && !json.Valid(r.Data) {
		return ValidationErrors{{Field: "data", Message: "must be valid JSON"}}
	}
	return nil
}
