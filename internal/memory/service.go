// Package memory is the working-memory service: it validates requests at
// the boundary and drives the store, retriever, context builder, and
// consolidation engine.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/rcliao/working-memory/internal/acb"
	"github.com/rcliao/working-memory/internal/chunker"
	"github.com/rcliao/working-memory/internal/config"
	"github.com/rcliao/working-memory/internal/consolidation"
	"github.com/rcliao/working-memory/internal/embedding"
	"github.com/rcliao/working-memory/internal/llm"
	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/metrics"
	"github.com/rcliao/working-memory/internal/model"
	"github.com/rcliao/working-memory/internal/retrieval"
	"github.com/rcliao/working-memory/internal/store"
	"github.com/rcliao/working-memory/internal/taskgraph"
	"github.com/rcliao/working-memory/internal/vectorindex"
)

const defaultSearchLimit = 10

// Service is the working-memory core. It is safe for concurrent use.
type Service struct {
	cfg       *config.Config
	store     *store.SQLiteStore
	index     vectorindex.Index
	embedder  embedding.Embedder
	retriever *retrieval.Retriever
	builder   *acb.Builder
	engine    *consolidation.Engine
	pool      *ants.Pool
	pending   sync.WaitGroup
	log       logger.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

type options struct {
	completer    llm.Completer
	completerSet bool
	embedder     embedding.Embedder
	embedderSet  bool
	index        vectorindex.Index
	indexSet     bool
	logger       logger.Logger
	metrics      *metrics.Recorder
	now          func() time.Time
}

// Option customizes a Service.
type Option func(*options)

// WithCompleter overrides the configured LLM provider. A nil completer
// disables LLM consolidation.
func WithCompleter(c llm.Completer) Option {
	return func(o *options) { o.completer, o.completerSet = c, true }
}

// WithEmbedder overrides the configured embedding provider. A nil embedder
// disables vector retrieval.
func WithEmbedder(e embedding.Embedder) Option {
	return func(o *options) { o.embedder, o.embedderSet = e, true }
}

// WithIndex overrides the configured vector index backend.
func WithIndex(idx vectorindex.Index) Option {
	return func(o *options) { o.index, o.indexSet = idx, true }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(o *options) { o.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New opens the store and wires every component from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.OrGlobal(o.logger).With("component", "memory")
	if o.metrics == nil {
		o.metrics = metrics.New(cfg.Metrics.Enabled)
	}
	if o.now == nil {
		o.now = time.Now
	}

	if !o.embedderSet {
		e, err := embedding.New(cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
		o.embedder = e
	}
	if !o.completerSet {
		c, err := llm.New(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("llm: %w", err)
		}
		o.completer = c
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if !o.indexSet {
		idx, err := vectorindex.New(ctx, cfg.Vector)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("vector index: %w", err)
		}
		o.index = idx
	}

	pool, err := ants.NewPool(max(cfg.Embedding.Workers, 1), ants.WithPanicHandler(func(p any) {
		log.Error("embedding worker panicked", "panic", p)
	}))
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("worker pool: %w", err)
	}

	s := &Service{
		cfg:      cfg,
		store:    st,
		index:    o.index,
		embedder: o.embedder,
		pool:     pool,
		log:      log,
		metrics:  o.metrics,
		now:      o.now,
	}
	s.retriever = retrieval.New(st, retrieval.Options{
		K:        cfg.Scoring.RRFK,
		Embedder: o.embedder,
		Index:    o.index,
		Logger:   log,
		Metrics:  o.metrics,
	})
	s.builder = acb.New(st, s.retriever, acb.Options{
		ACB:     cfg.ACB,
		Scoring: cfg.Scoring,
		Logger:  log,
		Metrics: o.metrics,
		Now:     o.now,
	})
	s.engine = consolidation.New(st, consolidation.Options{
		Config:    cfg.Consolidation,
		Completer: o.completer,
		Embedder:  o.embedder,
		Logger:    log,
		Metrics:   o.metrics,
		Now:       o.now,
	})

	if err := s.warmIndex(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// warmIndex loads stored embeddings into an in-memory index.
func (s *Service) warmIndex(ctx context.Context) error {
	if _, ok := s.index.(*vectorindex.Chromem); !ok || s.embedder == nil {
		return nil
	}
	chunks, err := s.store.EmbeddedChunks(ctx)
	if err != nil {
		return fmt.Errorf("warm index: %w", err)
	}
	loaded := 0
	for _, c := range chunks {
		if len(c.Embedding) != s.embedder.Dims() {
			continue
		}
		if err := s.index.Upsert(ctx, chunkDocument(c, c.Embedding)); err != nil {
			return fmt.Errorf("warm index: %w", err)
		}
		loaded++
	}
	if loaded > 0 {
		s.log.Debug("vector index warmed", "chunks", loaded)
	}
	return nil
}

// Close waits for pending embeddings and releases every resource.
func (s *Service) Close() error {
	s.Flush()
	s.pool.Release()
	var errs []error
	if s.index != nil {
		errs = append(errs, s.index.Close())
	}
	if c, ok := s.embedder.(*embedding.CachedEmbedder); ok {
		c.Close()
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// Flush blocks until every queued embedding job has finished.
func (s *Service) Flush() {
	s.pending.Wait()
}

// Metrics returns the recorder the service reports to.
func (s *Service) Metrics() *metrics.Recorder { return s.metrics }

// RecordEvent validates and stores an event with its chunks. Chunks are
// searchable by keyword on return; embeddings follow asynchronously and
// their failure never fails the write.
func (s *Service) RecordEvent(ctx context.Context, req RecordEventRequest) (*RecordEventResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Sensitivity == "" {
		req.Sensitivity = model.SensitivityNone
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	ev := model.Event{
		TenantID:    req.TenantID,
		SessionID:   req.SessionID,
		Channel:     req.Channel,
		Actor:       model.Actor{Type: req.ActorType, ID: req.ActorID},
		Kind:        req.Kind,
		Sensitivity: req.Sensitivity,
		Tags:        req.Tags,
		Content:     req.Content,
		Data:        req.Data,
		Refs:        req.Refs,
		TaskID:      req.TaskID,
		CreatedAt:   req.CreatedAt.UTC(),
	}
	stored, chunks, err := s.store.InsertEvent(ctx, store.EventParams{
		Event:      ev,
		Importance: chunker.Importance(req.Kind, req.Tags, req.Importance),
		Chunking:   chunker.DefaultOptions(),
	})
	if err != nil {
		return nil, storeErr("record event", err)
	}
	s.metrics.EventRecorded(string(req.Kind))
	s.embedAsync(ctx, chunks)

	res := &RecordEventResult{EventID: stored.ID, ChunkIDs: make([]string, len(chunks))}
	for i, c := range chunks {
		res.ChunkIDs[i] = c.ID
	}
	return res, nil
}

// BuildContext assembles an active context bundle within req.MaxTokens.
func (s *Service) BuildContext(ctx context.Context, req BuildContextRequest) (*model.ACB, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	bundle, err := s.builder.Build(ctx, acb.Request{
		TenantID:  req.TenantID,
		SessionID: req.SessionID,
		AgentID:   req.AgentID,
		Channel:   req.Channel,
		Intent:    req.Intent,
		Query:     req.Query,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, storeErr("build context", err)
	}
	return bundle, nil
}

// RunConsolidation runs one tier for a tenant. Per-item failures are in
// the result; only storage failures during decay are returned.
func (s *Service) RunConsolidation(ctx context.Context, req ConsolidationRequest) (*consolidation.Result, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	res, err := s.engine.Run(ctx, req.TenantID, req.Tier)
	if err != nil {
		return res, storeErr("consolidate", err)
	}
	return res, nil
}

// GetEvent returns an event or ErrNotFound.
func (s *Service) GetEvent(ctx context.Context, req GetEventRequest) (*model.Event, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	ev, err := s.store.GetEvent(ctx, req.EventID)
	if err != nil {
		return nil, storeErr("get event", err)
	}
	return ev, nil
}

// Search returns chunk ids ranked by reciprocal rank fusion of keyword and
// vector search.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}
	res, err := s.retriever.Search(ctx, req.TenantID, req.Query, limit)
	if err != nil {
		return nil, storeErr("search", err)
	}
	out := &SearchResult{
		ChunkIDs:       make([]string, len(res.Hits)),
		Scores:         make([]float64, len(res.Hits)),
		KeywordHits:    res.KeywordCount,
		VectorHits:     res.VectorCount,
		VectorDegraded: res.VectorDegraded,
	}
	for i, h := range res.Hits {
		out.ChunkIDs[i] = h.ID
		out.Scores[i] = h.Score
	}
	chunks, err := s.store.ChunksByIDs(ctx, req.TenantID, out.ChunkIDs)
	if err != nil {
		return nil, storeErr("search", err)
	}
	byID := make(map[string]model.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}
	for _, id := range out.ChunkIDs {
		if c, ok := byID[id]; ok {
			out.Chunks = append(out.Chunks, c)
		}
	}
	return out, nil
}

// RecordEpisode stores an episode at full compression and strength 1.
func (s *Service) RecordEpisode(ctx context.Context, req RecordEpisodeRequest) (*model.Episode, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = s.now()
	}
	ep, err := s.store.InsertEpisode(ctx, store.EpisodeParams{
		TenantID:     req.TenantID,
		SessionID:    req.SessionID,
		WhatHappened: req.WhatHappened,
		WhatNoticed:  req.WhatNoticed,
		WhatLearned:  req.WhatLearned,
		Becoming:     req.Becoming,
		Significance: req.Significance,
		Tags:         req.Tags,
		CreatedAt:    req.CreatedAt.UTC(),
	})
	if err != nil {
		return nil, storeErr("record episode", err)
	}
	return ep, nil
}

// PutRule stores a rule for the always-included rules section.
func (s *Service) PutRule(ctx context.Context, req PutRuleRequest) (*model.Rule, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	r, err := s.store.InsertRule(ctx, store.RuleParams{
		TenantID: req.TenantID,
		AgentID:  req.AgentID,
		Channel:  req.Channel,
		Text:     req.Text,
		Priority: req.Priority,
		At:       s.now().UTC(),
	})
	if err != nil {
		return nil, storeErr("put rule", err)
	}
	return r, nil
}

// LinkTasks records that From depends on To. The edge is rejected with
// ErrCycle when To already reaches From.
func (s *Service) LinkTasks(ctx context.Context, req LinkTasksRequest) (*store.TaskEdge, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	edge, err := s.store.AddTaskEdge(ctx, req.TenantID, req.From, req.To, func(existing []store.TaskEdge) error {
		g := taskgraph.New()
		for _, e := range existing {
			if err := g.AddEdge(e.From, e.To); err != nil {
				return fmt.Errorf("stored task graph: %w", err)
			}
		}
		return g.AddEdge(req.From, req.To)
	})
	if err != nil {
		return nil, storeErr("link tasks", err)
	}
	return edge, nil
}

// UnlinkTasks removes an edge; removing a missing edge succeeds.
func (s *Service) UnlinkTasks(ctx context.Context, req UnlinkTasksRequest) error {
	if err := check(req); err != nil {
		return err
	}
	return storeErr("unlink tasks", s.store.RemoveTaskEdge(ctx, req.TenantID, req.From, req.To))
}

// TaskEdges lists dependency edges.
func (s *Service) TaskEdges(ctx context.Context, req TaskEdgesRequest) ([]store.TaskEdge, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	edges, err := s.store.TaskEdges(ctx, req.TenantID, req.Task)
	if err != nil {
		return nil, storeErr("task edges", err)
	}
	return edges, nil
}

// DeleteTenant removes every record of a tenant, including its vectors.
func (s *Service) DeleteTenant(ctx context.Context, req DeleteTenantRequest) (*store.DeleteCounts, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	s.Flush()
	counts, err := s.store.DeleteTenant(ctx, req.TenantID)
	if err != nil {
		return nil, storeErr("delete tenant", err)
	}
	if s.index != nil {
		if err := s.index.DeleteTenant(ctx, req.TenantID); err != nil {
			return counts, storeErr("delete tenant vectors", err)
		}
	}
	s.log.InfoContext(ctx, "tenant deleted", "tenant", req.TenantID, "events", counts.Events)
	return counts, nil
}

// LatestReflection returns the newest reflection or ErrNotFound.
func (s *Service) LatestReflection(ctx context.Context, req LatestReflectionRequest) (*model.Reflection, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	r, err := s.store.LatestReflection(ctx, req.TenantID)
	if err != nil {
		return nil, storeErr("latest reflection", err)
	}
	return r, nil
}

// ExportTenant returns every event of a tenant, oldest first.
func (s *Service) ExportTenant(ctx context.Context, req ExportTenantRequest) ([]model.Event, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	events, err := s.store.ExportEvents(ctx, req.TenantID)
	if err != nil {
		return nil, storeErr("export", err)
	}
	return events, nil
}

// Stats reports record counts.
func (s *Service) Stats(ctx context.Context, req StatsRequest) (*store.Stats, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	st, err := s.store.Stats(ctx, s.cfg.Store.Path, req.TenantID)
	if err != nil {
		return nil, storeErr("stats", err)
	}
	return st, nil
}

// ListEpisodes lists episodes for inspection.
func (s *Service) ListEpisodes(ctx context.Context, req ListEpisodesRequest) ([]model.Episode, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	eps, err := s.store.ListEpisodes(ctx, store.EpisodeFilter{TenantID: req.TenantID, Level: req.Level, Limit: req.Limit})
	if err != nil {
		return nil, storeErr("list episodes", err)
	}
	return eps, nil
}

// ListPrinciples lists active principles for inspection.
func (s *Service) ListPrinciples(ctx context.Context, req ListPrinciplesRequest) ([]model.SemanticPrinciple, error) {
	if err := check(req); err != nil {
		return nil, err
	}
	prs, err := s.store.ListPrinciples(ctx, req.TenantID, req.Limit)
	if err != nil {
		return nil, storeErr("list principles", err)
	}
	return prs, nil
}
