// Package consolidation compresses episodic memory into principles and
// reflections and applies forgetting-curve decay.
package consolidation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rcliao/working-memory/internal/config"
	"github.com/rcliao/working-memory/internal/embedding"
	"github.com/rcliao/working-memory/internal/llm"
	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/metrics"
	"github.com/rcliao/working-memory/internal/model"
	"github.com/rcliao/working-memory/internal/store"
)

// cosine similarity above which two principles are the same statement
const cosineDuplicate = 0.9

// Store is the persistence the engine needs.
type Store interface {
	ListEpisodes(ctx context.Context, f store.EpisodeFilter) ([]model.Episode, error)
	AdvanceCompression(ctx context.Context, id string, from, to model.CompressionLevel, summary string, at time.Time) (bool, error)
	SearchPrinciples(ctx context.Context, tenantID, query string, limit int) ([]model.SemanticPrinciple, error)
	InsertPrinciple(ctx context.Context, p store.PrincipleParams) (*model.SemanticPrinciple, error)
	ReinforcePrinciple(ctx context.Context, id string, confidence float64, sources []string, at time.Time) error
	InsertReflection(ctx context.Context, r model.Reflection) (*model.Reflection, error)
	DecayEpisodes(ctx context.Context, tenantID string, now time.Time, fn store.StrengthFunc) (int, error)
	DecayPrinciples(ctx context.Context, tenantID string, now time.Time, fn store.StrengthFunc) (int, error)
}

// Options configures an Engine.
type Options struct {
	Config    config.ConsolidationConfig
	Completer llm.Completer
	Embedder  embedding.Embedder
	Logger    logger.Logger
	Metrics   *metrics.Recorder
	Now       func() time.Time
}

// Engine runs consolidation passes.
type Engine struct {
	store     Store
	cfg       config.ConsolidationConfig
	extractor Extractor
	reflector Reflector
	embedder  embedding.Embedder
	log       logger.Logger
	metrics   *metrics.Recorder
	now       func() time.Time
}

// New creates an Engine. Without a completer, extraction and reflection
// are heuristic only.
func New(st Store, opts Options) *Engine {
	log := logger.OrGlobal(opts.Logger).With("component", "consolidation")
	heuristicX := HeuristicExtractor{Threshold: opts.Config.SimilarityThreshold, MinSupport: opts.Config.MinSupport}
	var x Extractor = heuristicX
	var r Reflector = HeuristicReflector{}
	if opts.Completer != nil {
		x = ExtractorWithFallback(LLMExtractor{Completer: opts.Completer}, heuristicX, log, opts.Metrics)
		r = ReflectorWithFallback(LLMReflector{Completer: opts.Completer}, HeuristicReflector{}, log, opts.Metrics)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:     st,
		cfg:       opts.Config,
		extractor: x,
		reflector: r,
		embedder:  opts.Embedder,
		log:       log,
		metrics:   opts.Metrics,
		now:       now,
	}
}

// ItemError is a per-item failure that did not abort the run.
type ItemError struct {
	Stage   string `json:"stage"`
	ItemID  string `json:"item_id,omitempty"`
	Message string `json:"message"`
}

// Result summarizes a consolidation run.
type Result struct {
	RunID              string      `json:"run_id"`
	TenantID           string      `json:"tenant_id"`
	Tier               model.Tier  `json:"tier"`
	EpisodesCollected  int         `json:"episodes_collected"`
	PrinciplesUpdated  int         `json:"principles_updated"`
	PrinciplesCreated  int         `json:"principles_created"`
	ReflectionsCreated int         `json:"reflections_created"`
	ReflectionID       string      `json:"reflection_id,omitempty"`
	ReflectionSource   string      `json:"reflection_source,omitempty"`
	EpisodesCompressed int         `json:"episodes_compressed"`
	EpisodesDecayed    int         `json:"episodes_decayed"`
	PrinciplesDecayed  int         `json:"principles_decayed"`
	Errors             []ItemError `json:"errors"`
}

type tierPlan struct {
	window          time.Duration
	from, to        model.CompressionLevel
	decayPrinciples bool
}

func (e *Engine) plan(tier model.Tier) (tierPlan, error) {
	switch tier {
	case model.TierShort:
		return tierPlan{window: e.cfg.ShortWindow, from: model.LevelFull, to: model.LevelSummary}, nil
	case model.TierMedium:
		return tierPlan{window: e.cfg.MediumWindow, from: model.LevelSummary, to: model.LevelQuickRef}, nil
	case model.TierLong:
		return tierPlan{window: e.cfg.LongWindow, from: model.LevelQuickRef, to: model.LevelIntegrated, decayPrinciples: true}, nil
	}
	return tierPlan{}, fmt.Errorf("unknown tier %q", tier)
}

// Run consolidates a tenant's episodes for one tier: collect, extract,
// reflect, compress, decay. Extraction, reflection, and compression
// failures are collected in Result.Errors; only collection and decay
// storage errors fail the run. Running twice over the same window leaves
// already-compressed episodes untouched.
func (e *Engine) Run(ctx context.Context, tenantID string, tier model.Tier) (*Result, error) {
	p, err := e.plan(tier)
	if err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer("working-memory").Start(ctx, "consolidation.Run")
	defer span.End()

	now := e.now().UTC()
	res := &Result{RunID: uuid.NewString(), TenantID: tenantID, Tier: tier, Errors: []ItemError{}}
	log := e.log.With("run_id", res.RunID, "tenant", tenantID, "tier", string(tier))

	episodes, err := e.store.ListEpisodes(ctx, store.EpisodeFilter{
		TenantID: tenantID,
		Level:    p.from,
		Since:    now.Add(-p.window),
		Until:    now.Add(time.Nanosecond),
		Limit:    e.cfg.MaxEpisodes,
	})
	if err != nil {
		return nil, fmt.Errorf("collect episodes: %w", err)
	}
	res.EpisodesCollected = len(episodes)

	if len(episodes) > 0 {
		e.extract(ctx, tenantID, episodes, now, res)
		e.reflect(ctx, tenantID, tier, episodes, now.Add(-p.window), now, res)
		e.compress(ctx, episodes, p, now, res)
	}

	n, err := e.store.DecayEpisodes(ctx, tenantID, now, ExponentialDecay(e.cfg.DecayBase))
	if err != nil {
		return res, fmt.Errorf("decay episodes: %w", err)
	}
	res.EpisodesDecayed = n
	if p.decayPrinciples {
		n, err := e.store.DecayPrinciples(ctx, tenantID, now, ExponentialDecay(e.cfg.PrincipleDecayFactor))
		if err != nil {
			return res, fmt.Errorf("decay principles: %w", err)
		}
		res.PrinciplesDecayed = n
	}

	e.metrics.ConsolidationRun(string(tier), len(res.Errors))
	span.SetAttributes(
		attribute.Int("episodes", res.EpisodesCollected),
		attribute.Int("compressed", res.EpisodesCompressed),
		attribute.Int("errors", len(res.Errors)),
	)
	log.InfoContext(ctx, "consolidation complete",
		"episodes", res.EpisodesCollected,
		"principles_updated", res.PrinciplesUpdated,
		"reflections", res.ReflectionsCreated,
		"compressed", res.EpisodesCompressed,
		"decayed", res.EpisodesDecayed,
		"errors", len(res.Errors))
	return res, nil
}

func (e *Engine) extract(ctx context.Context, tenantID string, episodes []model.Episode, now time.Time, res *Result) {
	candidates, err := e.extractor.Extract(ctx, episodes)
	if err != nil {
		res.Errors = append(res.Errors, ItemError{Stage: "extract", Message: err.Error()})
		return
	}
	for _, c := range candidates {
		created, err := e.upsertPrinciple(ctx, tenantID, c, now)
		if err != nil {
			res.Errors = append(res.Errors, ItemError{Stage: "extract", ItemID: truncateRunes(c.Principle, 60), Message: err.Error()})
			continue
		}
		switch created {
		case upsertCreated:
			res.PrinciplesCreated++
			res.PrinciplesUpdated++
		case upsertReinforced:
			res.PrinciplesUpdated++
		}
	}
}

type upsertOutcome int

const (
	upsertUnchanged upsertOutcome = iota
	upsertCreated
	upsertReinforced
)

// upsertPrinciple reinforces a near-duplicate principle or inserts a new
// one. Episodes already counted as sources do not reinforce again.
func (e *Engine) upsertPrinciple(ctx context.Context, tenantID string, c Candidate, now time.Time) (upsertOutcome, error) {
	existing, err := e.findDuplicate(ctx, tenantID, c.Principle)
	if err != nil {
		return upsertUnchanged, err
	}
	if existing == nil {
		_, err := e.store.InsertPrinciple(ctx, store.PrincipleParams{
			TenantID:       tenantID,
			Principle:      c.Principle,
			Category:       c.Category,
			Confidence:     InitialConfidence(e.cfg.InitialConfidence, e.cfg.ReinforceRate, len(c.SourceEpisodes)),
			SourceEpisodes: c.SourceEpisodes,
			At:             now,
		})
		if err != nil {
			return upsertUnchanged, err
		}
		return upsertCreated, nil
	}

	known := make(map[string]bool, len(existing.SourceEpisodes))
	for _, id := range existing.SourceEpisodes {
		known[id] = true
	}
	sources := append([]string(nil), existing.SourceEpisodes...)
	fresh := 0
	for _, id := range c.SourceEpisodes {
		if !known[id] {
			known[id] = true
			sources = append(sources, id)
			fresh++
		}
	}
	if fresh == 0 {
		return upsertUnchanged, nil
	}
	conf := Reinforce(existing.Confidence, e.cfg.ReinforceRate, fresh)
	if err := e.store.ReinforcePrinciple(ctx, existing.ID, conf, sources, now); err != nil {
		return upsertUnchanged, err
	}
	return upsertReinforced, nil
}

// findDuplicate searches principles by keyword and accepts the closest one
// whose term overlap or embedding similarity passes the threshold.
func (e *Engine) findDuplicate(ctx context.Context, tenantID, text string) (*model.SemanticPrinciple, error) {
	hits, err := e.store.SearchPrinciples(ctx, tenantID, text, 5)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	threshold := e.cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.6
	}
	t := terms(text)
	var vec embedding.Vector
	if e.embedder != nil {
		vec, _ = e.embedder.Embed(ctx, text)
	}

	var best *model.SemanticPrinciple
	var bestSim float64
	for i := range hits {
		h := &hits[i]
		if normalize(h.Principle) == normalize(text) {
			return h, nil
		}
		sim := jaccard(t, terms(h.Principle))
		ok := sim >= threshold
		if vec != nil {
			if hv, err := e.embedder.Embed(ctx, h.Principle); err == nil {
				cos := embedding.CosineSimilarity(vec, hv)
				if cos >= cosineDuplicate {
					ok = true
					sim = max(sim, cos)
				}
			}
		}
		if ok && sim > bestSim {
			best, bestSim = h, sim
		}
	}
	return best, nil
}

func (e *Engine) reflect(ctx context.Context, tenantID string, tier model.Tier, episodes []model.Episode, start, end time.Time, res *Result) {
	draft, err := e.reflector.Reflect(ctx, episodes)
	if err != nil {
		res.Errors = append(res.Errors, ItemError{Stage: "reflect", Message: err.Error()})
		return
	}
	sessions := map[string]bool{}
	for _, ep := range episodes {
		sessions[ep.SessionID] = true
	}
	r, err := e.store.InsertReflection(ctx, model.Reflection{
		TenantID:          tenantID,
		Tier:              tier,
		PeriodStart:       start,
		PeriodEnd:         end,
		SessionCount:      len(sessions),
		Summary:           draft.Summary,
		KeyInsights:       draft.KeyInsights,
		Themes:            draft.Themes,
		IdentityEvolution: draft.IdentityEvolution,
		Source:            draft.Source,
		CreatedAt:         end,
	})
	if err != nil {
		res.Errors = append(res.Errors, ItemError{Stage: "reflect", Message: err.Error()})
		return
	}
	res.ReflectionsCreated++
	res.ReflectionID = r.ID
	res.ReflectionSource = r.Source
}

func (e *Engine) compress(ctx context.Context, episodes []model.Episode, p tierPlan, now time.Time, res *Result) {
	for _, ep := range episodes {
		ok, err := e.store.AdvanceCompression(ctx, ep.ID, p.from, p.to, compressText(ep, p.to), now)
		if err != nil {
			res.Errors = append(res.Errors, ItemError{Stage: "compress", ItemID: ep.ID, Message: err.Error()})
			continue
		}
		if ok {
			res.EpisodesCompressed++
		}
	}
}
