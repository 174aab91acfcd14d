// Package acb assembles active context bundles: it gathers candidates from
// every channel, scores them, packs them under the token budget, and
// strengthens the memories that made it in.
package acb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/working-memory/internal/chunker"
	"github.com/rcliao/working-memory/internal/config"
	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/metrics"
	"github.com/rcliao/working-memory/internal/model"
	"github.com/rcliao/working-memory/internal/packer"
	"github.com/rcliao/working-memory/internal/retrieval"
	"github.com/rcliao/working-memory/internal/scoring"
)

// Source is the read and boost surface of the store.
type Source interface {
	RulesFor(ctx context.Context, tenantID, agentID string, channel model.Channel) ([]model.Rule, error)
	RecentChunks(ctx context.Context, tenantID, sessionID string, limit int) ([]model.Chunk, error)
	ChunksByIDs(ctx context.Context, tenantID string, ids []string) ([]model.Chunk, error)
	DecisionChunksReferencing(ctx context.Context, tenantID string, eventIDs []string, limit int) ([]model.Chunk, error)
	SearchEpisodes(ctx context.Context, tenantID, query string, limit int) ([]model.Episode, error)
	SearchPrinciples(ctx context.Context, tenantID, query string, limit int) ([]model.SemanticPrinciple, error)
	BoostEpisode(ctx context.Context, id string, boost float64, at time.Time) error
	BoostPrinciple(ctx context.Context, id string, boost float64, at time.Time) error
}

// Searcher is the hybrid retriever.
type Searcher interface {
	Search(ctx context.Context, tenantID, query string, limit int) (*retrieval.Result, error)
}

// Request is a context-assembly call.
type Request struct {
	TenantID  string
	SessionID string
	AgentID   string
	Channel   model.Channel
	Intent    string
	Query     string
	MaxTokens int
}

// Options configures a Builder.
type Options struct {
	ACB     config.ACBConfig
	Scoring config.ScoringConfig
	Logger  logger.Logger
	Metrics *metrics.Recorder
	Now     func() time.Time
}

// Builder assembles ACBs. It holds no per-request state and is safe for
// concurrent use.
type Builder struct {
	src     Source
	search  Searcher
	cfg     config.ACBConfig
	scoring config.ScoringConfig
	log     logger.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// New creates a Builder.
func New(src Source, search Searcher, opts Options) *Builder {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{
		src:     src,
		search:  search,
		cfg:     opts.ACB,
		scoring: opts.Scoring,
		log:     logger.OrGlobal(opts.Logger).With("component", "acb"),
		metrics: opts.Metrics,
		now:     now,
	}
}

// candidates collects what each channel returned.
type candidates struct {
	mu         sync.Mutex
	degraded   []string
	rules      []model.Rule
	recent     []model.Chunk
	evidence   []model.Chunk
	fused      map[string]retrieval.Fused
	episodes   []model.Episode
	principles []model.SemanticPrinciple
	decisions  []model.Chunk
	retrieval  *retrieval.Result
}

func (c *candidates) degrade(channel string) {
	c.mu.Lock()
	c.degraded = append(c.degraded, channel)
	c.mu.Unlock()
}

// Build assembles a bundle. Channel failures shrink the bundle and are
// recorded in its provenance; they are not returned. The sum of section
// token estimates never exceeds req.MaxTokens.
func (b *Builder) Build(ctx context.Context, req Request) (*model.ACB, error) {
	if req.MaxTokens <= 0 {
		return nil, packer.ErrInvalidBudget
	}
	start := time.Now()
	ctx, span := otel.Tracer("working-memory").Start(ctx, "acb.Build")
	defer span.End()

	c := b.gather(ctx, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := b.now().UTC()
	scorer := scoring.New(b.scoring.WeightsFor(req.Intent), b.scoring.RecencyHalfLife, now)
	sections, used, err := packer.Pack(req.MaxTokens, b.items(c, req, scorer))
	if err != nil {
		return nil, err
	}

	bundle := &model.ACB{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		SessionID:    req.SessionID,
		BudgetTokens: req.MaxTokens,
		TokenUsedEst: used,
		Sections:     sections,
		Provenance: model.Provenance{
			Intent:     req.Intent,
			Profile:    b.scoring.ProfileFor(req.Intent),
			Query:      req.Query,
			Candidates: c.counts(),
			Degraded:   c.degraded,
			BuiltAt:    now,
		},
	}
	if c.retrieval != nil {
		bundle.Provenance.VectorDegraded = c.retrieval.VectorDegraded
	}

	b.boost(ctx, sections, now)

	b.metrics.ACBBuilt(used, time.Since(start))
	span.SetAttributes(attribute.Int("budget", req.MaxTokens), attribute.Int("used", used))
	b.log.DebugContext(ctx, "context built",
		"tenant", req.TenantID, "session", req.SessionID,
		"budget", req.MaxTokens, "used", used, "degraded", c.degraded)
	return bundle, nil
}

// gather fetches every channel concurrently, then the decisions that
// reference what was found.
func (b *Builder) gather(ctx context.Context, req Request) *candidates {
	c := &candidates{}
	limit := max(b.cfg.RetrievalLimit, 1)

	var g errgroup.Group
	g.Go(func() error {
		rules, err := b.src.RulesFor(ctx, req.TenantID, req.AgentID, req.Channel)
		if err != nil {
			b.fail(ctx, c, "rules", err)
			return nil
		}
		c.rules = rules
		return nil
	})
	g.Go(func() error {
		recent, err := b.src.RecentChunks(ctx, req.TenantID, req.SessionID, b.cfg.RecentWindow)
		if err != nil {
			b.fail(ctx, c, "recent_window", err)
			return nil
		}
		c.recent = visible(recent, req.Channel)
		return nil
	})
	if req.Query != "" {
		g.Go(func() error {
			res, err := b.search.Search(ctx, req.TenantID, req.Query, limit)
			if err != nil {
				b.fail(ctx, c, "retrieval", err)
				return nil
			}
			c.retrieval = res
			ids := make([]string, len(res.Hits))
			c.fused = make(map[string]retrieval.Fused, len(res.Hits))
			for i, h := range res.Hits {
				ids[i] = h.ID
				c.fused[h.ID] = h
			}
			chunks, err := b.src.ChunksByIDs(ctx, req.TenantID, ids)
			if err != nil {
				b.fail(ctx, c, "retrieval", err)
				return nil
			}
			c.evidence = visible(chunks, req.Channel)
			return nil
		})
		g.Go(func() error {
			eps, err := b.src.SearchEpisodes(ctx, req.TenantID, req.Query, b.cfg.DecisionsLimit)
			if err != nil {
				b.fail(ctx, c, "episodes", err)
				return nil
			}
			c.episodes = eps
			return nil
		})
		g.Go(func() error {
			prs, err := b.src.SearchPrinciples(ctx, req.TenantID, req.Query, b.cfg.DecisionsLimit)
			if err != nil {
				b.fail(ctx, c, "principles", err)
				return nil
			}
			c.principles = prs
			return nil
		})
	}
	g.Wait()

	eventIDs := referencedEvents(c.recent, c.evidence)
	if len(eventIDs) > 0 && b.cfg.DecisionsLimit > 0 && ctx.Err() == nil {
		decisions, err := b.src.DecisionChunksReferencing(ctx, req.TenantID, eventIDs, b.cfg.DecisionsLimit)
		if err != nil {
			b.fail(ctx, c, "decisions", err)
		} else {
			c.decisions = visible(decisions, req.Channel)
		}
	}
	return c
}

func (b *Builder) fail(ctx context.Context, c *candidates, channel string, err error) {
	if ctx.Err() != nil {
		return
	}
	c.degrade(channel)
	b.metrics.ChannelDegraded(channel)
	b.log.WarnContext(ctx, "context channel failed", "channel", channel, "error", err)
}

func (c *candidates) counts() map[string]int {
	out := map[string]int{
		"rules":      len(c.rules),
		"recent":     len(c.recent),
		"evidence":   len(c.evidence),
		"episodes":   len(c.episodes),
		"principles": len(c.principles),
		"decisions":  len(c.decisions),
	}
	if c.retrieval != nil {
		out["keyword"] = c.retrieval.KeywordCount
		out["vector"] = c.retrieval.VectorCount
	}
	return out
}

// items turns candidates into scored items per section.
func (b *Builder) items(c *candidates, req Request, s *scoring.Scorer) map[model.SectionName][]model.Item {
	out := make(map[model.SectionName][]model.Item, len(model.SectionOrder))

	for _, r := range c.rules {
		out[model.SectionRules] = append(out[model.SectionRules], model.Item{
			ID: r.ID, Type: model.ItemRule, Text: r.Text, TokenEst: r.TokenEst,
			Score: r.Priority, CreatedAt: r.CreatedAt,
		})
	}

	// the recent window is unscored; the packer orders equal scores newest first
	for _, ch := range c.recent {
		out[model.SectionRecent] = append(out[model.SectionRecent], chunkItem(ch, model.ItemChunk, 0))
	}

	var top float64
	for _, f := range c.fused {
		top = max(top, f.Score)
	}
	for _, ch := range c.evidence {
		rankNorm := 0.0
		if top > 0 {
			rankNorm = c.fused[ch.ID].Score / top
		}
		score := s.Score(scoring.Features{RankNorm: rankNorm, Importance: ch.Importance, Strength: 1, CreatedAt: ch.CreatedAt})
		out[model.SectionEvidence] = append(out[model.SectionEvidence], chunkItem(ch, model.ItemChunk, score))
	}

	for _, ch := range c.decisions {
		score := s.Score(scoring.Features{RankNorm: 1, Importance: ch.Importance, Strength: 1, CreatedAt: ch.CreatedAt})
		out[model.SectionDecisions] = append(out[model.SectionDecisions], chunkItem(ch, model.ItemDecision, score))
	}
	k := float64(b.scoring.RRFK)
	for i, ep := range c.episodes {
		text := ep.Text()
		score := s.Score(scoring.Features{
			RankNorm:   (k + 1) / (k + float64(i+1)),
			Importance: ep.Significance,
			Strength:   ep.MemoryStrength,
			CreatedAt:  ep.CreatedAt,
		})
		out[model.SectionDecisions] = append(out[model.SectionDecisions], model.Item{
			ID: ep.ID, Type: model.ItemEpisode, Text: text, TokenEst: chunker.EstimateTokens(text),
			Score: score, CreatedAt: ep.CreatedAt,
		})
	}
	for i, p := range c.principles {
		score := s.Score(scoring.Features{
			RankNorm:   (k + 1) / (k + float64(i+1)),
			Importance: p.Confidence,
			Strength:   p.MemoryStrength,
			CreatedAt:  p.LastReinforcedAt,
		})
		out[model.SectionDecisions] = append(out[model.SectionDecisions], model.Item{
			ID: p.ID, Type: model.ItemPrinciple, Text: p.Principle, TokenEst: chunker.EstimateTokens(p.Principle),
			Score: score, CreatedAt: p.CreatedAt,
		})
	}
	return out
}

// boost strengthens included episodes and principles. Failures are logged
// only; the bundle is already built.
func (b *Builder) boost(ctx context.Context, sections []model.Section, now time.Time) {
	if b.cfg.Boost <= 0 {
		return
	}
	for _, sec := range sections {
		for _, it := range sec.Items {
			var err error
			switch it.Type {
			case model.ItemEpisode:
				err = b.src.BoostEpisode(ctx, it.ID, b.cfg.Boost, now)
			case model.ItemPrinciple:
				err = b.src.BoostPrinciple(ctx, it.ID, b.cfg.Boost, now)
			default:
				continue
			}
			if err != nil {
				b.log.WarnContext(ctx, "strength boost failed", "item", it.ID, "type", string(it.Type), "error", err)
			}
		}
	}
}

func chunkItem(ch model.Chunk, typ model.ItemType, score float64) model.Item {
	return model.Item{
		ID:        ch.ID,
		Type:      typ,
		Text:      ch.Text,
		TokenEst:  ch.TokenEst,
		Score:     score,
		EventID:   ch.EventID,
		CreatedAt: ch.CreatedAt,
	}
}

// visible drops chunks whose sensitivity forbids the request channel.
func visible(chunks []model.Chunk, ch model.Channel) []model.Chunk {
	out := chunks[:0:0]
	for _, c := range chunks {
		if c.Sensitivity.VisibleOn(ch) {
			out = append(out, c)
		}
	}
	return out
}

func referencedEvents(lists ...[]model.Chunk) []string {
	seen := map[string]bool{}
	var ids []string
	for _, l := range lists {
		for _, c := range l {
			if !seen[c.EventID] {
				seen[c.EventID] = true
				ids = append(ids, c.EventID)
			}
		}
	}
	return ids
}

// String renders a bundle as plain text sections, for prompts and logs.
func String(a *model.ACB) string {
	var sb strings.Builder
	for _, sec := range a.Sections {
		if len(sec.Items) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "## %s (%d tokens)\n", sec.Name, sec.TokenEst)
		for _, it := range sec.Items {
			sb.WriteString("- ")
			sb.WriteString(it.Text)
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
