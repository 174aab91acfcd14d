package retrieval

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/working-memory/internal/embedding"
	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/metrics"
	"github.com/rcliao/working-memory/internal/store"
	"github.com/rcliao/working-memory/internal/vectorindex"
)

// ErrVectorUnavailable marks a search that ran without the vector list.
var ErrVectorUnavailable = errors.New("vector search unavailable")

// KeywordSearcher ranks chunks by full-text relevance.
type KeywordSearcher interface {
	SearchChunks(ctx context.Context, tenantID, query string, limit int) ([]store.ChunkHit, error)
}

// Options configures a Retriever.
type Options struct {
	K        int
	Embedder embedding.Embedder
	Index    vectorindex.Index
	Logger   logger.Logger
	Metrics  *metrics.Recorder
}

// Retriever runs keyword and vector search concurrently and fuses them.
type Retriever struct {
	keyword  KeywordSearcher
	embedder embedding.Embedder
	index    vectorindex.Index
	k        int
	log      logger.Logger
	metrics  *metrics.Recorder
}

// New creates a Retriever. Embedder and Index may be nil; search then runs
// keyword-only and reports the vector list as degraded.
func New(keyword KeywordSearcher, opts Options) *Retriever {
	k := opts.K
	if k <= 0 {
		k = DefaultK
	}
	return &Retriever{
		keyword:  keyword,
		embedder: opts.Embedder,
		index:    opts.Index,
		k:        k,
		log:      logger.OrGlobal(opts.Logger),
		metrics:  opts.Metrics,
	}
}

// Result is a fused, truncated candidate list.
type Result struct {
	Hits           []Fused
	KeywordCount   int
	VectorCount    int
	VectorDegraded bool
	VectorError    error
}

// Search returns up to limit chunk ids for the query. Each list draws a
// pool of 3*limit candidates before fusion. Vector failures degrade to
// keyword-only; keyword failures are returned.
func (r *Retriever) Search(ctx context.Context, tenantID, query string, limit int) (*Result, error) {
	res := &Result{}
	if limit <= 0 || query == "" {
		return res, nil
	}
	ctx, span := otel.Tracer("working-memory").Start(ctx, "retrieval.Search")
	defer span.End()

	pool := limit * 3
	var keyword, vector []Candidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.keyword.SearchChunks(gctx, tenantID, query, pool)
		if err != nil {
			return fmt.Errorf("keyword search: %w", err)
		}
		keyword = make([]Candidate, 0, len(hits))
		for _, h := range hits {
			keyword = append(keyword, Candidate{ID: h.ChunkID, CreatedAt: h.CreatedAt})
		}
		return nil
	})
	g.Go(func() error {
		cands, err := r.vectorSearch(gctx, tenantID, query, pool)
		if err != nil {
			res.VectorDegraded = true
			res.VectorError = err
			return nil
		}
		vector = cands
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if res.VectorDegraded {
		r.metrics.ChannelDegraded("vector")
		if !errors.Is(res.VectorError, ErrVectorUnavailable) {
			r.log.WarnContext(ctx, "vector search degraded", "tenant", tenantID, "error", res.VectorError)
		}
	}

	res.KeywordCount = len(keyword)
	res.VectorCount = len(vector)
	fused := FuseRRF(r.k, keyword, vector)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	res.Hits = fused
	span.SetAttributes(
		attribute.Int("keyword", res.KeywordCount),
		attribute.Int("vector", res.VectorCount),
		attribute.Bool("vector_degraded", res.VectorDegraded),
	)
	return res, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, tenantID, query string, limit int) ([]Candidate, error) {
	if r.embedder == nil || r.index == nil {
		return nil, ErrVectorUnavailable
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := r.index.Query(ctx, tenantID, vec, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		out = append(out, Candidate{ID: m.ID, CreatedAt: m.CreatedAt})
	}
	return out, nil
}
