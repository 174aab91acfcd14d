package memory

import (
	"context"
	"fmt"

	"github.com/rcliao/working-memory/internal/model"
	"github.com/rcliao/working-memory/internal/vectorindex"
)

const defaultBackfillLimit = 500

func chunkDocument(c model.Chunk, vec []float32) vectorindex.Document {
	return vectorindex.Document{
		ID:        c.ID,
		TenantID:  c.TenantID,
		Kind:      string(c.Kind),
		Vector:    vec,
		CreatedAt: c.CreatedAt,
	}
}

// embedAsync queues chunks for embedding on the worker pool. The job keeps
// the request's values but not its cancellation.
func (s *Service) embedAsync(ctx context.Context, chunks []model.Chunk) {
	if s.embedder == nil || s.index == nil || len(chunks) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	err := s.pool.Submit(func() {
		defer s.pending.Done()
		for _, c := range chunks {
			if err := s.embedChunk(ctx, c); err != nil {
				s.metrics.EmbeddingFailed()
				s.log.WarnContext(ctx, "chunk embedding failed", "chunk", c.ID, "error", err)
			}
		}
	})
	if err != nil {
		s.pending.Done()
		s.metrics.EmbeddingFailed()
		s.log.WarnContext(ctx, "embedding job rejected", "chunks", len(chunks), "error", err)
	}
}

func (s *Service) embedChunk(ctx context.Context, c model.Chunk) error {
	vec, err := s.embedder.Embed(ctx, c.Text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := s.store.SetChunkEmbedding(ctx, c.ID, vec); err != nil {
		return err
	}
	if err := s.index.Upsert(ctx, chunkDocument(c, vec)); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}

// BackfillEmbeddings synchronously embeds up to req.Limit chunks that have
// no embedding and returns how many succeeded.
func (s *Service) BackfillEmbeddings(ctx context.Context, req BackfillRequest) (int, error) {
	if err := check(req); err != nil {
		return 0, err
	}
	if s.embedder == nil || s.index == nil {
		return 0, ErrNoEmbedder
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultBackfillLimit
	}
	chunks, err := s.store.ChunksMissingEmbedding(ctx, req.TenantID, limit)
	if err != nil {
		return 0, storeErr("backfill", err)
	}
	done := 0
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if err := s.embedChunk(ctx, c); err != nil {
			s.metrics.EmbeddingFailed()
			s.log.WarnContext(ctx, "backfill embedding failed", "chunk", c.ID, "error", err)
			continue
		}
		done++
	}
	return done, nil
}
