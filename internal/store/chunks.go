package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/rcliao/working-memory/internal/model"
)

const chunkColumns = `c.id, c.tenant_id, c.event_id, c.session_id, c.channel, c.kind, c.sensitivity,
	c.seq, c.text, c.token_est, c.importance, c.embedding, c.created_at`

// RecentChunks returns the newest chunks of a session, newest first.
func (s *SQLiteStore) RecentChunks(ctx context.Context, tenantID, sessionID string, limit int) ([]model.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks c
		 WHERE c.tenant_id = ? AND c.session_id = ?
		 ORDER BY c.created_at DESC, c.seq DESC, c.id DESC
		 LIMIT ?`, tenantID, sessionID, limit)
}

// ChunksByIDs returns the tenant's chunks with the given IDs, in no
// particular order.
func (s *SQLiteStore) ChunksByIDs(ctx context.Context, tenantID string, ids []string) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks c
		 WHERE c.tenant_id = ? AND c.id IN (`+placeholders(len(ids))+`)`,
		stringArgs([]any{tenantID}, ids)...)
}

// DecisionChunksReferencing returns decision chunks whose events reference
// any of the given events, newest first.
func (s *SQLiteStore) DecisionChunksReferencing(ctx context.Context, tenantID string, eventIDs []string, limit int) ([]model.Chunk, error) {
	if len(eventIDs) == 0 || limit <= 0 {
		return nil, nil
	}
	args := stringArgs([]any{tenantID, string(model.KindDecision)}, eventIDs)
	args = append(args, limit)
	return s.queryChunks(ctx,
		`SELECT DISTINCT `+chunkColumns+` FROM chunks c
		 JOIN event_refs r ON r.event_id = c.event_id
		 WHERE c.tenant_id = ? AND c.kind = ? AND r.ref_id IN (`+placeholders(len(eventIDs))+`)
		 ORDER BY c.created_at DESC, c.id
		 LIMIT ?`, args...)
}

// SetChunkEmbedding stores a chunk's embedding vector.
func (s *SQLiteStore) SetChunkEmbedding(ctx context.Context, chunkID string, vec []float32) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chunks SET embedding = ? WHERE id = ?`, pgvector.NewVector(vec), chunkID)
	if err != nil {
		return fmt.Errorf("set embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	return nil
}

// ChunksMissingEmbedding returns up to limit chunks without an embedding.
// An empty tenantID matches every tenant.
func (s *SQLiteStore) ChunksMissingEmbedding(ctx context.Context, tenantID string, limit int) ([]model.Chunk, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks c
		 WHERE c.embedding IS NULL AND (? = '' OR c.tenant_id = ?)
		 ORDER BY c.created_at
		 LIMIT ?`, tenantID, tenantID, limit)
}

// EmbeddedChunks returns every chunk that has an embedding. It is used to
// warm an in-memory vector index.
func (s *SQLiteStore) EmbeddedChunks(ctx context.Context) ([]model.Chunk, error) {
	return s.queryChunks(ctx,
		`SELECT `+chunkColumns+` FROM chunks c WHERE c.embedding IS NOT NULL ORDER BY c.created_at`)
}

func (s *SQLiteStore) queryChunks(ctx context.Context, query string, args ...any) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanChunk(row scanner) (model.Chunk, error) {
	var c model.Chunk
	var channel, kind, sensitivity, created string
	var embedding sql.NullString

	err := row.Scan(&c.ID, &c.TenantID, &c.EventID, &c.SessionID, &channel, &kind, &sensitivity,
		&c.Seq, &c.Text, &c.TokenEst, &c.Importance, &embedding, &created)
	if err != nil {
		return c, err
	}
	c.Channel = model.Channel(channel)
	c.Kind = model.EventKind(kind)
	c.Sensitivity = model.Sensitivity(sensitivity)
	c.CreatedAt = parseTime(created)
	if embedding.Valid && embedding.String != "" {
		var v pgvector.Vector
		if err := v.Scan(embedding.String); err == nil {
			c.Embedding = v.Slice()
		}
	}
	return c, nil
}
