package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// PGVector is a Postgres-backed index using the pgvector extension.
type PGVector struct {
	db *sql.DB
}

// NewPGVector connects to Postgres and ensures the schema exists.
func NewPGVector(ctx context.Context, dsn string) (*PGVector, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	p := &PGVector{db: db}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PGVector) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS wm_vectors (
			id         TEXT PRIMARY KEY,
			tenant_id  TEXT NOT NULL,
			kind       TEXT NOT NULL,
			embedding  vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wm_vectors_tenant ON wm_vectors(tenant_id)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate pgvector: %w", err)
		}
	}
	return nil
}

func (p *PGVector) Upsert(ctx context.Context, doc Document) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO wm_vectors (id, tenant_id, kind, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`,
		doc.ID, doc.TenantID, doc.Kind, pgvector.NewVector(doc.Vector), doc.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert vector: %w", err)
	}
	return nil
}

func (p *PGVector) Query(ctx context.Context, tenantID string, vec []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, 1 - (embedding <=> $1) AS similarity, created_at
		 FROM wm_vectors
		 WHERE tenant_id = $2
		 ORDER BY embedding <=> $1, created_at DESC, id
		 LIMIT $3`,
		pgvector.NewVector(vec), tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var created time.Time
		if err := rows.Scan(&m.ID, &m.Similarity, &created); err != nil {
			return nil, err
		}
		m.CreatedAt = created.UTC()
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *PGVector) DeleteTenant(ctx context.Context, tenantID string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM wm_vectors WHERE tenant_id = $1`, tenantID)
	return err
}

func (p *PGVector) Close() error { return p.db.Close() }
