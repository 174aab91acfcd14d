package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/working-memory/internal/model"
)

const principleColumns = `p.id, p.tenant_id, p.principle, p.category, p.confidence, p.source_episodes,
	p.source_count, p.memory_strength, p.retrieval_count, p.last_retrieved_at,
	p.last_reinforced_at, p.superseded_by, p.created_at`

// InsertPrinciple stores a new semantic principle.
func (s *SQLiteStore) InsertPrinciple(ctx context.Context, p PrincipleParams) (*model.SemanticPrinciple, error) {
	if p.At.IsZero() {
		p.At = time.Now().UTC()
	}
	pr := &model.SemanticPrinciple{
		ID:               s.newID(p.At),
		TenantID:         p.TenantID,
		Principle:        p.Principle,
		Category:         p.Category,
		Confidence:       p.Confidence,
		SourceEpisodes:   p.SourceEpisodes,
		SourceCount:      len(p.SourceEpisodes),
		MemoryStrength:   1.0,
		LastReinforcedAt: p.At,
		CreatedAt:        p.At,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stamp := formatTime(p.At)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO principles (id, tenant_id, principle, category, confidence, source_episodes,
		                         source_count, memory_strength, last_reinforced_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pr.ID, pr.TenantID, pr.Principle, pr.Category, pr.Confidence,
		marshalList(pr.SourceEpisodes), pr.SourceCount, pr.MemoryStrength, stamp, stamp)
	if err != nil {
		return nil, fmt.Errorf("insert principle: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO principles_fts (principle_id, body) VALUES (?, ?)`, pr.ID, pr.Principle); err != nil {
		return nil, fmt.Errorf("index principle: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return pr, nil
}

// ReinforcePrinciple records new supporting episodes and sets the new
// confidence.
func (s *SQLiteStore) ReinforcePrinciple(ctx context.Context, id string, confidence float64, sources []string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE principles
		 SET confidence = ?, source_episodes = ?, source_count = ?, last_reinforced_at = ?
		 WHERE id = ?`,
		confidence, marshalList(sources), len(sources), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("reinforce principle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("principle %s: %w", id, ErrNotFound)
	}
	return nil
}

// SupersedePrinciple marks old as replaced by replacement.
func (s *SQLiteStore) SupersedePrinciple(ctx context.Context, old, replacement string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE principles SET superseded_by = ? WHERE id = ? AND superseded_by IS NULL`, replacement, old)
	return err
}

// GetPrinciple returns a principle by ID.
func (s *SQLiteStore) GetPrinciple(ctx context.Context, id string) (*model.SemanticPrinciple, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+principleColumns+` FROM principles p WHERE p.id = ?`, id)
	pr, err := scanPrinciple(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("principle %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// ListPrinciples returns a tenant's active principles, most confident first.
func (s *SQLiteStore) ListPrinciples(ctx context.Context, tenantID string, limit int) ([]model.SemanticPrinciple, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryPrinciples(ctx,
		`SELECT `+principleColumns+` FROM principles p
		 WHERE p.tenant_id = ? AND p.superseded_by IS NULL
		 ORDER BY p.confidence DESC, p.created_at
		 LIMIT ?`, tenantID, limit)
}

// BoostPrinciple strengthens a principle after retrieval.
func (s *SQLiteStore) BoostPrinciple(ctx context.Context, id string, boost float64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE principles
		 SET memory_strength = MAX(memory_strength, MIN(1.0, memory_strength + ?)),
		     retrieval_count = retrieval_count + 1,
		     last_retrieved_at = ?
		 WHERE id = ?`, boost, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("boost principle: %w", err)
	}
	return nil
}

// DecayPrinciples applies fn to each active principle's confidence,
// measuring elapsed time from the later of its last reinforcement and last
// decay.
func (s *SQLiteStore) DecayPrinciples(ctx context.Context, tenantID string, now time.Time, fn StrengthFunc) (int, error) {
	return s.decay(ctx, now, fn,
		`SELECT id, confidence, last_reinforced_at, last_decay_at, NULL
		 FROM principles WHERE tenant_id = ? AND superseded_by IS NULL`,
		`UPDATE principles SET confidence = ?, last_decay_at = ? WHERE id = ?`,
		tenantID)
}

func (s *SQLiteStore) queryPrinciples(ctx context.Context, query string, args ...any) ([]model.SemanticPrinciple, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SemanticPrinciple
	for rows.Next() {
		pr, err := scanPrinciple(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

func scanPrinciple(row scanner) (model.SemanticPrinciple, error) {
	var pr model.SemanticPrinciple
	var sources, lastRetrieved, superseded sql.NullString
	var reinforced, created string

	err := row.Scan(&pr.ID, &pr.TenantID, &pr.Principle, &pr.Category, &pr.Confidence, &sources,
		&pr.SourceCount, &pr.MemoryStrength, &pr.RetrievalCount, &lastRetrieved,
		&reinforced, &superseded, &created)
	if err != nil {
		return pr, err
	}
	pr.SourceEpisodes = unmarshalList(sources)
	pr.LastRetrievedAt = scanNullTime(lastRetrieved)
	pr.LastReinforcedAt = parseTime(reinforced)
	pr.SupersededBy = superseded.String
	pr.CreatedAt = parseTime(created)
	return pr, nil
}
