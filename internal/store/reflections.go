package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/working-memory/internal/model"
)

// InsertReflection stores a reflection. Reflections are never edited; a
// newer one supersedes by recency.
func (s *SQLiteStore) InsertReflection(ctx context.Context, r model.Reflection) (*model.Reflection, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	r.ID = s.newID(r.CreatedAt)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reflections (id, tenant_id, tier, period_start, period_end, session_count,
		                          summary, key_insights, themes, identity_evolution, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, string(r.Tier), formatTime(r.PeriodStart), formatTime(r.PeriodEnd),
		r.SessionCount, r.Summary, marshalList(r.KeyInsights), marshalList(r.Themes),
		r.IdentityEvolution, r.Source, formatTime(r.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert reflection: %w", err)
	}
	return &r, nil
}

// LatestReflection returns the tenant's most recent reflection.
func (s *SQLiteStore) LatestReflection(ctx context.Context, tenantID string) (*model.Reflection, error) {
	var r model.Reflection
	var tier, start, end, created string
	var insights, themes, identity sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, tier, period_start, period_end, session_count, summary,
		        key_insights, themes, identity_evolution, source, created_at
		 FROM reflections WHERE tenant_id = ?
		 ORDER BY created_at DESC, id DESC LIMIT 1`, tenantID).Scan(
		&r.ID, &r.TenantID, &tier, &start, &end, &r.SessionCount, &r.Summary,
		&insights, &themes, &identity, &r.Source, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reflection for %s: %w", tenantID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	r.Tier = model.Tier(tier)
	r.PeriodStart = parseTime(start)
	r.PeriodEnd = parseTime(end)
	r.KeyInsights = unmarshalList(insights)
	r.Themes = unmarshalList(themes)
	r.IdentityEvolution = identity.String
	r.CreatedAt = parseTime(created)
	return &r, nil
}
