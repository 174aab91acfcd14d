package store

import (
	"context"
	"fmt"

	"github.com/rcliao/working-memory/internal/model"
)

// ExportEvents returns a tenant's events, oldest first.
func (s *SQLiteStore) ExportEvents(ctx context.Context, tenantID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE tenant_id = ? ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteCounts reports what a tenant cascade removed.
type DeleteCounts struct {
	Events      int64 `json:"events"`
	Chunks      int64 `json:"chunks"`
	Episodes    int64 `json:"episodes"`
	Principles  int64 `json:"principles"`
	Reflections int64 `json:"reflections"`
	Rules       int64 `json:"rules"`
	TaskEdges   int64 `json:"task_edges"`
}

// DeleteTenant removes every record owned by a tenant in one transaction.
// This is the only path that deletes events.
func (s *SQLiteStore) DeleteTenant(ctx context.Context, tenantID string) (*DeleteCounts, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var counts DeleteCounts
	steps := []struct {
		dest  *int64
		query string
	}{
		{&counts.Chunks, `DELETE FROM chunks WHERE tenant_id = ?`},
		{nil, `DELETE FROM event_refs WHERE event_id IN (SELECT id FROM events WHERE tenant_id = ?)`},
		{&counts.Events, `DELETE FROM events WHERE tenant_id = ?`},
		{nil, `DELETE FROM episodes_fts WHERE episode_id IN (SELECT id FROM episodes WHERE tenant_id = ?)`},
		{&counts.Episodes, `DELETE FROM episodes WHERE tenant_id = ?`},
		{nil, `DELETE FROM principles_fts WHERE principle_id IN (SELECT id FROM principles WHERE tenant_id = ?)`},
		{&counts.Principles, `DELETE FROM principles WHERE tenant_id = ?`},
		{&counts.Reflections, `DELETE FROM reflections WHERE tenant_id = ?`},
		{&counts.Rules, `DELETE FROM rules WHERE tenant_id = ?`},
		{&counts.TaskEdges, `DELETE FROM task_edges WHERE tenant_id = ?`},
	}
	for _, st := range steps {
		res, err := tx.ExecContext(ctx, st.query, tenantID)
		if err != nil {
			return nil, fmt.Errorf("delete tenant: %w", err)
		}
		if st.dest != nil {
			*st.dest, _ = res.RowsAffected()
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &counts, nil
}
