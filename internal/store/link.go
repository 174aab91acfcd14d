package store

import (
	"context"
	"fmt"
	"time"
)

// TaskEdge is a directed dependency: From depends on To.
type TaskEdge struct {
	TenantID  string `json:"tenant_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	CreatedAt string `json:"created_at"`
}

// AddTaskEdge inserts an edge after check approves it against the tenant's
// current edges. check runs inside the insert transaction, so two
// concurrent inserts cannot both pass against the same snapshot.
func (s *SQLiteStore) AddTaskEdge(ctx context.Context, tenantID, from, to string, check func(existing []TaskEdge) error) (*TaskEdge, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT tenant_id, from_task, to_task, created_at FROM task_edges
		 WHERE tenant_id = ? ORDER BY created_at, from_task, to_task`, tenantID)
	if err != nil {
		return nil, err
	}
	var edges []TaskEdge
	for rows.Next() {
		var e TaskEdge
		if err := rows.Scan(&e.TenantID, &e.From, &e.To, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		edges = append(edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if check != nil {
		if err := check(edges); err != nil {
			return nil, err
		}
	}

	now := formatTime(time.Now())
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO task_edges (tenant_id, from_task, to_task, created_at) VALUES (?, ?, ?, ?)`,
		tenantID, from, to, now); err != nil {
		return nil, fmt.Errorf("insert edge: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &TaskEdge{TenantID: tenantID, From: from, To: to, CreatedAt: now}, nil
}

// RemoveTaskEdge deletes an edge. Removing a missing edge is not an error.
func (s *SQLiteStore) RemoveTaskEdge(ctx context.Context, tenantID, from, to string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM task_edges WHERE tenant_id = ? AND from_task = ? AND to_task = ?`,
		tenantID, from, to)
	return err
}

// TaskEdges returns all edges touching a task, or every edge of the tenant
// when task is empty.
func (s *SQLiteStore) TaskEdges(ctx context.Context, tenantID, task string) ([]TaskEdge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id, from_task, to_task, created_at FROM task_edges
		 WHERE tenant_id = ? AND (? = '' OR from_task = ? OR to_task = ?)
		 ORDER BY created_at, from_task, to_task`, tenantID, task, task, task)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []TaskEdge
	for rows.Next() {
		var e TaskEdge
		if err := rows.Scan(&e.TenantID, &e.From, &e.To, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
