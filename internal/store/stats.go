package store

import (
	"context"
	"os"

	"github.com/rcliao/working-memory/internal/model"
)

// Stats holds database statistics.
type Stats struct {
	DBPath         string                         `json:"db_path"`
	DBSizeBytes    int64                          `json:"db_size_bytes"`
	TenantID       string                         `json:"tenant_id,omitempty"`
	Events         int                            `json:"events"`
	Chunks         int                            `json:"chunks"`
	EmbeddedChunks int                            `json:"embedded_chunks"`
	Episodes       map[model.CompressionLevel]int `json:"episodes"`
	Principles     int                            `json:"principles"`
	Reflections    int                            `json:"reflections"`
	Rules          int                            `json:"rules"`
	TaskEdges      int                            `json:"task_edges"`
	Tenants        []TenantStats                  `json:"tenants,omitempty"`
}

// TenantStats holds per-tenant counts.
type TenantStats struct {
	TenantID string `json:"tenant_id"`
	Events   int    `json:"events"`
	Sessions int    `json:"sessions"`
}

// Stats returns statistics for one tenant, or the whole database when
// tenantID is empty.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath, tenantID string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, TenantID: tenantID}
	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	counts := []struct {
		dest  *int
		query string
	}{
		{&st.Events, `SELECT COUNT(*) FROM events WHERE (? = '' OR tenant_id = ?)`},
		{&st.Chunks, `SELECT COUNT(*) FROM chunks WHERE (? = '' OR tenant_id = ?)`},
		{&st.EmbeddedChunks, `SELECT COUNT(*) FROM chunks WHERE embedding IS NOT NULL AND (? = '' OR tenant_id = ?)`},
		{&st.Principles, `SELECT COUNT(*) FROM principles WHERE superseded_by IS NULL AND (? = '' OR tenant_id = ?)`},
		{&st.Reflections, `SELECT COUNT(*) FROM reflections WHERE (? = '' OR tenant_id = ?)`},
		{&st.Rules, `SELECT COUNT(*) FROM rules WHERE (? = '' OR tenant_id = ?)`},
		{&st.TaskEdges, `SELECT COUNT(*) FROM task_edges WHERE (? = '' OR tenant_id = ?)`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, tenantID, tenantID).Scan(c.dest); err != nil {
			return st, err
		}
	}

	levels, err := s.EpisodeLevelCounts(ctx, tenantID)
	if err != nil {
		return st, err
	}
	st.Episodes = levels

	if tenantID != "" {
		return st, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, COUNT(*), COUNT(DISTINCT session_id)
		FROM events GROUP BY tenant_id ORDER BY COUNT(*) DESC`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var ts TenantStats
		if err := rows.Scan(&ts.TenantID, &ts.Events, &ts.Sessions); err != nil {
			return st, err
		}
		st.Tenants = append(st.Tenants, ts)
	}
	return st, rows.Err()
}
