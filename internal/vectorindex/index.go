// Package vectorindex stores chunk embeddings for similarity search,
// partitioned by tenant.
package vectorindex

import (
	"context"
	"fmt"
	"time"

	"github.com/rcliao/working-memory/internal/config"
)

// Document is one embedded record.
type Document struct {
	ID        string
	TenantID  string
	Kind      string
	Vector    []float32
	CreatedAt time.Time
}

// Match is a similarity hit. Higher Similarity is closer.
type Match struct {
	ID         string
	Similarity float64
	CreatedAt  time.Time
}

// Index is a tenant-partitioned nearest-neighbor index. Query never returns
// documents of another tenant.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	Query(ctx context.Context, tenantID string, vec []float32, limit int) ([]Match, error)
	DeleteTenant(ctx context.Context, tenantID string) error
	Close() error
}

// New opens the backend named by cfg. It returns nil, nil when the index
// is disabled.
func New(ctx context.Context, cfg config.VectorConfig) (Index, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "chromem":
		return NewChromem(), nil
	case "pgvector":
		pg, err := NewPGVector(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}
