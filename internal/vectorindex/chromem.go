package vectorindex

import (
	"context"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

const timeLayout = time.RFC3339Nano

// Chromem is an in-process index with one chromem collection per tenant.
type Chromem struct {
	db          *chromem.DB
	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromem creates an empty in-memory index.
func NewChromem() *Chromem {
	return &Chromem{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func collectionName(tenantID string) string {
	return "tenant_" + tenantID
}

func (c *Chromem) collection(tenantID string, create bool) (*chromem.Collection, error) {
	c.mu.RLock()
	col, ok := c.collections[tenantID]
	c.mu.RUnlock()
	if ok || !create {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[tenantID]; ok {
		return col, nil
	}
	// embeddings are always supplied, so no embedding func
	col, err := c.db.GetOrCreateCollection(collectionName(tenantID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	c.collections[tenantID] = col
	return col, nil
}

func (c *Chromem) Upsert(ctx context.Context, doc Document) error {
	if len(doc.Vector) == 0 {
		return fmt.Errorf("document %s has no vector", doc.ID)
	}
	col, err := c.collection(doc.TenantID, true)
	if err != nil {
		return err
	}
	err = col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.ID,
		Embedding: doc.Vector,
		Metadata: map[string]string{
			"kind":       doc.Kind,
			"created_at": doc.CreatedAt.UTC().Format(timeLayout),
		},
	})
	if err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (c *Chromem) Query(ctx context.Context, tenantID string, vec []float32, limit int) ([]Match, error) {
	col, err := c.collection(tenantID, false)
	if err != nil || col == nil {
		return nil, err
	}
	// chromem rejects nResults above the collection size
	n := min(limit, col.Count())
	if n <= 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, vec, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		created, _ := time.Parse(timeLayout, r.Metadata["created_at"])
		matches = append(matches, Match{
			ID:         r.ID,
			Similarity: float64(r.Similarity),
			CreatedAt:  created,
		})
	}
	return matches, nil
}

func (c *Chromem) DeleteTenant(_ context.Context, tenantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collections[tenantID]; !ok {
		return nil
	}
	delete(c.collections, tenantID)
	return c.db.DeleteCollection(collectionName(tenantID))
}

func (c *Chromem) Close() error { return nil }
