package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/working-memory/internal/embedding"
	"github.com/rcliao/working-memory/internal/logger"
	"github.com/rcliao/working-memory/internal/store"
	"github.com/rcliao/working-memory/internal/vectorindex"
)

type fakeKeyword struct {
	hits []store.ChunkHit
	err  error
}

func (f *fakeKeyword) SearchChunks(_ context.Context, _, _ string, limit int) ([]store.ChunkHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) (embedding.Vector, error) {
	return nil, errors.New("model offline")
}
func (failingEmbedder) Dims() int { return 8 }

func keywordHits(ids ...string) []store.ChunkHit {
	now := time.Now()
	out := make([]store.ChunkHit, len(ids))
	for i, id := range ids {
		out[i] = store.ChunkHit{ChunkID: id, Rank: i + 1, CreatedAt: now}
	}
	return out
}

func TestSearchHybrid(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewHashEmbedder(64)
	idx := vectorindex.NewChromem()

	for id, text := range map[string]string{
		"c1": "postgres connection pool exhausted",
		"c2": "lunch menu for friday",
		"c3": "database connections leaking under load",
	} {
		vec, _ := emb.Embed(ctx, text)
		require.NoError(t, idx.Upsert(ctx, vectorindex.Document{ID: id, TenantID: "t1", Vector: vec, CreatedAt: time.Now()}))
	}

	r := New(&fakeKeyword{hits: keywordHits("c1", "c4")}, Options{Embedder: emb, Index: idx, Logger: logger.NewNop()})
	res, err := r.Search(ctx, "t1", "postgres connection pool", 10)
	require.NoError(t, err)

	assert.False(t, res.VectorDegraded)
	assert.Equal(t, 2, res.KeywordCount)
	assert.Equal(t, 3, res.VectorCount)
	require.NotEmpty(t, res.Hits)
	assert.Equal(t, "c1", res.Hits[0].ID, "present in both lists")
}

func TestSearchVectorFailureDegrades(t *testing.T) {
	r := New(&fakeKeyword{hits: keywordHits("a", "b")}, Options{
		Embedder: failingEmbedder{},
		Index:    vectorindex.NewChromem(),
		Logger:   logger.NewNop(),
	})
	res, err := r.Search(context.Background(), "t1", "anything", 5)
	require.NoError(t, err)
	assert.True(t, res.VectorDegraded)
	assert.Error(t, res.VectorError)
	assert.Equal(t, []string{"a", "b"}, ids(res.Hits))
}

func TestSearchWithoutVectorIndex(t *testing.T) {
	r := New(&fakeKeyword{hits: keywordHits("a")}, Options{Logger: logger.NewNop()})
	res, err := r.Search(context.Background(), "t1", "anything", 5)
	require.NoError(t, err)
	assert.True(t, res.VectorDegraded)
	assert.ErrorIs(t, res.VectorError, ErrVectorUnavailable)
	assert.Len(t, res.Hits, 1)
}

func TestSearchKeywordFailureReturned(t *testing.T) {
	boom := errors.New("disk I/O error")
	r := New(&fakeKeyword{err: boom}, Options{Logger: logger.NewNop()})
	_, err := r.Search(context.Background(), "t1", "anything", 5)
	assert.ErrorIs(t, err, boom)
}

func TestSearchLimitAndEmptyQuery(t *testing.T) {
	r := New(&fakeKeyword{hits: keywordHits("a", "b", "c", "d")}, Options{Logger: logger.NewNop()})

	res, err := r.Search(context.Background(), "t1", "q", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(res.Hits))

	res, err = r.Search(context.Background(), "t1", "", 2)
	require.NoError(t, err)
	assert.Empty(t, res.Hits)
}
