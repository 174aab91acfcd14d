package embedding

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/working-memory/internal/config"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Vector
		expected float64
		delta    float64
	}{
		{"identical", Vector{1, 0, 0}, Vector{1, 0, 0}, 1.0, 0.001},
		{"orthogonal", Vector{1, 0, 0}, Vector{0, 1, 0}, 0.0, 0.001},
		{"opposite", Vector{1, 0, 0}, Vector{-1, 0, 0}, -1.0, 0.001},
		{"similar", Vector{1, 1, 0}, Vector{1, 0, 0}, 0.707, 0.01},
		{"empty", Vector{}, Vector{}, 0.0, 0.001},
		{"different lengths", Vector{1, 0}, Vector{1, 0, 0}, 0.0, 0.001},
		{"zero vector", Vector{0, 0, 0}, Vector{1, 0, 0}, 0.0, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.expected) > tt.delta {
				t.Errorf("CosineSimilarity(%v, %v) = %f, want %f (±%f)", tt.a, tt.b, got, tt.expected, tt.delta)
			}
		})
	}
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(128)
	assert.Equal(t, 128, e.Dims())

	a, err := e.Embed(ctx, "The deploy failed because the cache was cold")
	require.NoError(t, err)
	b, _ := e.Embed(ctx, "the DEPLOY failed because the cache was cold!")
	c, _ := e.Embed(ctx, "Lunch options near the office")

	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-6, "case and punctuation should not matter")
	assert.Greater(t, CosineSimilarity(a, b), CosineSimilarity(a, c))

	var norm float64
	for _, v := range a {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-4)

	empty, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Len(t, empty, 128)
}

type countingEmbedder struct {
	calls atomic.Int32
}

func (c *countingEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	c.calls.Add(1)
	return Vector{float32(len(text))}, nil
}

func (c *countingEmbedder) Dims() int { return 1 }

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{}
	c, err := NewCachedEmbedder(inner, 16)
	require.NoError(t, err)
	defer c.Close()

	v1, err := c.Embed(ctx, "hello")
	require.NoError(t, err)
	c.Wait()
	v2, err := c.Embed(ctx, "hello")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, c.Dims())
}

func TestNew(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "none"})
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = New(config.EmbeddingConfig{Provider: "hash", Dims: 32})
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)
	assert.Equal(t, 32, e.Dims())

	e, err = New(config.EmbeddingConfig{Provider: "hash", Dims: 32, CacheSize: 8})
	require.NoError(t, err)
	assert.IsType(t, &CachedEmbedder{}, e)

	_, err = New(config.EmbeddingConfig{Provider: "bogus"})
	assert.Error(t, err)
}
