package taskgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEdgeRejectsCycles(t *testing.T) {
	g := New()
	require.NoError(t, g.AddEdge("ship", "build"))
	require.NoError(t, g.AddEdge("build", "design"))
	require.NoError(t, g.AddEdge("ship", "design"))

	err := g.AddEdge("design", "ship")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCycle))

	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"ship", "design"}, ce.Path, "shortest existing path")

	assert.False(t, g.HasPath("design", "ship"), "rejected edge must not be stored")
}

func TestSelfLoopRejected(t *testing.T) {
	g := New()
	assert.ErrorIs(t, g.AddEdge("a", "a"), ErrCycle)
}

func TestStableNodeIDs(t *testing.T) {
	g := New()
	a := g.Node("a")
	b := g.Node("b")
	assert.Equal(t, a, g.Node("a"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, "b", g.Name(b))
	assert.Equal(t, 2, g.Len())
}

func TestDuplicateEdgeIsNoop(t *testing.T) {
	g := New()
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "b"))
	assert.Len(t, g.out[g.Node("a")], 1)
}

func TestPath(t *testing.T) {
	g := New()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("c", "d")

	assert.Equal(t, []string{"a", "b", "c", "d"}, g.Path("a", "d"))
	assert.Nil(t, g.Path("d", "a"))
	assert.Nil(t, g.Path("a", "missing"))
	assert.Equal(t, []string{"x"}, g.Path("x", "x"))
}

func TestDiamondIsNotACycle(t *testing.T) {
	g := New()
	require.NoError(t, g.AddEdge("top", "left"))
	require.NoError(t, g.AddEdge("top", "right"))
	require.NoError(t, g.AddEdge("left", "bottom"))
	require.NoError(t, g.AddEdge("right", "bottom"))
	assert.True(t, g.HasPath("top", "bottom"))
}
