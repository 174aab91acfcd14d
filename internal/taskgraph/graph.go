// Package taskgraph is a directed dependency graph over task ids that
// rejects edges which would close a cycle.
package taskgraph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycle is matched by every CycleError.
var ErrCycle = errors.New("taskgraph: edge would create a cycle")

// CycleError reports the existing path that a rejected edge would close.
// Path starts at the edge's target and ends at its source.
type CycleError struct {
	From, To string
	Path     []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("taskgraph: %s -> %s would create a cycle (%s -> %s)",
		e.From, e.To, strings.Join(e.Path, " -> "), e.To)
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// NodeID is a stable index into the graph's node arena.
type NodeID int

// Graph stores nodes in an arena; ids are never reused or reordered.
type Graph struct {
	index map[string]NodeID
	names []string
	out   [][]NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]NodeID)}
}

// Node returns the id for name, adding the node if needed.
func (g *Graph) Node(name string) NodeID {
	if id, ok := g.index[name]; ok {
		return id
	}
	id := NodeID(len(g.names))
	g.index[name] = id
	g.names = append(g.names, name)
	g.out = append(g.out, nil)
	return id
}

// Name returns the task id of a node.
func (g *Graph) Name(id NodeID) string { return g.names[id] }

// Len is the number of nodes.
func (g *Graph) Len() int { return len(g.names) }

// AddEdge adds from -> to after checking that no path to -> from exists.
// Adding an existing edge is a no-op.
func (g *Graph) AddEdge(from, to string) error {
	if path := g.Path(to, from); path != nil {
		return &CycleError{From: from, To: to, Path: path}
	}
	f, t := g.Node(from), g.Node(to)
	for _, n := range g.out[f] {
		if n == t {
			return nil
		}
	}
	g.out[f] = append(g.out[f], t)
	return nil
}

// HasPath reports whether to is reachable from from.
func (g *Graph) HasPath(from, to string) bool {
	return g.Path(from, to) != nil
}

// Path returns a shortest path from -> ... -> to, or nil. A node always
// reaches itself.
func (g *Graph) Path(from, to string) []string {
	if from == to {
		return []string{from}
	}
	src, ok := g.index[from]
	if !ok {
		return nil
	}
	dst, ok := g.index[to]
	if !ok {
		return nil
	}

	parent := make([]NodeID, len(g.names))
	for i := range parent {
		parent[i] = -1
	}
	parent[src] = src
	queue := []NodeID{src}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range g.out[n] {
			if parent[next] != -1 {
				continue
			}
			parent[next] = n
			if next == dst {
				return g.unwind(parent, src, dst)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func (g *Graph) unwind(parent []NodeID, src, dst NodeID) []string {
	var rev []string
	for n := dst; ; n = parent[n] {
		rev = append(rev, g.names[n])
		if n == src {
			break
		}
	}
	path := make([]string, len(rev))
	for i, name := range rev {
		path[len(rev)-1-i] = name
	}
	return path
}
