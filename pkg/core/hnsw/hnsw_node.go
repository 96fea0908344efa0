// Package hnsw provides the implementation of the Hierarchical Navigable Small World
// graph algorithm for efficient approximate nearest neighbor search.
//
// This file defines the Node struct, the fundamental building block of the
// graph. Each node holds one vector and its connections across layers.
package hnsw

// Node represents a single vector within the HNSW graph.
type Node struct {
	// Key is the user-facing identifier (typically a chunk key).
	Key string
	// Vector is the graph's own copy of the inserted vector.
	Vector []float32
	// Level is the highest layer this node participates in.
	Level int
	// Connections[l] holds the arena indices of the node's neighbors at layer l,
	// for l in 0..Level. A neighbor at layer l always has Level >= l.
	Connections [][]uint32
	// Deleted marks a soft delete: the node stays in the arena and keeps its
	// edges so traversal can pass through it, but it is never returned.
	Deleted bool
}

func newNode(key string, vector []float32, level, m int) *Node {
	n := &Node{
		Key:         key,
		Vector:      vector,
		Level:       level,
		Connections: make([][]uint32, level+1),
	}
	for l := range n.Connections {
		n.Connections[l] = make([]uint32, 0, layerCapacity(m, l))
	}
	return n
}

// layerCapacity is the maximum neighbor count at layer l: 2*M at the base
// layer, M above it.
func layerCapacity(m, l int) int {
	if l == 0 {
		return 2 * m
	}
	return m
}
