// Package hnsw provides the implementation of the Hierarchical Navigable Small World
// graph algorithm for efficient approximate nearest neighbor search.
//
// This file defines the min-heap and max-heap used during graph traversal and
// construction. Both are built on container/heap and hold candidates by value.
package hnsw

import (
	"container/heap"

	"github.com/sanonone/kektorindex/pkg/core/types"
)

// minHeap keeps the nearest candidate on top. It is the frontier of nodes
// still to be expanded during a layer search.
type minHeap []types.Candidate

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return h[i].Distance < h[j].Distance }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Push adds an element to the heap. It uses a pointer receiver to modify the underlying slice.
func (h *minHeap) Push(x any) { *h = append(*h, x.(types.Candidate)) }

// Pop removes the last element of the slice; container/heap moves the top there first.
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *minHeap) push(c types.Candidate) { heap.Push(h, c) }

func (h *minHeap) pop() types.Candidate { return heap.Pop(h).(types.Candidate) }

// maxHeap keeps the farthest candidate on top. It holds the best ef results
// found so far, so the root is the "worst of the best" and the first to be
// evicted when a closer node shows up.
type maxHeap []types.Candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return h[i].Distance > h[j].Distance }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Push adds an element to the heap. It uses a pointer receiver to modify the underlying slice.
func (h *maxHeap) Push(x any) { *h = append(*h, x.(types.Candidate)) }

// Pop removes the last element of the slice; container/heap moves the top there first.
func (h *maxHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

func (h *maxHeap) push(c types.Candidate) { heap.Push(h, c) }

func (h *maxHeap) pop() types.Candidate { return heap.Pop(h).(types.Candidate) }

// peek returns the farthest retained candidate. The heap must not be empty.
func (h maxHeap) peek() types.Candidate { return h[0] }

// newMinHeap creates a new min-heap with a specified initial capacity.
func newMinHeap(capacity int) *minHeap {
	h := make(minHeap, 0, capacity)
	return &h
}

// newMaxHeap creates a new max-heap with a specified initial capacity.
func newMaxHeap(capacity int) *maxHeap {
	h := make(maxHeap, 0, capacity)
	return &h
}
