// Package hnsw provides the implementation of the Hierarchical Navigable Small World
// (HNSW) graph algorithm for approximate nearest neighbor search.
//
// A Graph stores vectors under string keys and answers k-nearest queries by
// cosine distance. Deletes are soft: the node stays in the arena and keeps its
// edges, so indices are stable for the lifetime of the instance. A reload from
// Serialize output naturally compacts the arena.
//
// All methods are safe for concurrent use. A single sync.RWMutex guards the
// whole graph: Add, Remove and Deserialize take the write lock, everything
// else takes the read lock.
package hnsw

import (
	"math"
	"math/rand"
	"slices"
	"sync"
)

// Graph is the hierarchical graph structure.
type Graph struct {
	// Global mutex for concurrency control. Inserts serialize against each
	// other and against all reads.
	mu sync.RWMutex

	m              int
	efConstruction int
	efSearch       int
	seed           int64

	// ml is the level multiplier, 1/ln(M).
	ml  float64
	rng *rand.Rand

	// Arena of nodes in insertion order. Indices are never reused.
	nodes []*Node
	// External key -> arena index for live nodes only.
	keyToIndex map[string]uint32

	entryPoint uint32
	// maxLevel is -1 while the graph is empty.
	maxLevel int

	visitedPool sync.Pool
}

// New creates an empty graph. Zero-valued Config fields take their defaults.
func New(cfg Config) (*Graph, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		m:              cfg.M,
		efConstruction: cfg.EfConstruction,
		efSearch:       cfg.EfSearch,
		seed:           cfg.Seed,
		rng:            rand.New(rand.NewSource(cfg.Seed)),
	}
	g.visitedPool = sync.Pool{
		New: func() any { return NewBitSet(1024) },
	}
	g.reset(cfg.M, cfg.EfConstruction)
	return g, nil
}

// reset empties the graph and applies the given structural parameters.
// Must be called under the write lock (or before the graph is shared).
func (g *Graph) reset(m, efConstruction int) {
	g.m = m
	g.efConstruction = efConstruction
	g.ml = 1.0 / math.Log(float64(m))
	g.nodes = make([]*Node, 0, 1024)
	g.keyToIndex = make(map[string]uint32)
	g.entryPoint = 0
	g.maxLevel = -1
}

// Config returns the parameters the graph currently runs with.
func (g *Graph) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Config{M: g.m, EfConstruction: g.efConstruction, EfSearch: g.efSearch, Seed: g.seed}
}

// Add inserts vector under key, replacing any live entry with the same key.
// The graph keeps its own copy of vector.
//
// Add performs no dimension validation: vectors of a different length are
// simply at maximal distance from everything else.
func (g *Graph) Add(key string, vector []float32) {
	vec := make([]float32, len(vector))
	copy(vec, vector)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.insert(key, vec)
}

// Remove soft-deletes key. It returns false if no live entry existed.
func (g *Graph) Remove(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeLocked(key)
}

func (g *Graph) removeLocked(key string) bool {
	idx, ok := g.keyToIndex[key]
	if !ok {
		return false
	}
	g.nodes[idx].Deleted = true
	delete(g.keyToIndex, key)
	return true
}

// Contains reports whether key has a live entry.
func (g *Graph) Contains(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.keyToIndex[key]
	return ok
}

// Count returns the number of live entries.
func (g *Graph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.keyToIndex)
}

// AllKeys returns a sorted snapshot of the live keys.
func (g *Graph) AllKeys() []string {
	g.mu.RLock()
	keys := make([]string, 0, len(g.keyToIndex))
	for k := range g.keyToIndex {
		keys = append(keys, k)
	}
	g.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Get returns a copy of the vector stored under key.
func (g *Graph) Get(key string) ([]float32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	idx, ok := g.keyToIndex[key]
	if !ok {
		return nil, false
	}
	src := g.nodes[idx].Vector
	out := make([]float32, len(src))
	copy(out, src)
	return out, true
}

// Stats describes the shape of the graph.
type Stats struct {
	// Nodes is the arena size, deleted nodes included.
	Nodes int `json:"nodes"`
	// Live is the number of addressable entries.
	Live int `json:"live"`
	// Deleted is the number of soft-deleted nodes still held in the arena.
	Deleted  int `json:"deleted"`
	MaxLevel int `json:"max_level"`
	// EntryPoint is the key of the node every traversal starts from.
	EntryPoint string `json:"entry_point"`
	// LevelCounts[l] is the number of live nodes whose top layer is l.
	LevelCounts []int `json:"level_counts"`
	// AvgDegree0 is the mean layer-0 neighbor count over live nodes.
	AvgDegree0 float64 `json:"avg_degree0"`
}

// Stats returns a snapshot of graph statistics.
func (g *Graph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Stats{
		Nodes:    len(g.nodes),
		Live:     len(g.keyToIndex),
		MaxLevel: g.maxLevel,
	}
	s.Deleted = s.Nodes - s.Live
	if g.maxLevel < 0 {
		return s
	}
	s.EntryPoint = g.nodes[g.entryPoint].Key
	s.LevelCounts = make([]int, g.maxLevel+1)

	var degreeSum int
	for _, n := range g.nodes {
		if n.Deleted {
			continue
		}
		s.LevelCounts[n.Level]++
		degreeSum += len(n.Connections[0])
	}
	if s.Live > 0 {
		s.AvgDegree0 = float64(degreeSum) / float64(s.Live)
	}
	return s
}

// randomLevel draws a level with P(level >= l) = exp(-l / ml).
func (g *Graph) randomLevel() int {
	// 1 - [0,1) is in (0,1], so the log is finite.
	r := 1.0 - g.rng.Float64()
	return int(math.Floor(-math.Log(r) * g.ml))
}
