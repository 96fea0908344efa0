package hnsw

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomVectors returns n gaussian vectors with keys "vec-0".."vec-(n-1)".
func randomVectors(seed int64, n, dim int) ([]string, [][]float32) {
	rng := rand.New(rand.NewSource(seed))
	keys := make([]string, n)
	vecs := make([][]float32, n)
	for i := 0; i < n; i++ {
		keys[i] = fmt.Sprintf("vec-%d", i)
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		vecs[i] = v
	}
	return keys, vecs
}

func newTestGraph(t testing.TB, cfg Config) *Graph {
	t.Helper()
	g, err := New(cfg)
	require.NoError(t, err)
	return g
}

func TestNewAppliesDefaults(t *testing.T) {
	g := newTestGraph(t, Config{})
	assert.Equal(t, DefaultConfig().M, g.Config().M)
	assert.Equal(t, DefaultEfConstruction, g.Config().EfConstruction)
	assert.Equal(t, DefaultEfSearch, g.Config().EfSearch)
	assert.Zero(t, g.Count())
	assert.Empty(t, g.AllKeys())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	for _, cfg := range []Config{
		{M: 1},
		{M: -3},
		{M: 1 << 30},
		{M: 8, EfConstruction: -1},
		{M: 8, EfSearch: -1},
	} {
		_, err := New(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig, "config %+v", cfg)
	}
}

func TestCountInvariant(t *testing.T) {
	g := newTestGraph(t, Config{M: 4})

	g.Add("a", []float32{1, 0, 0})
	g.Add("b", []float32{0, 1, 0})
	g.Add("c", []float32{0, 0, 1})
	require.Equal(t, 3, g.Count())

	// Re-adding does not grow Count.
	g.Add("a", []float32{0.5, 0.5, 0})
	assert.Equal(t, 3, g.Count())

	assert.True(t, g.Remove("b"))
	assert.False(t, g.Remove("b"), "second remove of the same key")
	assert.False(t, g.Remove("missing"))
	assert.Equal(t, 2, g.Count())

	assert.Equal(t, []string{"a", "c"}, g.AllKeys())
	assert.True(t, g.Contains("a"))
	assert.False(t, g.Contains("b"))

	stats := g.Stats()
	assert.Equal(t, 4, stats.Nodes)
	assert.Equal(t, 2, stats.Live)
	assert.Equal(t, 2, stats.Deleted)
}

func TestReAddReplacesVector(t *testing.T) {
	g := newTestGraph(t, Config{M: 4})
	g.Add("a", []float32{1, 0, 0})
	g.Add("b", []float32{0, 0, 1})
	g.Add("a", []float32{0, 1, 0})

	got, ok := g.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1, 0}, got)

	res := g.Search([]float32{0, 1, 0}, 1, 10)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].Key)
	assert.InDelta(t, 0.0, res[0].Distance, 1e-6)

	// The abandoned vector must not resurface under its old key.
	res = g.Search([]float32{1, 0, 0}, 3, 10)
	for _, r := range res {
		if r.Key == "a" {
			assert.InDelta(t, 1.0, r.Distance, 1e-6)
		}
	}
}

func TestVectorsAreCopied(t *testing.T) {
	g := newTestGraph(t, Config{})
	in := []float32{1, 2, 3}
	g.Add("k", in)
	in[0] = 100

	out, ok := g.Get("k")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, out)

	out[1] = 200
	again, _ := g.Get("k")
	assert.Equal(t, []float32{1, 2, 3}, again)

	_, ok = g.Get("missing")
	assert.False(t, ok)
}

func TestDegreeBound(t *testing.T) {
	const m = 6
	g := newTestGraph(t, Config{M: m, EfConstruction: 64})
	keys, vecs := randomVectors(3, 600, 12)
	for i := range keys {
		g.Add(keys[i], vecs[i])
	}
	// Some churn so pruning also runs against deleted neighbors.
	for i := 0; i < 50; i++ {
		g.Remove(keys[i*7])
		g.Add(keys[i*3], vecs[i*5])
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for i, n := range g.nodes {
		require.Len(t, n.Connections, n.Level+1)
		for l, conns := range n.Connections {
			assert.LessOrEqual(t, len(conns), layerCapacity(m, l), "node %d layer %d", i, l)
			for _, nb := range conns {
				assert.GreaterOrEqual(t, g.nodes[nb].Level, l, "node %d links to a node below layer %d", i, l)
				assert.NotEqual(t, uint32(i), nb, "self edge on node %d", i)
			}
		}
	}
}

func TestEntryPointTracksMaxLevel(t *testing.T) {
	g := newTestGraph(t, Config{M: 4})
	keys, vecs := randomVectors(5, 300, 8)
	for i := range keys {
		g.Add(keys[i], vecs[i])
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	require.GreaterOrEqual(t, g.maxLevel, 0)
	assert.Equal(t, g.maxLevel, g.nodes[g.entryPoint].Level)
	for _, n := range g.nodes {
		assert.LessOrEqual(t, n.Level, g.maxLevel)
	}
}

func TestLevelDistribution(t *testing.T) {
	g := newTestGraph(t, Config{M: 16, EfConstruction: 32})
	keys, vecs := randomVectors(11, 2000, 4)
	for i := range keys {
		g.Add(keys[i], vecs[i])
	}
	stats := g.Stats()
	require.NotEmpty(t, stats.LevelCounts)

	// P(level == 0) = 1 - 1/M = 0.9375.
	frac0 := float64(stats.LevelCounts[0]) / float64(stats.Live)
	assert.Greater(t, frac0, 0.88)
	assert.Less(t, frac0, 0.98)
	assert.Greater(t, stats.AvgDegree0, 1.0)
}

func TestDeterministicConstruction(t *testing.T) {
	keys, vecs := randomVectors(9, 250, 16)
	build := func() []byte {
		g := newTestGraph(t, Config{M: 8, EfConstruction: 50, Seed: 1234})
		for i := range keys {
			g.Add(keys[i], vecs[i])
		}
		data, err := g.Serialize()
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, build(), build())
}

func TestConcurrentAccess(t *testing.T) {
	g := newTestGraph(t, Config{M: 8, EfConstruction: 40})
	keys, vecs := randomVectors(21, 400, 16)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := w; i < len(keys); i += 4 {
				g.Add(keys[i], vecs[i])
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				res := g.Search(vecs[(i*r)%len(vecs)], 5, 20)
				assert.LessOrEqual(t, len(res), 5)
				_ = g.Count()
				_ = g.Contains(keys[i])
			}
		}(r)
	}
	wg.Wait()

	assert.Equal(t, len(keys), g.Count())
	assert.Len(t, g.AllKeys(), len(keys))
}
