package hnsw

import (
	"github.com/sanonone/kektorindex/pkg/core/distance"
	"github.com/sanonone/kektorindex/pkg/core/types"
)

// Search returns up to k live entries nearest to query, closest first.
// efSearch <= 0 selects the graph's default; the effective candidate list
// size is max(efSearch, k). An empty graph yields an empty slice.
func (g *Graph) Search(query []float32, k, efSearch int) []types.SearchResult {
	if k <= 0 {
		return []types.SearchResult{}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.maxLevel < 0 {
		return []types.SearchResult{}
	}
	if efSearch <= 0 {
		efSearch = g.efSearch
	}
	ef := max(efSearch, k)

	// 1) Greedy descent through the upper layers.
	ep := g.candidate(query, g.entryPoint)
	for l := g.maxLevel; l > 0; l-- {
		ep = g.greedyClosest(query, ep, l)
	}

	// 2) Bounded best-first search on the base layer.
	candidates := g.searchLayer(query, []types.Candidate{ep}, ef, 0)

	live := candidates[:0]
	for _, c := range candidates {
		if !g.nodes[c.ID].Deleted {
			live = append(live, c)
		}
	}
	sortCandidates(live)
	if len(live) > k {
		live = live[:k]
	}

	results := make([]types.SearchResult, len(live))
	for i, c := range live {
		results[i] = types.SearchResult{Key: g.nodes[c.ID].Key, Distance: c.Distance}
	}
	return results
}

func (g *Graph) candidate(query []float32, id uint32) types.Candidate {
	return types.Candidate{ID: id, Distance: distance.Cosine(query, g.nodes[id].Vector)}
}

// greedyClosest walks layer `level` from entry, always moving to the neighbor
// strictly closer to query, and returns the node where no neighbor improves.
func (g *Graph) greedyClosest(query []float32, entry types.Candidate, level int) types.Candidate {
	best := entry
	for {
		node := g.nodes[best.ID]
		if level >= len(node.Connections) {
			return best
		}
		improved := false
		for _, nb := range node.Connections[level] {
			if d := distance.Cosine(query, g.nodes[nb].Vector); d < best.Distance {
				best = types.Candidate{ID: nb, Distance: d}
				improved = true
			}
		}
		if !improved {
			return best
		}
	}
}

// searchLayer runs the bounded best-first expansion of one layer starting
// from entries and returns up to ef retained candidates in no particular
// order. Deleted nodes are expanded and retained like any other; callers
// filter them.
func (g *Graph) searchLayer(query []float32, entries []types.Candidate, ef, level int) []types.Candidate {
	visited := g.visitedPool.Get().(*BitSet)
	defer func() {
		visited.Clear()
		g.visitedPool.Put(visited)
	}()
	visited.EnsureCapacity(uint32(len(g.nodes)))

	frontier := newMinHeap(ef)
	results := newMaxHeap(ef + 1)

	for _, e := range entries {
		if visited.Has(e.ID) {
			continue
		}
		visited.Add(e.ID)
		frontier.push(e)
		results.push(e)
		if results.Len() > ef {
			results.pop()
		}
	}

	for frontier.Len() > 0 {
		current := frontier.pop()

		// Nothing left in the frontier can beat the worst retained result.
		if current.Distance > results.peek().Distance {
			break
		}

		node := g.nodes[current.ID]
		if level >= len(node.Connections) {
			continue
		}

		for _, nb := range node.Connections[level] {
			if visited.Has(nb) {
				continue
			}
			visited.Add(nb)

			d := distance.Cosine(query, g.nodes[nb].Vector)
			if results.Len() < ef || d < results.peek().Distance {
				c := types.Candidate{ID: nb, Distance: d}
				frontier.push(c)
				results.push(c)
				if results.Len() > ef {
					results.pop() // evict the farthest
				}
			}
		}
	}

	out := make([]types.Candidate, results.Len())
	copy(out, *results)
	return out
}
