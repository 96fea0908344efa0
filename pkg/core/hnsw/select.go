package hnsw

import (
	"cmp"
	"slices"

	"github.com/sanonone/kektorindex/pkg/core/distance"
	"github.com/sanonone/kektorindex/pkg/core/types"
)

// sortCandidates orders candidates by ascending distance. The sort is stable,
// so equal distances keep their input order.
func sortCandidates(candidates []types.Candidate) {
	slices.SortStableFunc(candidates, func(a, b types.Candidate) int {
		return cmp.Compare(a.Distance, b.Distance)
	})
}

// selectNeighbors keeps the `capacity` closest candidates. This is the plain
// closest-M rule, not the diversity-aware heuristic of the HNSW paper.
// candidates is reordered in place.
func selectNeighbors(candidates []types.Candidate, capacity int) []types.Candidate {
	sortCandidates(candidates)
	if len(candidates) > capacity {
		return candidates[:capacity]
	}
	return candidates
}

// linkCandidates returns the candidates a new node may be wired to: the live
// ones, or every candidate when the neighborhood is entirely soft-deleted so
// the new node stays reachable.
func (g *Graph) linkCandidates(candidates []types.Candidate) []types.Candidate {
	live := make([]types.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !g.nodes[c.ID].Deleted {
			live = append(live, c)
		}
	}
	if len(live) == 0 {
		return append(live, candidates...)
	}
	return live
}

// pruneNeighbors re-runs neighbor selection over the current layer-`level`
// list of node id, bringing it back to the layer capacity.
func (g *Graph) pruneNeighbors(id uint32, level int) {
	node := g.nodes[id]
	conns := node.Connections[level]

	candidates := make([]types.Candidate, len(conns))
	for i, nb := range conns {
		candidates[i] = types.Candidate{ID: nb, Distance: distance.Cosine(node.Vector, g.nodes[nb].Vector)}
	}
	selected := selectNeighbors(candidates, layerCapacity(g.m, level))

	conns = conns[:0]
	for _, c := range selected {
		conns = append(conns, c.ID)
	}
	node.Connections[level] = conns
}
