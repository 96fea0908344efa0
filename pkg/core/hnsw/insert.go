package hnsw

import (
	"github.com/sanonone/kektorindex/pkg/core/types"
)

// insert places vec under key. Must be called under the write lock; vec must
// already be owned by the graph.
func (g *Graph) insert(key string, vec []float32) {
	// Re-adding a key abandons the old node instead of updating it in place.
	g.removeLocked(key)

	level := g.randomLevel()
	id := uint32(len(g.nodes))
	node := newNode(key, vec, level, g.m)
	g.nodes = append(g.nodes, node)
	g.keyToIndex[key] = id

	if g.maxLevel < 0 {
		g.entryPoint = id
		g.maxLevel = level
		return
	}

	// Descend greedily through the layers the new node does not live on.
	ep := g.candidate(vec, g.entryPoint)
	for l := g.maxLevel; l > level; l-- {
		ep = g.greedyClosest(vec, ep, l)
	}

	entries := []types.Candidate{ep}
	for l := min(level, g.maxLevel); l >= 0; l-- {
		candidates := g.searchLayer(vec, entries, g.efConstruction, l)

		selected := selectNeighbors(g.linkCandidates(candidates), layerCapacity(g.m, l))
		for _, c := range selected {
			node.Connections[l] = append(node.Connections[l], c.ID)
		}
		for _, c := range selected {
			g.addBackEdge(c.ID, id, l)
		}

		// The whole candidate set seeds the next layer down.
		entries = candidates
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entryPoint = id
	}
}

// addBackEdge links neighbor -> id at layer level and re-prunes the neighbor
// if it went over capacity.
func (g *Graph) addBackEdge(neighbor, id uint32, level int) {
	nb := g.nodes[neighbor]
	if level >= len(nb.Connections) {
		return
	}
	nb.Connections[level] = append(nb.Connections[level], id)
	if len(nb.Connections[level]) > layerCapacity(g.m, level) {
		g.pruneNeighbors(neighbor, level)
	}
}
