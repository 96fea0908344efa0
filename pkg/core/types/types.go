// Package types holds the small value types shared between the graph and its callers.
package types

// SearchResult is a single hit returned to callers: the external key and its
// cosine distance to the query.
type SearchResult struct {
	Key      string  `json:"key"`
	Distance float64 `json:"distance"`
}

// Candidate is the graph-internal form of a result, addressed by arena index.
type Candidate struct {
	ID       uint32
	Distance float64
}
