package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Global collectors, registered on the default registry by promauto.
// Every vector metric is labeled by index_name so several engines can share
// a process.

var (
	// Vectors written through Upsert, UpsertVector and UpsertBatch.
	InsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kektorindex_inserts_total",
			Help: "Total number of vectors inserted or replaced",
		},
		[]string{"index_name"},
	)

	// Soft deletes that hit a live key.
	RemovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kektorindex_removals_total",
			Help: "Total number of vectors soft-deleted",
		},
		[]string{"index_name"},
	)

	// Queries, split by whether the engine had to embed text first.
	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kektorindex_searches_total",
			Help: "Total number of k-nearest queries",
		},
		[]string{"index_name", "kind"},
	)

	// Graph traversal time only; embedding latency is not included.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kektorindex_search_duration_seconds",
			Help:    "Duration of graph searches in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"index_name"},
	)

	LiveVectors = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kektorindex_vectors_live",
			Help: "Number of live (non-deleted) vectors",
		},
		[]string{"index_name"},
	)

	SnapshotSaveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kektorindex_snapshot_save_duration_seconds",
			Help:    "Time spent serializing and writing snapshots",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"index_name"},
	)

	SnapshotBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kektorindex_snapshot_bytes",
			Help: "Size of the last snapshot written",
		},
		[]string{"index_name"},
	)

	// Outcome is "ok" or "error".
	EmbeddingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kektorindex_embedding_requests_total",
			Help: "Total number of embedding requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

// ObserveEmbedding records the outcome of one embedding call.
func ObserveEmbedding(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	EmbeddingRequestsTotal.WithLabelValues(provider, outcome).Inc()
}
