package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/kektorindex/pkg/core/distance"
	"github.com/sanonone/kektorindex/pkg/core/hnsw"
	"github.com/sanonone/kektorindex/pkg/core/types"
	"github.com/sanonone/kektorindex/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Chunk is one unit of text (or a ready vector) for UpsertBatch.
type Chunk struct {
	// Key is generated (UUID) when empty.
	Key  string `json:"key,omitempty"`
	Text string `json:"text,omitempty"`
	// Vector skips the embedder when set.
	Vector []float32 `json:"vector,omitempty"`
}

// ChunkKey returns the key of the n-th chunk of a document. Keys of one
// document sort together and in chunk order, which RemoveDocument relies on.
func ChunkKey(docID string, n int) string {
	return fmt.Sprintf("%s#%06d", docID, n)
}

// Upsert embeds text and stores it under key, replacing any previous entry.
func (e *Engine) Upsert(ctx context.Context, key, text string) error {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return err
	}
	return e.UpsertVector(key, vec)
}

// UpsertVector stores vec under key, replacing any previous entry.
func (e *Engine) UpsertVector(key string, vec []float32) error {
	if key == "" {
		return ErrEmptyKey
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Checked under mu: Close flips the flag while holding it, so a write that
	// gets past here lands before the final snapshot.
	if e.isClosed() {
		return ErrClosed
	}
	if err := e.checkDimensionLocked(vec, true); err != nil {
		return err
	}
	e.graph.Add(key, vec)
	e.keys.Insert(key)

	e.dirtyCounter.Add(1)
	metrics.InsertsTotal.WithLabelValues(e.name).Inc()
	metrics.LiveVectors.WithLabelValues(e.name).Set(float64(e.keys.Len()))
	return nil
}

// UpsertBatch embeds the chunks concurrently and inserts them in input
// order. It returns the key of every chunk, generated ones included.
//
// If any embedding fails nothing is inserted. A dimension error during the
// insert phase stops the batch; the keys inserted so far are returned with it.
func (e *Engine) UpsertBatch(ctx context.Context, chunks []Chunk) ([]string, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}

	keys := make([]string, len(chunks))
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.BatchConcurrency)
	for i, c := range chunks {
		keys[i] = c.Key
		if keys[i] == "" {
			keys[i] = uuid.NewString()
		}
		if len(c.Vector) > 0 {
			vectors[i] = c.Vector
			continue
		}
		g.Go(func() error {
			vec, err := e.embed(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("chunk %s: %w", keys[i], err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range chunks {
		if err := e.UpsertVector(keys[i], vectors[i]); err != nil {
			return keys[:i], fmt.Errorf("chunk %s: %w", keys[i], err)
		}
	}
	return keys, nil
}

// IndexDocument splits text with the configured Chunker and stores the
// pieces under ChunkKey(docID, 0..n-1). Chunks left over from a longer
// previous version of the document are removed afterwards, so a failed
// embedding leaves the old version intact.
func (e *Engine) IndexDocument(ctx context.Context, docID, text string) ([]string, error) {
	if docID == "" {
		return nil, ErrEmptyKey
	}
	pieces := e.opts.Chunker.Split(text)
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{Key: ChunkKey(docID, i), Text: p}
	}

	keys, err := e.UpsertBatch(ctx, chunks)
	if err != nil {
		return keys, err
	}

	stale := e.removeChunksFrom(docID, len(pieces))
	slog.Debug("Document indexed", "doc", docID, "chunks", len(keys), "stale_removed", stale)
	return keys, nil
}

// Remove soft-deletes key. It returns false if the key was not live.
func (e *Engine) Remove(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isClosed() {
		return false
	}
	return e.removeLocked(key)
}

func (e *Engine) removeLocked(key string) bool {
	if !e.graph.Remove(key) {
		return false
	}
	e.keys.Delete(key)

	e.dirtyCounter.Add(1)
	metrics.RemovalsTotal.WithLabelValues(e.name).Inc()
	metrics.LiveVectors.WithLabelValues(e.name).Set(float64(e.keys.Len()))
	return true
}

// RemoveDocument removes every chunk key of docID (see ChunkKey) and returns
// how many were removed.
func (e *Engine) RemoveDocument(docID string) int {
	return e.removeChunksFrom(docID, 0)
}

// removeChunksFrom removes the chunks of docID numbered n and above.
func (e *Engine) removeChunksFrom(docID string, n int) int {
	prefix := docID + "#"
	pivot := prefix
	if n > 0 {
		pivot = ChunkKey(docID, n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isClosed() {
		return 0
	}

	var matched []string
	e.keys.Ascend(pivot, func(k string) bool {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
		// Keys of another document such as "a#b#000000" share the prefix of "a".
		if isChunkSuffix(k[len(prefix):]) {
			matched = append(matched, k)
		}
		return true
	})
	removed := 0
	for _, k := range matched {
		if e.removeLocked(k) {
			removed++
		}
	}
	return removed
}

// isChunkSuffix reports whether s is the sequence number ChunkKey appends.
func isChunkSuffix(s string) bool {
	if len(s) != 6 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Query embeds text and returns its k nearest entries.
func (e *Engine) Query(ctx context.Context, text string, k, efSearch int) ([]types.SearchResult, error) {
	vec, err := e.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return e.search(vec, k, efSearch, "text")
}

// QueryVector returns the k nearest entries to vec. efSearch <= 0 uses the
// graph default.
func (e *Engine) QueryVector(vec []float32, k, efSearch int) ([]types.SearchResult, error) {
	return e.search(vec, k, efSearch, "vector")
}

func (e *Engine) search(vec []float32, k, efSearch int, kind string) ([]types.SearchResult, error) {
	e.mu.RLock()
	err := e.checkDimensionLocked(vec, false)
	e.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := e.graph.Search(vec, k, efSearch)
	metrics.SearchDuration.WithLabelValues(e.name).Observe(time.Since(start).Seconds())
	metrics.SearchesTotal.WithLabelValues(e.name, kind).Inc()
	return results, nil
}

// checkDimensionLocked validates len(vec). With adopt set, the first vector
// of an index without a fixed dimension defines it.
func (e *Engine) checkDimensionLocked(vec []float32, adopt bool) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrDimensionMismatch)
	}
	if e.dimension == 0 {
		if adopt {
			e.dimension = len(vec)
		}
		return nil
	}
	if len(vec) != e.dimension {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), e.dimension)
	}
	return nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	if e.embedder == nil {
		return nil, ErrNoEmbedder
	}
	return e.embedder.Embed(ctx, text)
}

// Get returns a copy of the vector stored under key.
func (e *Engine) Get(key string) ([]float32, bool) {
	return e.graph.Get(key)
}

// Contains reports whether key is live.
func (e *Engine) Contains(key string) bool {
	return e.graph.Contains(key)
}

// Keys returns the live keys in ascending order.
func (e *Engine) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, e.keys.Len())
	e.keys.Scan(func(k string) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}

// Count returns the number of live entries.
func (e *Engine) Count() int {
	return e.graph.Count()
}

// Stats summarizes the engine state.
type Stats struct {
	Graph        hnsw.Stats  `json:"graph"`
	GraphConfig  hnsw.Config `json:"graph_config"`
	Dimension    int         `json:"dimension"`
	Dirty        int64       `json:"dirty"`
	LastSave     time.Time   `json:"last_save"`
	Kernel       string      `json:"kernel"`
	SnapshotPath string      `json:"snapshot_path"`
}

// Stats returns a snapshot of engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	dim := e.dimension
	e.mu.RUnlock()

	e.adminMu.Lock()
	lastSave := e.lastSaveTime
	e.adminMu.Unlock()

	return Stats{
		Graph:        e.graph.Stats(),
		GraphConfig:  e.graph.Config(),
		Dimension:    dim,
		Dirty:        e.dirtyCounter.Load(),
		LastSave:     lastSave,
		Kernel:       distance.Kernel(),
		SnapshotPath: e.snapshot.Path,
	}
}
