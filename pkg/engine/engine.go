// Package engine provides the high-level, embedded interface for kektorindex.
//
// It ties an in-memory HNSW graph to an embedding provider and to a snapshot
// file on disk, providing a thread-safe index that can be used directly
// within Go applications.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	idx, err := engine.Open(opts, embedder)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sanonone/kektorindex/pkg/config"
	"github.com/sanonone/kektorindex/pkg/core/hnsw"
	"github.com/sanonone/kektorindex/pkg/core/text"
	"github.com/sanonone/kektorindex/pkg/embeddings"
	"github.com/sanonone/kektorindex/pkg/metrics"
	"github.com/sanonone/kektorindex/pkg/persistence"
	"github.com/tidwall/btree"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNoEmbedder is returned by text operations on an engine opened without an embedder.
	ErrNoEmbedder = errors.New("no embedder configured")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("engine is closed")
	// ErrEmptyKey is returned when a vector is upserted under "".
	ErrEmptyKey = errors.New("empty key")
)

// Options configures the Engine: where the snapshot lives, the graph
// parameters and the automatic save policy.
type Options struct {
	// Dir is created automatically if it does not exist.
	Dir string
	// SnapshotName is the snapshot file name inside Dir (default "index.kis").
	SnapshotName string

	// Dimension fixes the vector length. 0 adopts the length of the first
	// vector inserted (or loaded).
	Dimension int

	Graph hnsw.Config

	// AutoSaveInterval defines how much time must pass since the last save
	// before a new snapshot is triggered (if AutoSaveThreshold is also met).
	// Set to 0 to disable auto-saving.
	AutoSaveInterval time.Duration
	// AutoSaveThreshold defines how many write operations must occur before
	// a new snapshot is triggered.
	AutoSaveThreshold int64

	// BatchConcurrency bounds the parallel embedding calls of UpsertBatch.
	BatchConcurrency int

	// Chunker splits documents passed to IndexDocument.
	Chunker text.Chunker
}

// DefaultOptions returns a standard configuration suitable for most use cases.
//
// Defaults:
//   - Dir: provided path
//   - SnapshotName: "index.kis"
//   - AutoSave: every 30s if at least 100 changes occurred
//   - BatchConcurrency: 4
//   - Chunker: 500 runes, 50 overlap
func DefaultOptions(dir string) Options {
	return Options{
		Dir:               dir,
		SnapshotName:      "index.kis",
		Graph:             hnsw.DefaultConfig(),
		AutoSaveInterval:  30 * time.Second,
		AutoSaveThreshold: 100,
		BatchConcurrency:  4,
		Chunker:           text.DefaultChunker(),
	}
}

// OptionsFromConfig maps a loaded configuration onto engine options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Dir:               cfg.DataDir,
		SnapshotName:      cfg.SnapshotName,
		Dimension:         cfg.Dimension,
		Graph:             cfg.Graph,
		AutoSaveInterval:  cfg.AutoSave.Interval,
		AutoSaveThreshold: int64(cfg.AutoSave.Threshold),
		BatchConcurrency:  cfg.BatchConcurrency,
		Chunker:           cfg.Chunking,
	}
}

// Engine is the main entry point for kektorindex.
// It coordinates the in-memory graph, the embedder and the snapshot file.
//
// Use Open() to initialize an Engine and Close() to shut it down gracefully.
type Engine struct {
	graph    *hnsw.Graph
	embedder embeddings.Embedder
	snapshot *persistence.SnapshotFile

	opts Options
	// name labels this engine's metrics.
	name string

	// mu serializes writes so the graph and the ordered key set stay in step.
	mu        sync.RWMutex
	keys      btree.Set[string]
	dimension int

	// dirtyCounter tracks the number of write operations since the last save.
	dirtyCounter atomic.Int64
	lastSaveTime time.Time

	// adminMu serializes snapshot saves.
	adminMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open initializes a new Engine.
//
// It creates Dir if missing and loads the snapshot when one exists. A corrupt
// snapshot is returned as an error rather than silently discarded. embedder
// may be nil, in which case only the vector operations are available.
func Open(opts Options, embedder embeddings.Embedder) (*Engine, error) {
	if opts.SnapshotName == "" {
		opts.SnapshotName = "index.kis"
	}
	if opts.BatchConcurrency < 1 {
		opts.BatchConcurrency = 1
	}
	if opts.Chunker == (text.Chunker{}) {
		opts.Chunker = text.DefaultChunker()
	}
	if err := opts.Chunker.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	graph, err := hnsw.New(opts.Graph)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		graph:        graph,
		embedder:     embedder,
		snapshot:     persistence.NewSnapshotFile(filepath.Join(opts.Dir, opts.SnapshotName)),
		opts:         opts,
		name:         strings.TrimSuffix(opts.SnapshotName, filepath.Ext(opts.SnapshotName)),
		dimension:    opts.Dimension,
		lastSaveTime: time.Now(),
		closed:       make(chan struct{}),
	}

	if err := e.load(); err != nil {
		return nil, err
	}
	metrics.LiveVectors.WithLabelValues(e.name).Set(float64(e.graph.Count()))

	if opts.AutoSaveInterval > 0 && opts.AutoSaveThreshold > 0 {
		e.wg.Add(1)
		go e.backgroundTasks()
	}
	return e, nil
}

func (e *Engine) load() error {
	payload, err := e.snapshot.Load()
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("No snapshot found, starting empty index", "path", e.snapshot.Path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := e.graph.Deserialize(payload); err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	for _, k := range e.graph.AllKeys() {
		e.keys.Insert(k)
	}
	if first, ok := e.keys.Min(); ok {
		vec, _ := e.graph.Get(first)
		switch {
		case e.dimension == 0:
			e.dimension = len(vec)
		case e.dimension != len(vec):
			return fmt.Errorf("%w: snapshot holds %d-dim vectors, configured %d", ErrDimensionMismatch, len(vec), e.dimension)
		}
	}

	slog.Info("Snapshot loaded", "path", e.snapshot.Path, "vectors", e.keys.Len(), "dimension", e.dimension)
	return nil
}

// Save writes a snapshot of the live graph, replacing the previous one.
func (e *Engine) Save() error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	start := time.Now()
	dirty := e.dirtyCounter.Load()

	payload, err := e.graph.Serialize()
	if err != nil {
		return fmt.Errorf("failed to serialize graph: %w", err)
	}
	size, err := e.snapshot.Save(payload)
	if err != nil {
		return err
	}

	e.dirtyCounter.Add(-dirty)
	e.lastSaveTime = time.Now()
	metrics.SnapshotSaveDuration.WithLabelValues(e.name).Observe(time.Since(start).Seconds())
	metrics.SnapshotBytes.WithLabelValues(e.name).Set(float64(size))
	slog.Info("Snapshot saved", "path", e.snapshot.Path, "bytes", size, "duration", time.Since(start))
	return nil
}

// Close performs a clean shutdown of the Engine.
//
// It stops the background saver and writes a final snapshot if anything
// changed since the last one. Calling Close more than once is safe.
func (e *Engine) Close() error {
	var err error

	e.closeOnce.Do(func() {
		e.mu.Lock()
		close(e.closed)
		e.mu.Unlock()
		e.wg.Wait()

		if e.dirtyCounter.Load() > 0 {
			err = e.Save()
		}
	})

	return err
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.closed:
		return true
	default:
		return false
	}
}

// backgroundTasks handles automatic saving.
func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(min(time.Second, e.opts.AutoSaveInterval))
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkAutoSave()
		}
	}
}

// checkAutoSave evaluates if a snapshot is needed.
func (e *Engine) checkAutoSave() {
	if e.dirtyCounter.Load() < e.opts.AutoSaveThreshold {
		return
	}
	e.adminMu.Lock()
	due := time.Since(e.lastSaveTime) >= e.opts.AutoSaveInterval
	e.adminMu.Unlock()
	if !due {
		return
	}
	if err := e.Save(); err != nil {
		// Log error but continue (background task)
		slog.Error("Background snapshot failed", "error", err)
	}
}
