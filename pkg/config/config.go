// Package config loads kektorindex settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sanonone/kektorindex/pkg/core/hnsw"
	"github.com/sanonone/kektorindex/pkg/core/text"
	"github.com/sanonone/kektorindex/pkg/embeddings"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. KEKTORINDEX_GRAPH_M.
const EnvPrefix = "KEKTORINDEX"

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	DataDir      string `yaml:"data_dir" split_words:"true"`
	SnapshotName string `yaml:"snapshot_name" split_words:"true"`
	// Dimension 0 means the first inserted vector decides.
	Dimension int `yaml:"dimension" split_words:"true"`

	Graph    hnsw.Config       `yaml:"graph" split_words:"true"`
	Embedder embeddings.Config `yaml:"embedder" split_words:"true"`
	AutoSave AutoSaveConfig    `yaml:"auto_save" split_words:"true"`
	Log      LogConfig         `yaml:"log" split_words:"true"`

	BatchConcurrency int         `yaml:"batch_concurrency" split_words:"true"`
	Chunking         text.Chunker `yaml:"chunking" split_words:"true"`
}

// AutoSaveConfig controls background snapshots. A zero interval disables them.
type AutoSaveConfig struct {
	Interval  time.Duration `yaml:"interval" split_words:"true"`
	Threshold int           `yaml:"threshold" split_words:"true"`
}

type LogConfig struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
}

// DefaultConfig returns a working configuration for local Ollama.
func DefaultConfig() Config {
	return Config{
		DataDir:      "kektorindex_data",
		SnapshotName: "index.kis",
		Graph:        hnsw.DefaultConfig(),
		Embedder:     embeddings.DefaultConfig(),
		AutoSave: AutoSaveConfig{
			Interval:  30 * time.Second,
			Threshold: 100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		BatchConcurrency: 4,
		Chunking:         text.DefaultChunker(),
	}
}

// Load reads the YAML file at path using strict parsing, applies
// KEKTORINDEX_* environment overrides and validates the result. An empty path
// skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate reports settings the engine cannot start with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if c.SnapshotName == "" || strings.ContainsAny(c.SnapshotName, `/\`) {
		return fmt.Errorf("%w: snapshot_name must be a plain file name, got %q", ErrInvalidConfig, c.SnapshotName)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("%w: dimension must be >= 0, got %d", ErrInvalidConfig, c.Dimension)
	}
	if err := c.Graph.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.AutoSave.Interval < 0 || c.AutoSave.Threshold < 0 {
		return fmt.Errorf("%w: auto_save values must be >= 0", ErrInvalidConfig)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("%w: batch_concurrency must be >= 1, got %d", ErrInvalidConfig, c.BatchConcurrency)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
