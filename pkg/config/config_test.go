package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sanonone/kektorindex/pkg/core/hnsw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kektorindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, `
data_dir: /var/lib/kektorindex
dimension: 384
graph:
  m: 8
  ef_construction: 64
embedder:
  provider: openai
  model: text-embedding-3-small
  timeout: 5s
auto_save:
  interval: 1m
log:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/kektorindex", cfg.DataDir)
	assert.Equal(t, 384, cfg.Dimension)
	assert.Equal(t, 8, cfg.Graph.M)
	assert.Equal(t, 64, cfg.Graph.EfConstruction)
	// Unset keys keep their defaults.
	assert.Equal(t, hnsw.DefaultEfSearch, cfg.Graph.EfSearch)
	assert.Equal(t, "index.kis", cfg.SnapshotName)
	assert.Equal(t, 100, cfg.AutoSave.Threshold)

	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, 5*time.Second, cfg.Embedder.Timeout)
	assert.Equal(t, time.Minute, cfg.AutoSave.Interval)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "graph:\n  mm: 8\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mm")
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "graph:\n  m: 8\n")
	t.Setenv("KEKTORINDEX_GRAPH_M", "12")
	t.Setenv("KEKTORINDEX_DIMENSION", "768")
	t.Setenv("KEKTORINDEX_EMBEDDER_API_KEY", "sk-env")
	t.Setenv("KEKTORINDEX_AUTO_SAVE_INTERVAL", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Graph.M)
	assert.Equal(t, 768, cfg.Dimension)
	assert.Equal(t, "sk-env", cfg.Embedder.APIKey)
	assert.Equal(t, 90*time.Second, cfg.AutoSave.Interval)
	assert.Equal(t, hnsw.DefaultEfConstruction, cfg.Graph.EfConstruction)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no data dir":   func(c *Config) { c.DataDir = "" },
		"snapshot path": func(c *Config) { c.SnapshotName = "a/b.kis" },
		"negative dim":  func(c *Config) { c.Dimension = -1 },
		"graph m":       func(c *Config) { c.Graph.M = 1 },
		"auto save":     func(c *Config) { c.AutoSave.Threshold = -1 },
		"concurrency":   func(c *Config) { c.BatchConcurrency = 0 },
		"log format":    func(c *Config) { c.Log.Format = "xml" },
		"log level":     func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "value", line["key"])
}
