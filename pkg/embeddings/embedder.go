// Package embeddings turns text into vectors through remote embedding models.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider names accepted by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

var (
	// ErrEmptyEmbedding is returned when a provider answers without a vector.
	ErrEmptyEmbedding = errors.New("embedding provider returned an empty vector")
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown embedding provider")
)

// Embedder defines the interface for converting text into vector representations.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config selects and configures an embedding provider.
type Config struct {
	Provider string        `yaml:"provider" split_words:"true"`
	URL      string        `yaml:"url" split_words:"true"`
	Model    string        `yaml:"model" split_words:"true"`
	APIKey   string        `yaml:"api_key" split_words:"true"`
	Timeout  time.Duration `yaml:"timeout" split_words:"true"`

	// RateLimit caps requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" split_words:"true"`
	Burst     int     `yaml:"burst" split_words:"true"`
}

// DefaultConfig targets a local Ollama instance.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderOllama,
		URL:      DefaultOllamaURL,
		Model:    "nomic-embed-text",
		Timeout:  60 * time.Second,
		Burst:    1,
	}
}

// New builds the embedder described by cfg, wrapped in a rate limiter when
// cfg.RateLimit is positive.
func New(cfg Config) (Embedder, error) {
	var e Embedder
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		e = NewOllamaEmbedder(cfg.URL, cfg.Model, cfg.Timeout)
	case ProviderOpenAI:
		e = NewOpenAIEmbedder(cfg.URL, cfg.Model, cfg.APIKey, cfg.Timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	if cfg.RateLimit > 0 {
		e = NewRateLimited(e, cfg.RateLimit, cfg.Burst)
	}
	return e, nil
}
