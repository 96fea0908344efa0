package hnsw

import (
	"errors"
	"fmt"
)

// Defaults used when a Config field is left at its zero value.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 50
	DefaultSeed           = 42

	// MaxM bounds M so per-node neighbor lists stay allocatable.
	MaxM = 1 << 16
)

// ErrInvalidConfig is returned by New when a parameter is out of range.
var ErrInvalidConfig = errors.New("invalid hnsw config")

// Config holds the construction-time parameters of a Graph. They are fixed
// for the lifetime of the instance (Deserialize adopts the stored M and
// efConstruction, see Graph.Deserialize).
type Config struct {
	// M is the max number of neighbors per node on layers >= 1. Layer 0 allows 2*M.
	M int `yaml:"m" json:"m" split_words:"true"`
	// EfConstruction is the candidate list size used while wiring a new node.
	EfConstruction int `yaml:"ef_construction" json:"ef_construction" split_words:"true"`
	// EfSearch is the default candidate list size for Search when the caller passes <= 0.
	EfSearch int `yaml:"ef_search" json:"ef_search" split_words:"true"`
	// Seed drives level assignment. Equal seeds and insert order give identical graphs.
	Seed int64 `yaml:"seed" json:"seed" split_words:"true"`
}

// DefaultConfig returns M=16, efConstruction=200, efSearch=50 and a fixed seed.
func DefaultConfig() Config {
	return Config{
		M:              DefaultM,
		EfConstruction: DefaultEfConstruction,
		EfSearch:       DefaultEfSearch,
		Seed:           DefaultSeed,
	}
}

// withDefaults fills zero-valued fields. Seed 0 is a valid seed and is kept.
func (c Config) withDefaults() Config {
	if c.M == 0 {
		c.M = DefaultM
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = DefaultEfConstruction
	}
	if c.EfSearch == 0 {
		c.EfSearch = DefaultEfSearch
	}
	return c
}

// Validate reports parameters the algorithm cannot work with.
func (c Config) Validate() error {
	// ln(1) == 0 would make the level multiplier infinite.
	if c.M < 2 || c.M > MaxM {
		return fmt.Errorf("%w: m must be in [2, %d], got %d", ErrInvalidConfig, MaxM, c.M)
	}
	if c.EfConstruction < 1 {
		return fmt.Errorf("%w: ef_construction must be >= 1, got %d", ErrInvalidConfig, c.EfConstruction)
	}
	if c.EfSearch < 1 {
		return fmt.Errorf("%w: ef_search must be >= 1, got %d", ErrInvalidConfig, c.EfSearch)
	}
	return nil
}
