package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sanonone/kektorindex/pkg/config"
	"github.com/sanonone/kektorindex/pkg/embeddings"
	"github.com/sanonone/kektorindex/pkg/engine"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	// Variables from .env are applied before config.Load reads KEKTORINDEX_*.
	// Already exported variables win.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kektorindex",
		Short: "Embedded HNSW vector index",
		Long: `kektorindex stores embedding vectors under string keys and answers
approximate k-nearest-neighbor queries by cosine distance.

Text is turned into vectors by the configured embedding provider
(Ollama or an OpenAI-compatible API); vectors can also be supplied directly.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("dir", "", "Data directory (overrides data_dir)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newIndexCmd(),
		newIndexDocCmd(),
		newSearchCmd(),
		newRemoveCmd(),
		newRemoveDocCmd(),
		newKeysCmd(),
		newStatsCmd(),
	)
	return rootCmd
}

// openEngine loads the configuration, installs the logger and opens the
// index. Callers must Close the engine so pending writes reach the snapshot.
func openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		cfg.DataDir = dir
	}

	slog.SetDefault(cfg.Log.NewLogger(cmd.ErrOrStderr()))

	embedder, err := embeddings.New(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	return engine.Open(engine.OptionsFromConfig(cfg), embedder)
}
