package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sanonone/kektorindex/pkg/core/types"
	"github.com/sanonone/kektorindex/pkg/engine"
	"github.com/spf13/cobra"
)

// maxLineSize bounds one JSONL record; 384-dim vectors in JSON are ~8KB.
const maxLineSize = 16 * 1024 * 1024

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <file.jsonl>",
		Short: "Insert records from a JSON Lines file",
		Long: `Each line is an object with a "key" and either a "text" to embed or a
ready "vector". Lines without a key get a generated UUID.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			batchSize, _ := cmd.Flags().GetInt("batch")
			if batchSize < 1 {
				return fmt.Errorf("--batch must be >= 1")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			chunks, err := readChunks(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := e.Close(); err == nil {
					err = cerr
				}
			}()

			indexed := 0
			for start := 0; start < len(chunks); start += batchSize {
				end := min(start+batchSize, len(chunks))
				keys, err := e.UpsertBatch(cmd.Context(), chunks[start:end])
				indexed += len(keys)
				if err != nil {
					return fmt.Errorf("indexed %d of %d records: %w", indexed, len(chunks), err)
				}
			}

			return output(cmd, map[string]int{"indexed": indexed, "total": e.Count()},
				fmt.Sprintf("Indexed %d records (%d live)", indexed, e.Count()))
		},
	}
	cmd.Flags().Int("batch", 64, "Records embedded per batch")
	return cmd
}

func newIndexDocCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index-doc <docID> <file>",
		Short: "Chunk a text file and index it as one document",
		Long: `The file is split with the configured chunking settings and each piece
is stored under docID#NNNNNN. Re-indexing a document replaces its chunks.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := e.Close(); err == nil {
					err = cerr
				}
			}()

			keys, err := e.IndexDocument(cmd.Context(), args[0], string(content))
			if err != nil {
				return err
			}
			return output(cmd, map[string]any{"doc": args[0], "chunks": len(keys)},
				fmt.Sprintf("Indexed %s as %d chunks", args[0], len(keys)))
		},
	}
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the nearest entries to a text or a vector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			text, _ := cmd.Flags().GetString("text")
			rawVec, _ := cmd.Flags().GetString("vector")
			k, _ := cmd.Flags().GetInt("k")
			ef, _ := cmd.Flags().GetInt("ef")
			if (text == "") == (rawVec == "") {
				return errors.New("exactly one of --text or --vector is required")
			}

			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := e.Close(); err == nil {
					err = cerr
				}
			}()

			var results []types.SearchResult
			if text != "" {
				results, err = e.Query(cmd.Context(), text, k, ef)
			} else {
				var vec []float32
				if vec, err = parseVector(rawVec); err != nil {
					return err
				}
				results, err = e.QueryVector(vec, k, ef)
			}
			if err != nil {
				return err
			}

			var sb strings.Builder
			for i, r := range results {
				fmt.Fprintf(&sb, "%d\t%s\t%.6f\n", i+1, r.Key, r.Distance)
			}
			return output(cmd, results, strings.TrimSuffix(sb.String(), "\n"))
		},
	}
	cmd.Flags().String("text", "", "Query text (embedded with the configured provider)")
	cmd.Flags().String("vector", "", "Query vector as comma-separated floats")
	cmd.Flags().IntP("k", "k", 10, "Number of results")
	cmd.Flags().Int("ef", 0, "Search candidate list size (0 = configured ef_search)")
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>...",
		Short: "Soft-delete entries by key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := e.Close(); err == nil {
					err = cerr
				}
			}()

			removed := 0
			for _, key := range args {
				if e.Remove(key) {
					removed++
				}
			}
			return output(cmd, map[string]int{"removed": removed},
				fmt.Sprintf("Removed %d of %d keys", removed, len(args)))
		},
	}
}

func newRemoveDocCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-doc <docID>",
		Short: "Remove every chunk of a document (keys docID#NNNNNN)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := e.Close(); err == nil {
					err = cerr
				}
			}()

			removed := e.RemoveDocument(args[0])
			return output(cmd, map[string]int{"removed": removed},
				fmt.Sprintf("Removed %d chunks of %s", removed, args[0]))
		},
	}
}

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List live keys in ascending order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := e.Close(); err == nil {
					err = cerr
				}
			}()

			keys := e.Keys()
			return output(cmd, keys, strings.Join(keys, "\n"))
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			e, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := e.Close(); err == nil {
					err = cerr
				}
			}()

			s := e.Stats()
			text := fmt.Sprintf("vectors:   %d live, %d deleted\nlevels:    %d (entry %q)\ndimension: %d\nM:         %d\nkernel:    %s\nsnapshot:  %s",
				s.Graph.Live, s.Graph.Deleted, s.Graph.MaxLevel+1, s.Graph.EntryPoint,
				s.Dimension, s.GraphConfig.M, s.Kernel, s.SnapshotPath)
			return output(cmd, s, text)
		},
	}
}

// output writes v as JSON when --json is set, text otherwise.
func output(cmd *cobra.Command, v any, text string) error {
	w := cmd.OutOrStdout()
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if text == "" {
		return nil
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func readChunks(r io.Reader) ([]engine.Chunk, error) {
	var chunks []engine.Chunk
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var c engine.Chunk
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if c.Text == "" && len(c.Vector) == 0 {
			return nil, fmt.Errorf("line %d: record needs a text or a vector", line)
		}
		chunks = append(chunks, c)
	}
	return chunks, scanner.Err()
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector component %d: %w", i, err)
		}
		vec[i] = float32(f)
	}
	return vec, nil
}
