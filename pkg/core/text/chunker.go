// Package text splits documents into overlapping pieces for embedding.
//
// Splitting works on runes, so multi-byte characters are never cut in half.
package text

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidChunker is returned by Validate.
var ErrInvalidChunker = errors.New("invalid chunker")

// Chunker cuts text into windows of at most Size runes. Each window starts
// Overlap runes before the previous one ended, so context carries across
// boundaries.
//
// When a window would end inside a word, the cut moves back to the last
// whitespace in the window. A window without whitespace is cut hard.
type Chunker struct {
	Size    int `yaml:"size" json:"size" split_words:"true"`
	Overlap int `yaml:"overlap" json:"overlap" split_words:"true"`
}

// DefaultChunker returns 500-rune windows with a 50-rune overlap.
func DefaultChunker() Chunker {
	return Chunker{Size: 500, Overlap: 50}
}

func (c Chunker) Validate() error {
	if c.Size < 1 {
		return fmt.Errorf("%w: size must be >= 1, got %d", ErrInvalidChunker, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap must be in [0, size), got %d", ErrInvalidChunker, c.Overlap)
	}
	return nil
}

// Split returns the trimmed, non-empty chunks of s in document order.
// An invalid Chunker returns the whole trimmed text as one chunk.
func (c Chunker) Split(s string) []string {
	if c.Validate() != nil {
		if t := strings.TrimSpace(s); t != "" {
			return []string{t}
		}
		return nil
	}

	runes := []rune(s)
	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+c.Size, len(runes))
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			for j := end - 1; j > start; j-- {
				if unicode.IsSpace(runes[j]) {
					end = j
					break
				}
			}
		}

		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			chunks = append(chunks, piece)
		}
		if end == len(runes) {
			break
		}
		start = max(end-c.Overlap, start+1)
	}
	return chunks
}
