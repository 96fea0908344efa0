package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPrefersWordBoundaries(t *testing.T) {
	c := Chunker{Size: 10}
	assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, c.Split("aaaa bbbb cccc dddd"))
}

func TestSplitOverlap(t *testing.T) {
	c := Chunker{Size: 4, Overlap: 2}
	assert.Equal(t, []string{"abcd", "cdef", "efgh"}, c.Split("abcdefgh"))
}

func TestSplitRunes(t *testing.T) {
	c := Chunker{Size: 2}
	assert.Equal(t, []string{"éé", "éé", "é"}, c.Split("ééééé"))
}

func TestSplitShortAndEmpty(t *testing.T) {
	c := DefaultChunker()
	assert.Equal(t, []string{"hello world"}, c.Split("  hello world \n"))
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t"))
}

func TestSplitCoversEveryWord(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "w" + strings.Repeat("x", i%7)
	}
	doc := strings.Join(words, " ")

	chunks := Chunker{Size: 40, Overlap: 8}.Split(doc)
	assert.Greater(t, len(chunks), 1)
	joined := strings.Join(chunks, " ")
	for _, w := range words {
		assert.Contains(t, joined, w)
	}
	for _, ch := range chunks {
		assert.LessOrEqual(t, len([]rune(ch)), 40)
	}
}

func TestInvalidChunker(t *testing.T) {
	assert.ErrorIs(t, Chunker{Size: 0}.Validate(), ErrInvalidChunker)
	assert.ErrorIs(t, Chunker{Size: 4, Overlap: 4}.Validate(), ErrInvalidChunker)
	assert.ErrorIs(t, Chunker{Size: 4, Overlap: -1}.Validate(), ErrInvalidChunker)
	assert.NoError(t, DefaultChunker().Validate())

	assert.Equal(t, []string{"whole text"}, Chunker{}.Split(" whole text "))
}
