package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_ShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)

	chunks := s.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitter_BlankInput(t *testing.T) {
	s := NewSplitter(100, 20)

	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
}

func TestSplitter_RespectsChunkSize(t *testing.T) {
	s := NewSplitter(50, 10)
	text := strings.Repeat("word ", 100)

	chunks := s.Split(text)
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 50, "chunk %d exceeds size", i)
		assert.NotEmpty(t, chunk)
	}
}

func TestSplitter_PrefersParagraphBoundary(t *testing.T) {
	para1 := strings.Repeat("a", 40)
	para2 := strings.Repeat("b", 40)
	s := NewSplitter(60, 0)

	chunks := s.Split(para1 + "\n\n" + para2)
	require.Len(t, chunks, 2)
	assert.Equal(t, para1, chunks[0])
	assert.Equal(t, para2, chunks[1])
}

func TestSplitter_HardCutWithoutSeparators(t *testing.T) {
	s := NewSplitter(10, 0)
	text := strings.Repeat("x", 25)

	chunks := s.Split(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.Repeat("x", 10), chunks[0])
	assert.Equal(t, strings.Repeat("x", 10), chunks[1])
	assert.Equal(t, strings.Repeat("x", 5), chunks[2])
}

func TestSplitter_HardCutKeepsRunesIntact(t *testing.T) {
	s := NewSplitter(10, 0)
	text := strings.Repeat("héllo", 10) // multi-byte runes across cut points

	for _, chunk := range s.Split(text) {
		assert.True(t, strings.ToValidUTF8(chunk, "") == chunk, "chunk contains a split rune: %q", chunk)
	}
}

func TestSplitter_OverlapCarriesContext(t *testing.T) {
	s := NewSplitter(50, 20)
	text := strings.Repeat("alpha beta gamma delta ", 20)

	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	// Consecutive chunks share a suffix/prefix of roughly the overlap size.
	tail := chunks[0][len(chunks[0])-10:]
	assert.Contains(t, chunks[1], strings.TrimSpace(tail))
}

func TestNewSplitter_SanitizesParameters(t *testing.T) {
	s := NewSplitter(0, -1)
	assert.Equal(t, DefaultChunkSize, s.chunkSize)
	assert.Equal(t, DefaultChunkOverlap, s.overlap)

	// Overlap must stay below the chunk size or splitting cannot advance.
	s = NewSplitter(10, 10)
	assert.Equal(t, 5, s.overlap)
}

func TestSplitter_TerminatesOnLongInput(t *testing.T) {
	s := NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 2000)

	chunks := s.Split(text)
	assert.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), DefaultChunkSize)
	}
}
