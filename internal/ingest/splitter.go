package ingest

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters. Overlap keeps neighbouring chunks sharing
// enough context that a fact straddling a boundary is still retrievable.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators tried in order when looking for a chunk boundary.
// The empty string means "hard cut at the size limit".
var separators = []string{"\n\n", "\n", " "}

// Splitter cuts text into overlapping chunks, preferring to break at
// paragraph, line, and word boundaries before falling back to a hard cut.
type Splitter struct {
	chunkSize int
	overlap   int
}

// NewSplitter creates a splitter. Non-positive size falls back to the
// default, and the overlap is clamped below the chunk size.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Splitter{chunkSize: chunkSize, overlap: overlap}
}

// Split cuts text into chunks of at most the configured size.
// Returns nil for blank input. Chunks are trimmed and never empty.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	chunks := make([]string, 0, len(text)/s.chunkSize+1)
	start := 0
	for start < len(text) {
		end := start + s.chunkSize
		if end >= len(text) {
			if chunk := strings.TrimSpace(text[start:]); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := s.findCut(text, start, end)
		if chunk := strings.TrimSpace(text[start:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - s.overlap
		if next <= start {
			next = cut // overlap would stall progress, skip it
		}
		start = next
	}
	return chunks
}

// findCut picks a boundary within (start, end], preferring the latest
// separator occurrence in the window. Falls back to a hard cut aligned to
// a rune boundary.
func (s *Splitter) findCut(text string, start, end int) int {
	window := text[start:end]
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i
		}
	}
	hard := end
	for hard > start && !utf8.RuneStart(text[hard]) {
		hard--
	}
	if hard == start {
		return end // chunk size smaller than one rune, cut anyway
	}
	return hard
}
