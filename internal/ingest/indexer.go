package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/ychsieh/ragchat/internal/knowledge"
)

// ChunkStore is where indexed chunks land.
// Satisfied by *knowledge.Store.
type ChunkStore interface {
	AddChunks(ctx context.Context, chunks []knowledge.Chunk) error
}

// Indexer converts CSV content into embedded chunks.
type Indexer struct {
	store    ChunkStore
	splitter *Splitter
	logger   *slog.Logger
}

// NewIndexer creates an Indexer.
// splitter and logger may be nil, in which case defaults are used.
func NewIndexer(store ChunkStore, splitter *Splitter, logger *slog.Logger) *Indexer {
	if splitter == nil {
		splitter = NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{store: store, splitter: splitter, logger: logger}
}

// IndexCSV loads, splits, embeds, and stores the CSV content for an
// already-created document record. Returns the IDs of the stored chunks.
//
// Chunk IDs are content-addressed (document, row, position, text), so
// indexing the same content twice overwrites rather than duplicates.
func (idx *Indexer) IndexCSV(ctx context.Context, documentID int64, filename string, r io.Reader) ([]string, error) {
	records, err := LoadCSV(r)
	if err != nil {
		return nil, err
	}

	chunks := make([]knowledge.Chunk, 0, len(records))
	for _, rec := range records {
		for i, piece := range idx.splitter.Split(rec.Text) {
			chunks = append(chunks, knowledge.Chunk{
				ID:         chunkID(documentID, rec.Row, i, piece),
				DocumentID: documentID,
				Content:    piece,
				Metadata: map[string]string{
					"source_type": "csv",
					"filename":    filename,
					"row":         strconv.Itoa(rec.Row),
				},
			})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoRecords
	}

	if err := idx.store.AddChunks(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to index %q: %w", filename, err)
	}

	idx.logger.Info("indexed document",
		"document_id", documentID,
		"filename", filename,
		"rows", len(records),
		"chunks", len(chunks))

	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		ids = append(ids, chunk.ID)
	}
	return ids, nil
}

// chunkID derives a stable identifier from the chunk's position and content.
func chunkID(documentID int64, row, piece int, content string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%d:%d:", documentID, row, piece)
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
