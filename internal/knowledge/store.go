// Package knowledge manages indexed documents and their embedded chunks
// on PostgreSQL + pgvector.
//
// Document metadata (filename, chunk count, upload time) lives in the
// documents table; text spans with their embeddings live in chunks, with
// ON DELETE CASCADE tying the two together. Embedding generation is
// delegated to a Genkit ai.Embedder.
package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// ErrNotFound indicates the requested document does not exist.
var ErrNotFound = errors.New("document not found")

// embedBatchSize bounds how many chunks are embedded per provider call.
const embedBatchSize = 32

// DB is the subset of pgxpool.Pool the store needs.
// Defined by the consumer so tests can substitute a transaction or mock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages documents and chunks with vector search capabilities.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db       DB
	embedder ai.Embedder
	logger   *slog.Logger
}

// New creates a new Store instance.
// logger may be nil, in which case slog.Default() is used.
func New(db DB, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

// CreateDocument inserts a document record and returns it with its
// generated ID. The chunk count starts at zero and is set once indexing
// succeeds.
func (s *Store) CreateDocument(ctx context.Context, filename string) (Document, error) {
	var doc Document
	err := s.db.QueryRow(ctx,
		`INSERT INTO documents (filename) VALUES ($1)
		 RETURNING id, filename, chunk_count, uploaded_at`,
		filename,
	).Scan(&doc.ID, &doc.Filename, &doc.ChunkCount, &doc.UploadedAt)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create document record: %w", err)
	}

	s.logger.Debug("created document record", "id", doc.ID, "filename", filename)
	return doc, nil
}

// ListDocuments returns all document records, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, filename, chunk_count, uploaded_at
		 FROM documents ORDER BY uploaded_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ChunkCount, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return docs, nil
}

// GetDocument retrieves a document record by ID.
// Returns ErrNotFound when no such record exists.
func (s *Store) GetDocument(ctx context.Context, id int64) (Document, error) {
	var doc Document
	err := s.db.QueryRow(ctx,
		`SELECT id, filename, chunk_count, uploaded_at FROM documents WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Filename, &doc.ChunkCount, &doc.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document %d: %w", id, err)
	}
	return doc, nil
}

// GetDocumentByFilename retrieves the most recent document record with
// the given filename. Returns ErrNotFound when no upload used that name.
func (s *Store) GetDocumentByFilename(ctx context.Context, filename string) (Document, error) {
	var doc Document
	err := s.db.QueryRow(ctx,
		`SELECT id, filename, chunk_count, uploaded_at
		 FROM documents WHERE filename = $1
		 ORDER BY uploaded_at DESC, id DESC LIMIT 1`,
		filename,
	).Scan(&doc.ID, &doc.Filename, &doc.ChunkCount, &doc.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, fmt.Errorf("document %q: %w", filename, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("failed to get document %q: %w", filename, err)
	}
	return doc, nil
}

// DeleteDocument removes a document record; its chunks are removed by the
// ON DELETE CASCADE constraint. Returns ErrNotFound when no record exists.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted document", "id", id)
	return nil
}

// SetChunkCount records how many chunks a document was split into.
func (s *Store) SetChunkCount(ctx context.Context, id int64, count int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET chunk_count = $2 WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("failed to update chunk count for document %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return nil
}

// AddChunks embeds and upserts the given chunks.
// Chunk IDs are content-addressed upstream, so re-ingesting the same file
// updates rows in place instead of duplicating them.
func (s *Store) AddChunks(ctx context.Context, chunks []Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		embeddings, err := s.embedBatch(ctx, batch)
		if err != nil {
			return err
		}

		for i, chunk := range batch {
			metadataJSON, err := json.Marshal(chunk.Metadata)
			if err != nil {
				return fmt.Errorf("failed to marshal metadata for chunk %q: %w", chunk.ID, err)
			}

			vec := pgvector.NewVector(embeddings[i])
			_, err = s.db.Exec(ctx,
				`INSERT INTO chunks (id, document_id, content, embedding, metadata)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (id) DO UPDATE SET
				   document_id = EXCLUDED.document_id,
				   content     = EXCLUDED.content,
				   embedding   = EXCLUDED.embedding,
				   metadata    = EXCLUDED.metadata`,
				chunk.ID, chunk.DocumentID, chunk.Content, vec, metadataJSON)
			if err != nil {
				return fmt.Errorf("failed to upsert chunk %q: %w", chunk.ID, err)
			}
		}
	}

	s.logger.Debug("added chunks", "count", len(chunks))
	return nil
}

// PruneChunks deletes chunks of a document whose ID is not in keep.
// After re-indexing a file, rows dropped from the source must not linger
// in search results.
func (s *Store) PruneChunks(ctx context.Context, documentID int64, keep []string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1 AND NOT (id = ANY($2))`,
		documentID, keep)
	if err != nil {
		return fmt.Errorf("failed to prune chunks for document %d: %w", documentID, err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug("pruned stale chunks", "document_id", documentID, "count", n)
	}
	return nil
}

// embedBatch generates embeddings for a batch of chunks in one provider call.
func (s *Store) embedBatch(ctx context.Context, batch []Chunk) ([][]float32, error) {
	input := make([]*ai.Document, 0, len(batch))
	for _, chunk := range batch {
		input = append(input, ai.DocumentFromText(chunk.Content, nil))
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(resp.Embeddings) != len(batch) {
		return nil, fmt.Errorf("embedder returned %d embeddings for %d chunks", len(resp.Embeddings), len(batch))
	}

	embeddings := make([][]float32, len(batch))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding returned for chunk %q", batch[i].ID)
		}
		embeddings[i] = e.Embedding
	}
	return embeddings, nil
}

// Search performs cosine-similarity search over all chunks.
// Results are ordered by similarity descending.
//
// Example:
//
//	results, err := store.Search(ctx, "refund policy",
//	    knowledge.WithTopK(2),
//	    knowledge.WithFilter("filename", "faq.csv"))
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	// Bound vector searches so a slow query cannot block a chat request.
	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	resp, err := s.embedder.Embed(queryCtx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(query, nil)},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}

	queryVec := pgvector.NewVector(resp.Embeddings[0].Embedding)

	// The filter is always produced by json.Marshal and matched with the
	// parameterized JSONB containment operator, never interpolated.
	var rows pgx.Rows
	if len(cfg.filter) > 0 {
		filterJSON, marshalErr := json.Marshal(cfg.filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", marshalErr)
		}
		rows, err = s.db.Query(queryCtx,
			`SELECT id, document_id, content, metadata, created_at,
			        1 - (embedding <=> $1) AS similarity
			 FROM chunks
			 WHERE metadata @> $2
			 ORDER BY embedding <=> $1
			 LIMIT $3`,
			queryVec, filterJSON, cfg.topK)
	} else {
		rows, err = s.db.Query(queryCtx,
			`SELECT id, document_id, content, metadata, created_at,
			        1 - (embedding <=> $1) AS similarity
			 FROM chunks
			 ORDER BY embedding <=> $1
			 LIMIT $2`,
			queryVec, cfg.topK)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	return s.scanResults(rows)
}

// CountChunks returns the total number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

func (s *Store) scanResults(rows pgx.Rows) ([]Result, error) {
	results := make([]Result, 0)
	for rows.Next() {
		var (
			res          Result
			metadataJSON []byte
			createdAt    time.Time
		)
		if err := rows.Scan(&res.Chunk.ID, &res.Chunk.DocumentID, &res.Chunk.Content,
			&metadataJSON, &createdAt, &res.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}

		var metadata map[string]string
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			s.logger.Warn("failed to parse chunk metadata", "chunk_id", res.Chunk.ID, "error", err)
			metadata = make(map[string]string)
		}
		res.Chunk.Metadata = metadata
		res.CreatedAt = createdAt
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search results: %w", err)
	}
	return results, nil
}
