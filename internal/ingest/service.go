package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ychsieh/ragchat/internal/knowledge"
)

// DocumentStore is the document-record side of the knowledge store.
// Satisfied by *knowledge.Store.
type DocumentStore interface {
	CreateDocument(ctx context.Context, filename string) (knowledge.Document, error)
	GetDocumentByFilename(ctx context.Context, filename string) (knowledge.Document, error)
	ListDocuments(ctx context.Context) ([]knowledge.Document, error)
	DeleteDocument(ctx context.Context, id int64) error
	SetChunkCount(ctx context.Context, id int64, count int) error
	PruneChunks(ctx context.Context, documentID int64, keep []string) error
}

// Service coordinates document records with chunk indexing.
type Service struct {
	docs    DocumentStore
	indexer *Indexer
	logger  *slog.Logger
}

// NewService creates a Service.
// logger may be nil, in which case slog.Default() is used.
func NewService(docs DocumentStore, indexer *Indexer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, indexer: indexer, logger: logger}
}

// Ingest indexes the CSV content into a document record. Uploading a
// filename again reuses its existing record: unchanged chunks are
// upserted in place by their content-addressed IDs and chunks from rows
// no longer present are pruned. A brand-new record is rolled back if
// indexing fails, so the document list never shows entries without
// searchable chunks.
func (s *Service) Ingest(ctx context.Context, filename string, r io.Reader) (knowledge.Document, error) {
	doc, err := s.docs.GetDocumentByFilename(ctx, filename)
	created := false
	if errors.Is(err, knowledge.ErrNotFound) {
		doc, err = s.docs.CreateDocument(ctx, filename)
		created = true
	}
	if err != nil {
		return knowledge.Document{}, err
	}

	ids, err := s.indexer.IndexCSV(ctx, doc.ID, filename, r)
	if err != nil {
		if created {
			if delErr := s.docs.DeleteDocument(ctx, doc.ID); delErr != nil {
				s.logger.Error("failed to roll back document record",
					"document_id", doc.ID, "error", delErr)
			}
		}
		return knowledge.Document{}, err
	}

	if !created {
		if err := s.docs.PruneChunks(ctx, doc.ID, ids); err != nil {
			return knowledge.Document{}, fmt.Errorf("failed to prune stale chunks for document %d: %w", doc.ID, err)
		}
	}

	if err := s.docs.SetChunkCount(ctx, doc.ID, len(ids)); err != nil {
		return knowledge.Document{}, fmt.Errorf("failed to finalize document %d: %w", doc.ID, err)
	}

	doc.ChunkCount = len(ids)
	return doc, nil
}

// List returns all ingested documents, newest first.
func (s *Service) List(ctx context.Context) ([]knowledge.Document, error) {
	return s.docs.ListDocuments(ctx)
}

// Delete removes a document and, via CASCADE, its chunks.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.docs.DeleteDocument(ctx, id)
}
