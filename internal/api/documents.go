package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ychsieh/ragchat/internal/ingest"
	"github.com/ychsieh/ragchat/internal/knowledge"
)

// IngestService manages document ingestion. Satisfied by *ingest.Service.
type IngestService interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (knowledge.Document, error)
	List(ctx context.Context) ([]knowledge.Document, error)
	Delete(ctx context.Context, id int64) error
}

// uploadResponse is the body of a successful document upload.
type uploadResponse struct {
	Message  string `json:"message"`
	FileID   int64  `json:"file_id"`
	Filename string `json:"filename"`
}

// handleUpload ingests one CSV file from a multipart form.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "missing file field in multipart form")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		writeError(w, http.StatusBadRequest, "only CSV files are supported")
		return
	}

	doc, err := s.ingest.Ingest(r.Context(), filename, file)
	if err != nil {
		if errors.Is(err, ingest.ErrNoRecords) {
			writeError(w, http.StatusBadRequest, "CSV file contains no records")
			return
		}
		s.logger.Error("document upload failed", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to index document")
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{
		Message:  "File uploaded and indexed successfully",
		FileID:   doc.ID,
		Filename: doc.Filename,
	})
}

// handleListDocuments returns all indexed documents.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingest.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// handleDeleteDocument removes one document and its chunks.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "document id must be a positive integer")
		return
	}

	if err := s.ingest.Delete(r.Context(), id); err != nil {
		if errors.Is(err, knowledge.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		s.logger.Error("failed to delete document", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted successfully"})
}
