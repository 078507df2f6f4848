package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ychsieh/ragchat/internal/session"
)

// SessionService exposes conversation history. Satisfied by *session.Store.
type SessionService interface {
	List(ctx context.Context, limit, offset int32) ([]*session.Session, error)
	Messages(ctx context.Context, sessionID uuid.UUID, limit, offset int32) ([]*session.Message, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// handleListSessions returns sessions, most recently active first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePagination(w, r)
	if !ok {
		return
	}

	sessions, err := s.sessions.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleSessionMessages returns a session's messages in order.
func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "session id must be a UUID")
		return
	}
	limit, offset, ok := parsePagination(w, r)
	if !ok {
		return
	}

	messages, err := s.sessions.Messages(r.Context(), id, limit, offset)
	if err != nil {
		s.logger.Error("failed to get session messages", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   messages,
		"count":      len(messages),
	})
}

// handleDeleteSession removes a session and its history.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "session id must be a UUID")
		return
	}

	if err := s.sessions.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to delete session", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
}

// parsePagination reads limit/offset query parameters with bounds.
// Writes a 400 and returns ok=false on invalid input.
func parsePagination(w http.ResponseWriter, r *http.Request) (limit, offset int32, ok bool) {
	limit = defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 1 || n > maxPageSize {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return 0, 0, false
		}
		limit = int32(n)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be non-negative")
			return 0, 0, false
		}
		offset = int32(n)
	}
	return limit, offset, true
}
