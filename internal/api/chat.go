package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ychsieh/ragchat/internal/chat"
)

// ChatService answers questions. Satisfied by *chat.Service.
type ChatService interface {
	Answer(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// maxChatBodyBytes bounds the chat request body. Questions are short;
// anything near this limit is abuse.
const maxChatBodyBytes = 64 << 10

// handleChat answers one question within a session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.chat.Answer(r.Context(), req)
	if err != nil {
		s.writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion),
		errors.Is(err, chat.ErrUnknownModel),
		errors.Is(err, chat.ErrInvalidSessionID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away, nothing useful to write.
		writeError(w, statusClientClosedRequest, "request canceled")
	default:
		s.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusBadGateway, "failed to generate answer")
	}
}

// statusClientClosedRequest is nginx's non-standard 499.
const statusClientClosedRequest = 499
