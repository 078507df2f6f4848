// Package api exposes the REST surface: chat, document management,
// session history, and health probes.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig contains everything the server needs.
type ServerConfig struct {
	Chat     ChatService
	Ingest   IngestService
	Sessions SessionService
	DB       Pinger
	Logger   *slog.Logger

	// MaxUploadBytes bounds document upload size; zero uses the default.
	MaxUploadBytes int64
	// RatePerSecond and RateBurst tune per-IP rate limiting;
	// zero RatePerSecond disables it.
	RatePerSecond float64
	RateBurst     int
	// TrustProxy enables X-Forwarded-For for client identification.
	TrustProxy bool
}

const defaultMaxUploadBytes = 16 << 20

// Server routes API requests to the underlying services.
type Server struct {
	chat           ChatService
	ingest         IngestService
	sessions       SessionService
	db             Pinger
	logger         *slog.Logger
	maxUploadBytes int64
	handler        http.Handler
}

// NewServer creates a fully routed server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	if cfg.Ingest == nil {
		return nil, errors.New("ingest service is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session service is required")
	}
	if cfg.DB == nil {
		return nil, errors.New("database is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	s := &Server{
		chat:           cfg.Chat,
		ingest:         cfg.Ingest,
		sessions:       cfg.Sessions,
		db:             cfg.DB,
		logger:         cfg.Logger,
		maxUploadBytes: cfg.MaxUploadBytes,
	}

	mux := http.NewServeMux()

	// Probes stay outside the rate limiter so orchestrators are never throttled.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/v1/chat", s.handleChat)
	apiMux.HandleFunc("POST /api/v1/upload-doc", s.handleUpload)
	apiMux.HandleFunc("GET /api/v1/documents", s.handleListDocuments)
	apiMux.HandleFunc("DELETE /api/v1/documents/{id}", s.handleDeleteDocument)
	apiMux.HandleFunc("GET /api/v1/sessions", s.handleListSessions)
	apiMux.HandleFunc("GET /api/v1/sessions/{id}/messages", s.handleSessionMessages)
	apiMux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)

	var apiHandler http.Handler = apiMux
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter := newIPLimiter(cfg.RatePerSecond, burst)
		apiHandler = rateLimitMiddleware(limiter, cfg.TrustProxy, cfg.Logger)(apiHandler)
	}
	mux.Handle("/api/v1/", apiHandler)

	// Recovery outermost so it catches panics from every layer below.
	s.handler = chain(mux,
		recoveryMiddleware(cfg.Logger),
		loggingMiddleware(cfg.Logger),
	)
	return s, nil
}

// Handler returns the server as an http.Handler for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       1 * time.Minute,
		WriteTimeout:      2 * time.Minute, // generation can be slow
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}
