// Package app wires configuration, database, Genkit, and the domain
// services into a runnable application.
package app

import (
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ychsieh/ragchat/internal/chat"
	"github.com/ychsieh/ragchat/internal/config"
	"github.com/ychsieh/ragchat/internal/ingest"
	"github.com/ychsieh/ragchat/internal/knowledge"
	"github.com/ychsieh/ragchat/internal/session"
)

// App is the application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	DBPool   *pgxpool.Pool

	Knowledge *knowledge.Store
	Sessions  *session.Store
	Ingest    *ingest.Service
	Chat      *chat.Service

	otelCleanup func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}
	if a.otelCleanup != nil {
		// Flush pending spans last so shutdown itself is traced.
		a.otelCleanup()
	}
	return nil
}
