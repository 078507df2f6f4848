package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ychsieh/ragchat/internal/api"
	"github.com/ychsieh/ragchat/internal/app"
	"github.com/ychsieh/ragchat/internal/config"
	"github.com/ychsieh/ragchat/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and serves the REST API until
// SIGINT or SIGTERM.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	var logLevel slog.Level
	_ = logLevel.UnmarshalText([]byte(cfg.LogLevel))
	logger := log.New(log.Config{Level: logLevel, JSON: cfg.LogJSON})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting ragchat", "version", AppVersion, "model", cfg.ModelName)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	server, err := api.NewServer(api.ServerConfig{
		Chat:           a.Chat,
		Ingest:         a.Ingest,
		Sessions:       a.Sessions,
		DB:             a.DBPool,
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		RatePerSecond:  cfg.RatePerSecond,
		RateBurst:      cfg.RateBurst,
		TrustProxy:     cfg.TrustProxy,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	logger.Info("HTTP server ready",
		"addr", cfg.Addr(),
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)
	if err := server.Run(ctx, cfg.Addr()); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}
