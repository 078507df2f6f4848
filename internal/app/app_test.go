package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ychsieh/ragchat/internal/config"
	"github.com/ychsieh/ragchat/internal/testutil"
)

func TestApp_Close_Empty(t *testing.T) {
	// Close must be safe on a partially initialized App, since Setup
	// calls it on any failure path.
	assert.NoError(t, (&App{}).Close())
	assert.NoError(t, (&App{Logger: testutil.DiscardLogger()}).Close())
}

func TestProvideTracing_Disabled(t *testing.T) {
	cleanup := provideTracing(context.Background(), &config.Config{}, testutil.DiscardLogger())
	require.NotNil(t, cleanup)
	cleanup()
}

func TestSetup_UnreachableDatabase(t *testing.T) {
	cfg := &config.Config{
		EmbedderModel:   config.DefaultEmbedderModel,
		PostgresHost:    "127.0.0.1",
		PostgresPort:    1, // nothing listens here
		PostgresUser:    "ragchat",
		PostgresDBName:  "ragchat",
		PostgresSSLMode: "disable",
	}

	_, err := Setup(context.Background(), cfg, testutil.DiscardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations")
}
