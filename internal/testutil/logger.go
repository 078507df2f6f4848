package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output.
// Equivalent to log.NewNop(); use whichever import is closer.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
