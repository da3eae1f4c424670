package testutils

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// NewTestLogger returns a debug level logger. Output is discarded unless
// JDBC_SINK_TEST_LOG is set, so table tests stay readable.
func NewTestLogger() *slog.Logger {
	if os.Getenv("JDBC_SINK_TEST_LOG") == "" {
		return slog.New(slog.DiscardHandler)
	}

	//nolint:exhaustruct // optional config
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		AddSource:  true,
		Level:      slog.LevelDebug,
		TimeFormat: "15:04:05.000",
		NoColor:    true,
	}))
}
