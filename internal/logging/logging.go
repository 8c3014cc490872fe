// Package logging provides a small structured-logging wrapper around
// go.uber.org/zap: leveled, structured logging appropriate for a
// production trading engine.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production zap.Logger at the given level ("debug", "info",
// "warn", "error"; unrecognized values fall back to "info").
func New(level string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		// zap construction failure is a startup-fatal condition; fall back
		// to zap's example logger (JSON to stdout, debug level) rather than
		// panicking here.
		fmt.Fprintf(os.Stderr, "logging: falling back to example logger: %v\n", err)
		return zap.NewExample()
	}
	return logger
}
