// Package logging configures the zap logger shared by all components.
// Level and format come from the environment so deployments can flip to
// debug without a rebuild.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger from LOG_LEVEL (debug|info|warn|error, default info)
// and LOG_FORMAT (json|console, default json).
func New() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true

	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	}

	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "console" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	return cfg.Build()
}

// Nop returns a logger that discards everything. Library constructors use it
// as the default so tests stay quiet.
func Nop() *zap.Logger { return zap.NewNop() }
