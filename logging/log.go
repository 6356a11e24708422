// Package logging builds the zap loggers used across edgez and carries them
// through context.Context.
package logging

import (
	"context"
	"os"

	"go.uber.org/zap"
)

// DebugEnv switches NewLogger to zap's development configuration when set to "true".
const DebugEnv = "EDGEZ_DEBUG"

// NewLogger returns a new zap.SugaredLogger named "edgez".
func NewLogger() *zap.SugaredLogger {
	var config zap.Config
	if debugMode, ok := os.LookupEnv(DebugEnv); ok && debugMode == "true" {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.OutputPaths = []string{"stdout"}
	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger.Named("edgez").Sugar()
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

type loggerKey struct{}

// WithLogger returns a copy of parent context in which the
// value associated with logger key is the supplied logger.
func WithLogger(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger in the context, or a new one.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.SugaredLogger); ok {
		return logger
	}
	return NewLogger()
}
