package events

import (
	"context"
	"os"
	"sync"
)

type contextKey int

const (
	loggerKey contextKey = iota
	operationKey
	walletIDKey
)

// FromContext extracts logger from context.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	// Return default logger
	return defaultLogger
}

// WithLogger adds logger to context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithOperation tags the context logger with the running operation.
func WithOperation(ctx context.Context, op string) context.Context {
	logger := FromContext(ctx).WithField("operation", op)
	ctx = context.WithValue(ctx, operationKey, op)
	return WithLogger(ctx, logger)
}

// WithWalletID adds wallet ID to context.
func WithWalletID(ctx context.Context, id string) context.Context {
	logger := FromContext(ctx).WithField("wallet_id", id)
	ctx = context.WithValue(ctx, walletIDKey, id)
	return WithLogger(ctx, logger)
}

// GetOperation retrieves the operation from context.
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok {
		return op
	}
	return ""
}

// GetWalletID retrieves wallet ID from context.
func GetWalletID(ctx context.Context) string {
	if id, ok := ctx.Value(walletIDKey).(string); ok {
		return id
	}
	return ""
}

var defaultLogger = &Logger{
	mu:     &sync.Mutex{},
	level:  InfoLevel,
	format: "text",
	output: os.Stderr,
	fields: make(map[string]interface{}),
}

// SetDefault sets the default logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}
