// Package timeouts provides centralized timeout values for database calls.
//
// The bootstrapper never retries and never sets its own deadlines beyond
// these; they are the connection layer's budget for each blocking call.
//
//   - Ping: health checks and readiness pings
//   - Connect: one connect+ping attempt
//   - Operation: one createCollection / createIndexes / listIndexes call
//   - Shutdown: draining the status server and disconnecting the client
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing      = 2 * time.Second
	DefaultConnect   = 10 * time.Second
	DefaultOperation = 30 * time.Second
	DefaultShutdown  = 15 * time.Second
)

// mu protects all timeout values from concurrent access.
var mu sync.RWMutex

var (
	ping      = DefaultPing
	connect   = DefaultConnect
	operation = DefaultOperation
	shutdown  = DefaultShutdown
)

// Ping returns the timeout for health checks and connectivity verification.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Connect returns the timeout for a single connect+ping attempt.
func Connect() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return connect
}

// Operation returns the timeout for a single schema command.
func Operation() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return operation
}

// Shutdown returns the timeout for graceful shutdown.
func Shutdown() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return shutdown
}

// Config holds timeout configuration values.
// Zero values are ignored (defaults are kept).
type Config struct {
	Ping      time.Duration
	Connect   time.Duration
	Operation time.Duration
	Shutdown  time.Duration
}

// Configure sets custom timeout values. Zero values in the config are ignored,
// keeping the current (or default) values.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Connect > 0 {
		connect = cfg.Connect
	}
	if cfg.Operation > 0 {
		operation = cfg.Operation
	}
	if cfg.Shutdown > 0 {
		shutdown = cfg.Shutdown
	}
}

// Reset restores all timeouts to their default values.
// Useful for testing.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	connect = DefaultConnect
	operation = DefaultOperation
	shutdown = DefaultShutdown
}

// Current returns the current timeout configuration as a Config struct.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return Config{
		Ping:      ping,
		Connect:   connect,
		Operation: operation,
		Shutdown:  shutdown,
	}
}

// WithTimeout creates a context with timeout and returns a cancel function that
// logs a warning if the context was canceled due to deadline exceeded.
//
// Example:
//
//	ctx, cancel := timeouts.WithTimeout(ctx, timeouts.Operation(), log, "create index users.email_1")
//	defer cancel()
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
