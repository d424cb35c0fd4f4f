// internal/app/bootstrap/serve.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	healthfeature "github.com/dalemusser/chatschema/internal/app/features/health"
	"github.com/dalemusser/chatschema/internal/app/system/schemametrics"
	"github.com/dalemusser/chatschema/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// runServe initializes the schema and then serves the status endpoints
// until ctx is cancelled. Nothing is served when initialization fails.
func runServe(ctx context.Context, appCfg AppConfig, deps DBDeps, metrics *schemametrics.Metrics, logger *zap.Logger) error {
	health := healthfeature.NewHandler(deps.MongoClient, Version, logger)

	start := time.Now()
	err := EnsureSchema(ctx, deps, metrics, logger)
	metrics.ObserveRun(ModeServe, time.Since(start), err)
	if err != nil {
		return err
	}
	health.MarkReady()

	ln, err := net.Listen("tcp", appCfg.StatusAddr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", appCfg.StatusAddr, err)
	}
	return serveStatus(ctx, ln, BuildHandler(health, metrics), health, logger)
}

// serveStatus serves h on ln until ctx is done, then shuts down gracefully.
func serveStatus(ctx context.Context, ln net.Listener, h http.Handler, health *healthfeature.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down status server")
	health.MarkNotReady()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown())
	defer cancel()
	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("status server shutdown failed", zap.Error(err))
		return fmt.Errorf("status server shutdown: %w", err)
	}
	logger.Info("status server stopped")
	return nil
}
