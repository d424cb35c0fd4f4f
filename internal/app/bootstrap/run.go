// internal/app/bootstrap/run.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dalemusser/chatschema/internal/app/system/indexes"
	"github.com/dalemusser/chatschema/internal/app/system/schemametrics"
	"github.com/dalemusser/chatschema/internal/app/system/timeouts"
	"github.com/dalemusser/chatschema/internal/app/system/ui"
	"go.uber.org/zap"
)

// Version is stamped at build time with -ldflags "-X ...bootstrap.Version=...".
var Version = "dev"

// ErrDrift is returned by verify mode when the database does not match.
var ErrDrift = errors.New("schema drift detected")

// Process exit codes.
const (
	ExitOK         = 0
	ExitConfig     = 1
	ExitConflict   = 2
	ExitConnection = 3
	ExitOther      = 10

	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted = 130
)

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &cfgErr):
		return ExitConfig
	case indexes.IsConstraintConflict(err), errors.Is(err, ErrDrift):
		return ExitConflict
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case indexes.IsConnectionError(err):
		return ExitConnection
	default:
		return ExitOther
	}
}

// Run loads configuration, sets up logging and performs one run in the
// configured mode. Output meant for people (the verify report) goes to out.
func Run(ctx context.Context, out io.Writer) error {
	bootLogger, err := zap.NewProduction()
	if err != nil {
		bootLogger = zap.NewNop()
	}
	coreCfg, appCfg, err := LoadConfig(bootLogger)
	_ = bootLogger.Sync()
	if err != nil {
		return err
	}

	logger, runID, err := NewLogger(coreCfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	if err := ValidateConfig(appCfg, logger); err != nil {
		return err
	}

	logger.Info("chatschema starting",
		zap.String("version", Version),
		zap.String("run_id", runID),
		zap.String("env", coreCfg.Env),
		zap.String("mode", appCfg.Mode),
		zap.String("database", appCfg.MongoDatabase))

	return Execute(ctx, appCfg, logger, out)
}

// Execute performs one run with an already validated config.
func Execute(ctx context.Context, appCfg AppConfig, logger *zap.Logger, out io.Writer) error {
	timeouts.Configure(timeouts.Config{
		Connect:   appCfg.ConnectTimeout,
		Operation: appCfg.OpTimeout,
	})
	ui.InitColors(appCfg.NoColor)
	metrics := schemametrics.New()

	start := time.Now()
	deps, err := ConnectDB(ctx, appCfg, logger)
	if err != nil {
		metrics.ObserveRun(appCfg.Mode, time.Since(start), err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown())
		defer cancel()
		_ = Shutdown(shutdownCtx, deps, logger)
	}()

	switch appCfg.Mode {
	case ModeVerify:
		err = runVerify(ctx, appCfg, deps, logger, out)
		metrics.ObserveRun(ModeVerify, time.Since(start), err)
		return err
	case ModeServe:
		return runServe(ctx, appCfg, deps, metrics, logger)
	default:
		err = EnsureSchema(ctx, deps, metrics, logger)
		metrics.ObserveRun(ModeInit, time.Since(start), err)
		return err
	}
}

func runVerify(ctx context.Context, appCfg AppConfig, deps DBDeps, logger *zap.Logger, out io.Writer) error {
	rep, err := VerifySchema(ctx, deps, logger)
	if err != nil {
		logger.Error("schema verification failed", zap.Error(err))
		return err
	}
	if err := ui.RenderReport(out, rep, appCfg.ReportFormat); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if !rep.OK() {
		logger.Warn("schema drift detected",
			zap.Int("missing", rep.Count(indexes.StatusMissing)),
			zap.Int("conflict", rep.Count(indexes.StatusConflict)))
		return fmt.Errorf("%w: %d missing, %d conflicting", ErrDrift,
			rep.Count(indexes.StatusMissing), rep.Count(indexes.StatusConflict))
	}
	logger.Info("schema verified")
	return nil
}
