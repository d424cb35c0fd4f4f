// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/dalemusser/chatschema/internal/app/system/ui"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const (
	defaultMongoURI      = "mongodb://localhost:27017"
	defaultMongoDatabase = "ai_router"
)

// appConfigKeys defines the configuration keys for chatschema.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, mode, etc.
//   - Environment variables: CHATSCHEMA_MONGO_URI, CHATSCHEMA_MODE, etc.
//   - Command-line flags: --mongo_uri, --mode, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: defaultMongoURI, Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: defaultMongoDatabase, Desc: "MongoDB database name"},
	{Name: "mode", Default: ModeInit, Desc: "Run mode: 'init', 'verify' or 'serve'"},

	// Waiting for MongoDB to come up (e.g. in docker-compose)
	{Name: "mongo_wait", Default: "0s", Desc: "How long to keep retrying the first ping (0 = single attempt)"},
	{Name: "mongo_wait_interval", Default: "1s", Desc: "Delay between ping attempts while waiting"},

	{Name: "connect_timeout", Default: "10s", Desc: "Timeout for each connect+ping attempt"},
	{Name: "op_timeout", Default: "30s", Desc: "Timeout for each create/list call"},

	{Name: "status_addr", Default: ":8081", Desc: "Listen address for /healthz, /readiness and /metrics in serve mode"},
	{Name: "report_format", Default: ui.FormatText, Desc: "Verify report format: 'text', 'json' or 'yaml'"},
	{Name: "no_color", Default: false, Desc: "Disable colored output"},
}

// ConfigError marks a configuration problem. Run maps it to exit code 1.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return "config: " + e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, CHATSCHEMA_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "CHATSCHEMA", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, &ConfigError{Err: err}
	}

	appCfg := AppConfig{
		MongoURI:      appValues.String("mongo_uri"),
		MongoDatabase: appValues.String("mongo_database"),
		Mode:          appValues.String("mode"),

		MongoWait:         appValues.Duration("mongo_wait", 0),
		MongoWaitInterval: appValues.Duration("mongo_wait_interval", time.Second),

		ConnectTimeout: appValues.Duration("connect_timeout", 10*time.Second),
		OpTimeout:      appValues.Duration("op_timeout", 30*time.Second),

		StatusAddr:   appValues.String("status_addr"),
		ReportFormat: appValues.String("report_format"),
		NoColor:      appValues.Bool("no_color"),
	}

	applyLegacyEnv(&appCfg, os.Getenv, logger)
	return coreCfg, appCfg, nil
}

// applyLegacyEnv honors MONGODB_URI and MONGODB_DATABASE, the variables the
// chat service itself reads, when the CHATSCHEMA_ keys were left at their
// defaults. This lets the bootstrapper share the service's env file.
func applyLegacyEnv(cfg *AppConfig, getenv func(string) string, logger *zap.Logger) {
	if cfg.MongoURI == defaultMongoURI {
		if v := getenv("MONGODB_URI"); v != "" {
			cfg.MongoURI = v
			logger.Info("using MONGODB_URI from environment")
		}
	}
	if cfg.MongoDatabase == defaultMongoDatabase {
		if v := getenv("MONGODB_DATABASE"); v != "" {
			cfg.MongoDatabase = v
			logger.Info("using MONGODB_DATABASE from environment", zap.String("database", v))
		}
	}
}

// ValidateConfig rejects settings that would fail later in a less obvious
// way. The MongoDB URI is checked before any connection attempt.
func ValidateConfig(appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return &ConfigError{Err: fmt.Errorf("invalid MongoDB URI: %w", err)}
	}
	if appCfg.MongoDatabase == "" {
		return &ConfigError{Err: errors.New("mongo_database must not be empty")}
	}
	if !slices.Contains([]string{ModeInit, ModeVerify, ModeServe}, appCfg.Mode) {
		return &ConfigError{Err: fmt.Errorf("unknown mode %q (want init, verify or serve)", appCfg.Mode)}
	}
	if !slices.Contains(ui.Formats, appCfg.ReportFormat) {
		return &ConfigError{Err: fmt.Errorf("unknown report_format %q (want text, json or yaml)", appCfg.ReportFormat)}
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"mongo_wait", appCfg.MongoWait},
		{"mongo_wait_interval", appCfg.MongoWaitInterval},
		{"connect_timeout", appCfg.ConnectTimeout},
		{"op_timeout", appCfg.OpTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			return &ConfigError{Err: fmt.Errorf("%s must not be negative, got %s", d.name, d.d)}
		}
	}
	if appCfg.MongoWait > 0 && appCfg.MongoWaitInterval == 0 {
		return &ConfigError{Err: errors.New("mongo_wait_interval must be positive when mongo_wait is set")}
	}
	if appCfg.Mode == ModeServe && appCfg.StatusAddr == "" {
		return &ConfigError{Err: errors.New("status_addr is required in serve mode")}
	}
	return nil
}
