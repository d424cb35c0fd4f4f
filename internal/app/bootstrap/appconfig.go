// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Run modes.
const (
	ModeInit   = "init"
	ModeVerify = "verify"
	ModeServe  = "serve"
)

// AppConfig holds chatschema's own settings, loaded in LoadConfig.
//
// WAFFLE's CoreConfig carries the framework-level settings (environment,
// logging). Everything the schema run needs lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI      string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase string // Database the chat service uses (default: ai_router)

	Mode string // init, verify or serve

	// Waiting for the server. MongoWait 0 means a single attempt.
	MongoWait         time.Duration
	MongoWaitInterval time.Duration

	ConnectTimeout time.Duration // per connect+ping attempt
	OpTimeout      time.Duration // per create/list call

	StatusAddr   string // listen address in serve mode
	ReportFormat string // verify output: text, json or yaml
	NoColor      bool
}
