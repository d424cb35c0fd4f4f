// internal/app/bootstrap/logger.go
package bootstrap

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NewLogger builds the process logger: JSON for prod, console otherwise.
// Every entry carries the run_id so one bootstrap run can be found in
// aggregated logs.
func NewLogger(env string) (*zap.Logger, string, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, "", err
	}

	runID := uuid.NewString()
	return logger.With(zap.String("run_id", runID)), runID, nil
}
