// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	healthfeature "github.com/dalemusser/chatschema/internal/app/features/health"
	"github.com/dalemusser/chatschema/internal/app/system/schemametrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BuildHandler constructs the status router used in serve mode:
//   - /healthz and /readiness from the health feature
//   - /metrics with the run's Prometheus registry
func BuildHandler(health *healthfeature.Handler, metrics *schemametrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Mount("/", healthfeature.Routes(health))
	r.Handle("/metrics", metrics.Handler())

	return r
}
