// internal/app/features/health/routes.go
package health

import "github.com/go-chi/chi/v5"

// Routes returns a subrouter that serves the liveness and readiness probes.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.Liveness)
	r.Get("/readiness", h.Readiness)
	return r
}
