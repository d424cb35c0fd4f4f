package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dalemusser/chatschema/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is the part of *mongo.Client the health checks need.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

var _ Pinger = (*mongo.Client)(nil)

// Check states reported in the checks map.
const (
	StateUp       = "UP"
	StateDown     = "DOWN"
	StateReady    = "READY"
	StateNotReady = "NOT_READY"
)

// Handler holds dependencies needed for health checks.
type Handler struct {
	Client  Pinger
	Version string
	Log     *zap.Logger

	ready atomic.Bool
}

// NewHandler constructs a health Handler. It starts not ready.
func NewHandler(client Pinger, version string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Client:  client,
		Version: version,
		Log:     logger,
	}
}

// MarkReady flips readiness once the schema is in place.
func (h *Handler) MarkReady() { h.ready.Store(true) }

// MarkNotReady is used while shutting down.
func (h *Handler) MarkNotReady() { h.ready.Store(false) }

// Ready reports the current readiness flag.
func (h *Handler) Ready() bool { return h.ready.Load() }

type healthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	CheckTime string            `json:"check_time"`
	Checks    map[string]string `json:"checks"`
	Error     string            `json:"error,omitempty"`
}

func (h *Handler) pingMongo(ctx context.Context) (string, error) {
	if h.Client == nil {
		return StateDown, mongo.ErrClientDisconnected
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()

	if err := h.Client.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		return StateDown, err
	}
	return StateUp, nil
}

// Liveness handles GET /healthz.
//
// On success: 200 and
//
//	{ "status":"UP", "check_time":"…", "checks":{"mongodb":"UP"} }
//
// When Mongo does not answer: 503 with status DOWN and the ping error.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	mongoState, err := h.pingMongo(r.Context())

	resp := healthResponse{
		Status:    mongoState,
		Version:   h.Version,
		CheckTime: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{"mongodb": mongoState},
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

// Readiness handles GET /readiness. It is 200 only after MarkReady and while
// Mongo answers pings.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	mongoState, err := h.pingMongo(r.Context())

	readyState := StateNotReady
	if h.Ready() {
		readyState = StateReady
	}

	status := StateReady
	if mongoState != StateUp || readyState != StateReady {
		status = StateNotReady
	}

	resp := healthResponse{
		Status:    status,
		Version:   h.Version,
		CheckTime: time.Now().UTC().Format(time.RFC3339),
		Checks:    map[string]string{"mongodb": mongoState, "ready": readyState},
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, resp healthResponse) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Status != StateUp && resp.Status != StateReady {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}
