package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	healthfeature "github.com/dalemusser/chatschema/internal/app/features/health"
	"github.com/dalemusser/chatschema/internal/app/system/indexes"
	"github.com/dalemusser/chatschema/internal/app/system/schemametrics"
	"github.com/dalemusser/chatschema/internal/app/system/timeouts"
	"github.com/dalemusser/chatschema/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", &ConfigError{Err: errors.New("bad")}, ExitConfig},
		{"conflict", &indexes.ConstraintConflictError{Collection: "users", Index: "email_1"}, ExitConflict},
		{"wrapped conflict", fmt.Errorf("run: %w", &indexes.ConstraintConflictError{}), ExitConflict},
		{"drift", fmt.Errorf("%w: 1 missing", ErrDrift), ExitConflict},
		{"connection", &indexes.ConnectionError{Op: "ping", Err: errors.New("refused")}, ExitConnection},
		{"interrupted", fmt.Errorf("create index users.email_1: %w", context.Canceled), ExitInterrupted},
		{"interrupted while waiting", &indexes.ConnectionError{Op: "ping", Err: errors.Join(context.Canceled, errors.New("refused"))}, ExitInterrupted},
		{"other", errors.New("not authorized"), ExitOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// flakyPinger fails the first n pings.
type flakyPinger struct {
	failures int32
	calls    atomic.Int32
}

func (p *flakyPinger) Ping(context.Context, *readpref.ReadPref) error {
	if p.calls.Add(1) <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForMongo(t *testing.T) {
	ctx := context.Background()

	t.Run("single attempt without wait", func(t *testing.T) {
		p := &flakyPinger{failures: 1}
		err := waitForMongo(ctx, p, 0, time.Millisecond, zap.NewNop())
		if !indexes.IsConnectionError(err) {
			t.Fatalf("expected ConnectionError, got %v", err)
		}
		if p.calls.Load() != 1 {
			t.Errorf("expected 1 attempt, got %d", p.calls.Load())
		}
	})

	t.Run("succeeds after retries", func(t *testing.T) {
		p := &flakyPinger{failures: 3}
		if err := waitForMongo(ctx, p, 5*time.Second, time.Millisecond, zap.NewNop()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.calls.Load() != 4 {
			t.Errorf("expected 4 attempts, got %d", p.calls.Load())
		}
	})

	t.Run("gives up when budget is spent", func(t *testing.T) {
		p := &flakyPinger{failures: 1 << 20}
		start := time.Now()
		err := waitForMongo(ctx, p, 50*time.Millisecond, 10*time.Millisecond, zap.NewNop())
		if !indexes.IsConnectionError(err) {
			t.Fatalf("expected ConnectionError, got %v", err)
		}
		if time.Since(start) > 2*time.Second {
			t.Errorf("waited too long: %v", time.Since(start))
		}
		if n := p.calls.Load(); n < 2 {
			t.Errorf("expected several attempts, got %d", n)
		}
	})

	t.Run("stops on cancel", func(t *testing.T) {
		p := &flakyPinger{failures: 1 << 20}
		cctx, cancel := context.WithCancel(ctx)
		time.AfterFunc(20*time.Millisecond, cancel)

		err := waitForMongo(cctx, p, time.Minute, 5*time.Millisecond, zap.NewNop())
		if !indexes.IsConnectionError(err) {
			t.Fatalf("expected ConnectionError, got %v", err)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}
	})
}

type okPinger struct{}

func (okPinger) Ping(context.Context, *readpref.ReadPref) error { return nil }

func TestBuildHandler(t *testing.T) {
	health := healthfeature.NewHandler(okPinger{}, "test", zap.NewNop())
	metrics := schemametrics.New()
	metrics.Record(indexes.KindIndex, "users", "email_1", indexes.OutcomeCreated)
	h := BuildHandler(health, metrics)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/healthz", http.StatusOK, `"status":"UP"`},
		{"/readiness", http.StatusServiceUnavailable, `"status":"NOT_READY"`},
		{"/metrics", http.StatusOK, "chatschema_operations_total"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body missing %q: %s", tt.wantBody, rec.Body.String())
			}
		})
	}

	health.MarkReady()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readiness", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readiness after MarkReady: got %d, want 200", rec.Code)
	}
}

func TestServeStatus_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	health := healthfeature.NewHandler(okPinger{}, "test", zap.NewNop())
	health.MarkReady()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveStatus(ctx, ln, BuildHandler(health, schemametrics.New()), health, zap.NewNop())
	}()

	url := "http://" + ln.Addr().String() + "/readiness"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("readiness: got %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serveStatus returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serveStatus did not return after cancel")
	}
	if health.Ready() {
		t.Error("expected not ready after shutdown")
	}
}

func TestEnsureSchema_NoDatabase(t *testing.T) {
	err := EnsureSchema(context.Background(), DBDeps{}, nil, zap.NewNop())
	if ExitCode(err) != ExitConnection {
		t.Errorf("ExitCode = %d, want %d (%v)", ExitCode(err), ExitConnection, err)
	}
}

func TestExecute_Unreachable(t *testing.T) {
	defer timeouts.Reset()

	cfg := validConfig()
	// Nothing listens on port 1.
	cfg.MongoURI = "mongodb://127.0.0.1:1/?connectTimeoutMS=200"
	cfg.ConnectTimeout = 300 * time.Millisecond

	err := Execute(context.Background(), cfg, zap.NewNop(), io.Discard)
	if ExitCode(err) != ExitConnection {
		t.Fatalf("ExitCode = %d, want %d (%v)", ExitCode(err), ExitConnection, err)
	}
}

func TestExecute_InitThenVerify(t *testing.T) {
	defer timeouts.Reset()
	db := testutil.SetupTestDB(t)

	cfg := validConfig()
	cfg.MongoURI = testutil.TestURI()
	cfg.MongoDatabase = db.Name()

	// Verify before init reports drift.
	cfg.Mode = ModeVerify
	cfg.ReportFormat = "json"
	var out bytes.Buffer
	err := Execute(context.Background(), cfg, zap.NewNop(), &out)
	if ExitCode(err) != ExitConflict {
		t.Fatalf("verify on empty db: ExitCode = %d (%v)", ExitCode(err), err)
	}
	if !strings.Contains(out.String(), `"missing": 5`) {
		t.Errorf("expected 5 missing in report, got:\n%s", out.String())
	}

	cfg.Mode = ModeInit
	for i := 0; i < 2; i++ {
		if err := Execute(context.Background(), cfg, zap.NewNop(), io.Discard); err != nil {
			t.Fatalf("init run %d: %v", i+1, err)
		}
	}

	cfg.Mode = ModeVerify
	out.Reset()
	if err := Execute(context.Background(), cfg, zap.NewNop(), &out); err != nil {
		t.Fatalf("verify after init: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), `"ok": true`) {
		t.Errorf("expected ok report, got:\n%s", out.String())
	}
}

func TestExecute_ConflictExitCode(t *testing.T) {
	defer timeouts.Reset()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := db.Collection("chats").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetName("id_1"),
	})
	if err != nil {
		t.Fatalf("seed index: %v", err)
	}

	cfg := validConfig()
	cfg.MongoURI = testutil.TestURI()
	cfg.MongoDatabase = db.Name()

	err = Execute(ctx, cfg, zap.NewNop(), io.Discard)
	if ExitCode(err) != ExitConflict {
		t.Errorf("ExitCode = %d, want %d (%v)", ExitCode(err), ExitConflict, err)
	}
}
