package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/watzon/maintrack/internal/clock"
	"github.com/watzon/maintrack/internal/config"
	"github.com/watzon/maintrack/internal/database"
	"github.com/watzon/maintrack/internal/runner"
)

func setupTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	cfg.Server.Port = 0
	if mutate != nil {
		mutate(cfg)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clk := clock.Fake(time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC))
	r, err := runner.FromConfig(db, clk, cfg)
	if err != nil {
		t.Fatalf("failed to build runner: %v", err)
	}

	srv := New(cfg, db, r, WithVersion("1.2.3"), WithClock(clk))
	t.Cleanup(func() {
		if srv.triggerLimiter != nil {
			srv.triggerLimiter.Stop()
		}
	})

	return srv
}

func serve(srv *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	srv := setupTestServer(t, nil)

	w := serve(srv, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if body["version"] != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %v", body["version"])
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
}

func TestServer_RunsJobs(t *testing.T) {
	srv := setupTestServer(t, nil)

	for _, job := range []string{runner.JobGenerate, runner.JobExpire, runner.JobPerformance} {
		w := serve(srv, http.MethodPost, "/api/jobs/"+job+"/run")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", job, w.Code, w.Body.String())
		}
	}

	w := serve(srv, http.MethodGet, "/api/jobs")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode jobs: %v", err)
	}
	if list.Count != 3 {
		t.Errorf("expected 3 jobs, got %d", list.Count)
	}

	run, err := srv.Runner().State().Get(context.Background(), runner.JobExpire)
	if err != nil || run == nil {
		t.Fatalf("expected recorded expire run, got %v %v", run, err)
	}
	if run.Trigger != "http" {
		t.Errorf("expected http trigger, got %q", run.Trigger)
	}
}

func TestServer_TriggerRateLimit(t *testing.T) {
	srv := setupTestServer(t, func(cfg *config.Config) {
		cfg.Server.TriggerRateLimit = config.RateLimitRule{Max: 1, Window: time.Hour}
	})

	if w := serve(srv, http.MethodPost, "/api/jobs/expire/run"); w.Code != http.StatusOK {
		t.Fatalf("expected first trigger to run, got %d", w.Code)
	}
	if w := serve(srv, http.MethodPost, "/api/jobs/expire/run"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w := serve(srv, http.MethodGet, "/api/jobs"); w.Code != http.StatusOK {
		t.Errorf("listing jobs should not be limited, got %d", w.Code)
	}
}

func TestServer_NoTriggerLimitWhenDisabled(t *testing.T) {
	srv := setupTestServer(t, func(cfg *config.Config) {
		cfg.Server.TriggerRateLimit.Max = 0
	})

	if srv.triggerLimiter != nil {
		t.Fatal("expected no limiter when max is 0")
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := setupTestServer(t, func(cfg *config.Config) {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Path = "/metrics"
	})

	serve(srv, http.MethodGet, "/api/templates/missing")

	w := serve(srv, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "maintrack_db_connections_open") {
		t.Error("expected db gauges in exposition")
	}
	if !strings.Contains(body, `path="/api/templates/:"`) {
		t.Error("expected route pattern label in exposition")
	}
}

func TestServer_NotFound(t *testing.T) {
	srv := setupTestServer(t, nil)

	if w := serve(srv, http.MethodGet, "/api/nope"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := serve(srv, http.MethodDelete, "/api/templates"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := setupTestServer(t, func(cfg *config.Config) {
		cfg.Server.Host = "127.0.0.1"
		cfg.Server.Port = 0
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
