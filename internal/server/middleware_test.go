package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/watzon/maintrack/internal/requestctx"
)

func TestRecoveryMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	wrapped := RecoveryMiddleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	var response map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["error"] != "internal server error" {
		t.Errorf("expected error message 'internal server error', got %v", response["error"])
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var captured *http.Request

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.WriteHeader(http.StatusOK)
	})

	wrapped := RequestIDMiddleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	requestID := requestctx.RequestID(captured.Context())
	if requestID == "" {
		t.Error("request ID should be set in context")
	}
	if got := w.Header().Get("X-Request-ID"); got != requestID {
		t.Errorf("context request ID %q should match header ID %q", requestID, got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "existing-request-id")
	w = httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if got := requestctx.RequestID(captured.Context()); got != "existing-request-id" {
		t.Errorf("expected incoming request ID to be kept, got %q", got)
	}
}

func TestLoggingMiddleware_CapturesStatus(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	wrapped := RequestIDMiddleware(LoggingMiddleware(handler))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("expected status %d, got %d", http.StatusTeapot, w.Code)
	}
	if w.Body.String() != "short and stout" {
		t.Errorf("unexpected body %q", w.Body.String())
	}
}

func TestResponseWriter_CountsBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, status: http.StatusOK}

	_, _ = w.Write([]byte("abc"))
	_, _ = w.Write([]byte("de"))
	w.Flush()

	if w.bytes != 5 {
		t.Errorf("expected 5 bytes, got %d", w.bytes)
	}
	if !rec.Flushed {
		t.Error("expected flush to reach the underlying writer")
	}
}

func TestRouteLabel(t *testing.T) {
	mux := http.NewServeMux()
	var label string
	mux.HandleFunc("POST /api/jobs/{job}/run", func(w http.ResponseWriter, r *http.Request) {
		label = routeLabel(r)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/expire/run", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	if label != "/api/jobs/:/run" {
		t.Errorf("expected pattern label, got %q", label)
	}

	if got := routeLabel(httptest.NewRequest(http.MethodGet, "/nowhere", nil)); got != "unmatched" {
		t.Errorf("expected unmatched, got %q", got)
	}
}
