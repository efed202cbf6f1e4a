package core

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"duepoint/internal/config"
	"duepoint/internal/types"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{Environment: "local"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(cfg, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

func TestRecoverer_CatchesPanic(t *testing.T) {
	s := testServer(t)
	handler := s.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestRequestIDMiddleware_GeneratesAndEchoes(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("request ID not injected into context")
	}
	if got := w.Header().Get("X-Request-Id"); got != seen {
		t.Errorf("response header %q does not match context value %q", got, seen)
	}
}

func TestRequestIDMiddleware_PropagatesIncoming(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "upstream-id")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if seen != "upstream-id" {
		t.Errorf("expected upstream-id, got %q", seen)
	}
}

func TestContextTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := ContextTimeoutMiddleware(5*time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !ok {
		t.Fatal("expected a context deadline")
	}
	if time.Until(deadline) > 5*time.Second {
		t.Errorf("deadline too far in the future: %v", deadline)
	}
}

func TestHandleHealth_NoProbes(t *testing.T) {
	s := testServer(t)
	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

type staticProbe struct {
	name string
	err  error
}

func (p staticProbe) Name() string                    { return p.name }
func (p staticProbe) Check(_ context.Context) error   { return p.err }

func TestHandleHealth_UnhealthyProbe(t *testing.T) {
	s := testServer(t)
	s.HealthProbes = []HealthProbe{
		staticProbe{name: "database", err: context.DeadlineExceeded},
	}

	w := httptest.NewRecorder()
	s.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestValidator_ValidateStruct(t *testing.T) {
	v := NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)))

	type req struct {
		InvoiceID string `validate:"required"`
	}

	if err := v.ValidateStruct(req{InvoiceID: "inv-1"}); err != nil {
		t.Errorf("unexpected error for valid struct: %v", err)
	}
	if err := v.ValidateStruct(req{}); err == nil {
		t.Error("expected error for missing required field")
	}
}
