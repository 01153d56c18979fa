package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestNotReadyUntilSet(t *testing.T) {
	s := New(0, nil)
	h := s.Handler()

	for _, path := range []string{"/healthz", "/readyz"} {
		if rec, _ := get(t, h, path); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503 before ready, got %d", path, rec.Code)
		}
	}
	s.SetReady(true)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rec, body := get(t, h, path); rec.Code != http.StatusOK || body["status"] != "ok" {
			t.Fatalf("%s: expected ok, got %d %v", path, rec.Code, body)
		}
	}
}

func TestReadyzReportsFailingChecks(t *testing.T) {
	s := New(0, nil)
	s.SetReady(true)
	s.AddCheck("eventstore", func(context.Context) error { return errors.New("database is locked") })
	s.AddCheck("artifacts", func(context.Context) error { return nil })

	rec, body := get(t, s.Handler(), "/readyz")
	if rec.Code != http.StatusServiceUnavailable || body["status"] != "degraded" {
		t.Fatalf("expected degraded, got %d %v", rec.Code, body)
	}
	checks, _ := body["checks"].(map[string]any)
	if checks["eventstore"] != "database is locked" || checks["artifacts"] != nil {
		t.Fatalf("unexpected checks %v", checks)
	}

	// Liveness ignores dependency checks.
	if rec, _ := get(t, s.Handler(), "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("# HELP duomode_sessions_total"))
	})
	rec, _ := get(t, New(0, metrics).Handler(), "/metrics")
	if rec.Code != http.StatusOK || rec.Body.String() != "# HELP duomode_sessions_total" {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}

	if rec, _ := get(t, New(0, nil).Handler(), "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics without handler should 404, got %d", rec.Code)
	}
}
