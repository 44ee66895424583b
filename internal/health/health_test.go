package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLivenessAlwaysOK(t *testing.T) {
	t.Parallel()

	h := New(Probe{Name: "broken", Fn: func(context.Context) error { return errors.New("down") }})
	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadinessAggregatesProbes(t *testing.T) {
	t.Parallel()

	h := New(
		Probe{Name: "asr", Fn: func(context.Context) error { return nil }},
		Probe{Name: "llm", Fn: func(context.Context) error { return errors.New("token expired") }},
	)
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "fail" {
		t.Errorf("status field = %q", resp.Status)
	}
	if resp.Checks["asr"] != "ok" {
		t.Errorf("asr check = %q", resp.Checks["asr"])
	}
	if resp.Checks["llm"] != "fail: token expired" {
		t.Errorf("llm check = %q", resp.Checks["llm"])
	}
}

func TestReadinessAllPassing(t *testing.T) {
	t.Parallel()

	h := New(Probe{Name: "asr", Fn: func(context.Context) error { return nil }})
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMountRoutes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New().Mount(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}
