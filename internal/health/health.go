// Package health provides the /healthz liveness and /readyz readiness
// endpoints. Liveness passes whenever the process serves HTTP; readiness
// passes only when every registered probe does.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// probeTimeout caps how long one readiness probe may run.
const probeTimeout = 5 * time.Second

// Probe is a named readiness check. Fn returns nil when the dependency is
// usable and must respect context cancellation.
type Probe struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Handler serves the two health endpoints. The probe list is fixed at
// construction time, making the handler safe for concurrent use.
type Handler struct {
	probes []Probe
}

// New creates a Handler evaluating the given probes, in order, per /readyz
// request.
func New(probes ...Probe) *Handler {
	return &Handler{probes: append([]Probe(nil), probes...)}
}

// Mount adds the health routes to mux.
func (h *Handler) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Liveness)
	mux.HandleFunc("GET /readyz", h.Readiness)
}

// Liveness always answers 200: a process able to run this handler is alive.
func (h *Handler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readiness answers 200 only when every probe passes, 503 otherwise. Each
// probe gets its own deadline derived from the request context.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ok", Checks: make(map[string]string, len(h.probes))}
	code := http.StatusOK

	for _, p := range h.probes {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Fn(ctx)
		cancel()
		if err != nil {
			resp.Checks[p.Name] = "fail: " + err.Error()
			resp.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[p.Name] = "ok"
	}

	writeJSON(w, code, resp)
}

// response is the JSON body for both endpoints.
type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
