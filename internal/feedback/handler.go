package feedback

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/callcraft-ai/callcraft/pkg/types"
)

// evaluateRequest is the POST /api/feedback body.
type evaluateRequest struct {
	Transcript []types.Message `json:"transcript"`
	Persona    string          `json:"persona"`
}

// Handler exposes the evaluator over HTTP.
type Handler struct {
	eval   *Evaluator
	logger *slog.Logger
}

// NewHandler returns the /api/feedback handler.
func NewHandler(eval *Evaluator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{eval: eval, logger: logger}
}

// ServeHTTP scores the posted transcript. A malformed request is a 400; an
// upstream evaluation failure is a 502.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Transcript) == 0 {
		http.Error(w, "transcript must not be empty", http.StatusBadRequest)
		return
	}
	persona := types.Persona(req.Persona)
	if req.Persona == "" {
		persona = types.PersonaA
	}

	card, err := h.eval.Evaluate(r.Context(), req.Transcript, persona)
	if err != nil {
		h.logger.Error("feedback evaluation failed", slog.String("error", err.Error()))
		http.Error(w, "evaluation failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(card); err != nil {
		h.logger.Error("encode scorecard failed", slog.String("error", err.Error()))
	}
}
