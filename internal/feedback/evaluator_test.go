package feedback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/callcraft-ai/callcraft/pkg/provider/llm"
	llmmock "github.com/callcraft-ai/callcraft/pkg/provider/llm/mock"
	"github.com/callcraft-ai/callcraft/pkg/types"
)

const sampleVerdict = `{
  "criteria": {
    "permission_opener": true,
    "used_research": true,
    "provided_proof": true,
    "checked_relevance": false,
    "asked_preconceptions": false,
    "next_steps": true,
    "meeting_booked": false,
    "confirmed_time": false,
    "success_criteria": false
  },
  "summary": "Ask more questions",
  "strengths": ["Strong opener"],
  "improvements": ["Check relevance"]
}`

var sampleTranscript = []types.Message{
	{Role: "user", Content: "Hi Joe, do you have 30 seconds?"},
	{Role: "assistant", Content: "Make it quick, what's this about?"},
}

func TestEvaluateScoring(t *testing.T) {
	t.Parallel()

	llmp := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: sampleVerdict}}
	eval := NewEvaluator(llmp, nil)

	card, err := eval.Evaluate(context.Background(), sampleTranscript, types.PersonaA)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if card.OverallScore != (Score{Correct: 4, Total: 9}) {
		t.Errorf("overall = %+v, want 4/9", card.OverallScore)
	}
	if len(card.Categories) != 5 {
		t.Fatalf("categories = %d, want 5", len(card.Categories))
	}
	if card.Categories[0].Name != "Opener" || card.Categories[0].Score != (Score{Correct: 2, Total: 2}) {
		t.Errorf("opener = %+v", card.Categories[0])
	}
	if card.Categories[2].Score.Total != 1 {
		t.Errorf("discovery total = %d, want 1", card.Categories[2].Score.Total)
	}
	if card.Summary != "Ask more questions" {
		t.Errorf("summary = %q", card.Summary)
	}

	// The prompt carries the formatted dialogue and the persona context.
	calls := llmp.CompleteCalls
	if len(calls) != 1 {
		t.Fatalf("complete calls = %d", len(calls))
	}
	prompt := calls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "Sales Rep: Hi Joe, do you have 30 seconds?") {
		t.Error("prompt missing formatted sales rep line")
	}
	if !strings.Contains(prompt, "Prospect: Make it quick") {
		t.Error("prompt missing formatted prospect line")
	}
	if !strings.Contains(prompt, "Joe - Director of Operations") {
		t.Error("prompt missing persona context")
	}
	if calls[0].Req.Temperature != evalTemperature || calls[0].Req.MaxTokens != evalMaxTokens {
		t.Errorf("sampling params = %+v", calls[0].Req)
	}
}

func TestEvaluateStripsCodeFences(t *testing.T) {
	t.Parallel()

	for _, wrapped := range []string{
		"```json\n" + sampleVerdict + "\n```",
		"Here you go:\n```\n" + sampleVerdict + "\n```",
	} {
		llmp := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: wrapped}}
		card, err := NewEvaluator(llmp, nil).Evaluate(context.Background(), sampleTranscript, types.PersonaB)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if card.OverallScore.Correct != 4 {
			t.Errorf("fenced response not parsed, overall = %+v", card.OverallScore)
		}
	}
}

func TestEvaluateMalformedReplyDegrades(t *testing.T) {
	t.Parallel()

	llmp := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "I cannot produce JSON today"}}
	card, err := NewEvaluator(llmp, nil).Evaluate(context.Background(), sampleTranscript, types.PersonaA)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if card.OverallScore != (Score{Correct: 0, Total: 9}) {
		t.Errorf("overall = %+v, want 0/9", card.OverallScore)
	}
	if card.Summary != "Analysis failed" {
		t.Errorf("summary = %q", card.Summary)
	}
}

func TestEvaluateProviderError(t *testing.T) {
	t.Parallel()

	llmp := &llmmock.Provider{CompleteErr: errors.New("upstream down")}
	if _, err := NewEvaluator(llmp, nil).Evaluate(context.Background(), sampleTranscript, types.PersonaA); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandlerStatusCodes(t *testing.T) {
	t.Parallel()

	ok := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: sampleVerdict}}
	failing := &llmmock.Provider{CompleteErr: errors.New("upstream down")}

	cases := []struct {
		name     string
		provider llm.Provider
		method   string
		body     string
		want     int
	}{
		{"ok", ok, http.MethodPost, `{"transcript":[{"role":"user","content":"hi"}],"persona":"A"}`, http.StatusOK},
		{"bad json", ok, http.MethodPost, `{nope`, http.StatusBadRequest},
		{"empty transcript", ok, http.MethodPost, `{"transcript":[],"persona":"A"}`, http.StatusBadRequest},
		{"wrong method", ok, http.MethodGet, ``, http.StatusMethodNotAllowed},
		{"llm failure", failing, http.MethodPost, `{"transcript":[{"role":"user","content":"hi"}]}`, http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := NewHandler(NewEvaluator(tc.provider, nil), nil)
			req := httptest.NewRequest(tc.method, "/api/feedback", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}
