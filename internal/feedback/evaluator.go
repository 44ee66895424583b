// Package feedback scores a finished sales practice call. A transcript and
// the persona it was played against go in; a structured scorecard over nine
// coaching criteria comes out, produced by a single non-streaming LLM call.
package feedback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/callcraft-ai/callcraft/pkg/provider/llm"
	"github.com/callcraft-ai/callcraft/pkg/types"
)

const (
	// Scoring wants determinism, not creativity.
	evalTemperature = 0.1
	evalMaxTokens   = 500
)

// evalPrompt asks for a strict boolean verdict per criterion plus short
// coaching tags, as bare JSON.
const evalPrompt = `You are a sales coach evaluating a cold call transcript. Be strict but fair.

PERSONA CONTEXT:
%s

TRANSCRIPT:
%s

Evaluate against these 9 criteria. For each, return true ONLY if clearly demonstrated:

OPENER (2 criteria):
1. permission_opener: Asked for permission or time before pitching
2. used_research: Referenced specific info about prospect/company

SOCIAL_PROOF (2 criteria):
3. provided_proof: Gave concrete example/case study/metric
4. checked_relevance: Asked if the proof resonated or was relevant

DISCOVERY (1 criterion):
5. asked_preconceptions: Asked what prospect already knows/thinks about the space

CLOSING (2 criteria):
6. next_steps: Proposed clear next action
7. meeting_booked: Got commitment for follow-up

TAKEAWAY (2 criteria):
8. confirmed_time: Re-confirmed availability/timing works
9. success_criteria: Asked what would make next call successful

Also provide:
- summary: One short phrase (max 5 words) capturing main advice
- strengths: Array of 1-2 short strength tags (max 3 words each)
- improvements: Array of 1-2 short improvement tags (max 3 words each)

Return ONLY valid JSON:
{
  "criteria": {
    "permission_opener": bool,
    "used_research": bool,
    "provided_proof": bool,
    "checked_relevance": bool,
    "asked_preconceptions": bool,
    "next_steps": bool,
    "meeting_booked": bool,
    "confirmed_time": bool,
    "success_criteria": bool
  },
  "summary": "string",
  "strengths": ["string"],
  "improvements": ["string"]
}`

// personaContexts describes each persona to the coach.
var personaContexts = map[types.Persona]string{
	types.PersonaA: "Joe - Director of Operations at Bain & Co. Time-constrained, direct, efficiency-focused.",
	types.PersonaB: "Sam - CEO of BlackRock. Professional, high-level, ROI-focused, dislikes buzzwords.",
}

// Score is a correct/total pair.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Criterion is one scored coaching check.
type Criterion struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// Category groups related criteria with a subtotal.
type Category struct {
	Name     string      `json:"name"`
	Score    Score       `json:"score"`
	Criteria []Criterion `json:"criteria"`
}

// Scorecard is the full evaluation result returned to the client.
type Scorecard struct {
	OverallScore Score      `json:"overallScore"`
	Categories   []Category `json:"categories"`
	Summary      string     `json:"summary"`
	Strengths    []string   `json:"strengths"`
	Improvements []string   `json:"improvements"`
}

// evalResult is the JSON shape the model is asked to return.
type evalResult struct {
	Criteria     map[string]bool `json:"criteria"`
	Summary      string          `json:"summary"`
	Strengths    []string        `json:"strengths"`
	Improvements []string        `json:"improvements"`
}

// Evaluator scores transcripts with an LLM.
type Evaluator struct {
	llm    llm.Provider
	logger *slog.Logger
}

// NewEvaluator returns an Evaluator backed by the given provider.
func NewEvaluator(p llm.Provider, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{llm: p, logger: logger}
}

// Evaluate scores one transcript. A transport or provider failure returns an
// error; a model reply that is not parseable JSON degrades to an all-false
// scorecard instead, so a flaky model never breaks the client flow.
func (e *Evaluator) Evaluate(ctx context.Context, transcript []types.Message, persona types.Persona) (*Scorecard, error) {
	pc, ok := personaContexts[persona]
	if !ok {
		pc = personaContexts[types.PersonaA]
	}
	prompt := fmt.Sprintf(evalPrompt, pc, formatTranscript(transcript))

	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []types.Message{{Role: "user", Content: prompt}},
		Temperature: evalTemperature,
		MaxTokens:   evalMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("feedback: evaluation request: %w", err)
	}

	var result evalResult
	content := stripFences(resp.Content)
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		e.logger.Error("failed to parse evaluation response", slog.String("error", err.Error()))
		result = evalResult{Summary: "Analysis failed"}
	}
	return buildScorecard(result), nil
}

// formatTranscript renders chat messages as readable dialogue. The user is
// the trainee running the pitch; the assistant played the prospect.
func formatTranscript(messages []types.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		role := "Prospect"
		if msg.Role == "user" {
			role = "Sales Rep"
		}
		lines = append(lines, role+": "+msg.Content)
	}
	return strings.Join(lines, "\n")
}

// stripFences unwraps a Markdown code fence if the model added one.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	return content
}

// buildScorecard maps the model verdicts onto the fixed category layout and
// sums the scores. Missing criteria count as failed.
func buildScorecard(result evalResult) *Scorecard {
	passed := func(key string) bool { return result.Criteria[key] }

	categories := []Category{
		{Name: "Opener", Criteria: []Criterion{
			{Name: "Permission based opener?", Passed: passed("permission_opener")},
			{Name: "Used research on prospect?", Passed: passed("used_research")},
		}},
		{Name: "Social Proof", Criteria: []Criterion{
			{Name: "Provided social proof?", Passed: passed("provided_proof")},
			{Name: "Asked if social proof was relevant?", Passed: passed("checked_relevance")},
		}},
		{Name: "Discovery", Criteria: []Criterion{
			{Name: "SDR asked for preconceptions?", Passed: passed("asked_preconceptions")},
		}},
		{Name: "Closing", Criteria: []Criterion{
			{Name: "Next steps agreed upon?", Passed: passed("next_steps")},
			{Name: "Follow-up meeting booked?", Passed: passed("meeting_booked")},
		}},
		{Name: "Takeaway", Criteria: []Criterion{
			{Name: "Re-confirmed time works?", Passed: passed("confirmed_time")},
			{Name: "Asked for success criteria?", Passed: passed("success_criteria")},
		}},
	}

	card := &Scorecard{
		Summary:      result.Summary,
		Strengths:    result.Strengths,
		Improvements: result.Improvements,
	}
	if card.Summary == "" {
		card.Summary = "Keep improving"
	}
	if card.Strengths == nil {
		card.Strengths = []string{}
	}
	if card.Improvements == nil {
		card.Improvements = []string{}
	}
	for i := range categories {
		cat := &categories[i]
		cat.Score.Total = len(cat.Criteria)
		for _, c := range cat.Criteria {
			if c.Passed {
				cat.Score.Correct++
			}
		}
		card.OverallScore.Correct += cat.Score.Correct
		card.OverallScore.Total += cat.Score.Total
	}
	card.Categories = categories
	return card
}
