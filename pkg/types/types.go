// Package types defines the shared value types used across all CallCraft packages.
//
// These types form the lingua franca between the provider adapters, the session
// orchestrator, and the feedback evaluator. Each package defines its own domain
// types; cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Message represents a single entry in a conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// Transcript represents a final speech-to-text result from an ASR provider.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// provider does not report confidence.
	Confidence float64

	// Timestamp marks when the utterance was recognised, relative to session start.
	Timestamp time.Duration
}

// VADEventKind enumerates the voice-activity event shapes emitted by an ASR
// session alongside transcripts.
type VADEventKind string

const (
	// VADKindState is a periodic speech/silence/noise classification.
	VADKindState VADEventKind = "vad"

	// VADKindUtterance marks the begin or end of a detected utterance.
	VADKindUtterance VADEventKind = "utterance"
)

// VADEvent is a voice-activity notification from the ASR provider. The same
// struct carries both periodic state events and utterance boundary events;
// Kind selects which fields are meaningful.
type VADEvent struct {
	// Kind distinguishes state events from utterance boundary events.
	Kind VADEventKind

	// State is the classification for Kind == VADKindState: "speech",
	// "silence", or "noise".
	State string

	// Probability is the speech probability score (0.0–1.0) for state events.
	Probability float64

	// Phase is "begin" or "end" for Kind == VADKindUtterance.
	Phase string
}

// SpeechOnset reports whether the event signals the user starting to speak.
// Both an utterance begin and a speech state classification count; either one
// triggers barge-in while the agent is talking.
func (e VADEvent) SpeechOnset() bool {
	switch e.Kind {
	case VADKindUtterance:
		return e.Phase == "begin"
	case VADKindState:
		return e.State == "speech"
	}
	return false
}

// Persona identifies one of the built-in prospect personas a caller can train
// against.
type Persona string

const (
	// PersonaA is "Joe", a direct, efficiency-focused operations director.
	PersonaA Persona = "A"

	// PersonaB is "Sam", a calm, ROI-focused chief executive.
	PersonaB Persona = "B"
)

// IsValid reports whether p is a recognised persona.
func (p Persona) IsValid() bool {
	return p == PersonaA || p == PersonaB
}
