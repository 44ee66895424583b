// Package protocol defines the JSON wire messages exchanged on the /ws/agent
// WebSocket.
//
// Every frame is a flat JSON object discriminated by its "type" field.
// Outbound events are constructed through the New* helpers so the type tag is
// always correct; inbound frames go through DecodeInbound, which validates the
// tag and ignores unknown fields.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/callcraft-ai/callcraft/pkg/types"
)

// ─── Inbound ──────────────────────────────────────────────────────────────────

// InboundKind enumerates the client-to-server control frame types.
type InboundKind string

const (
	// InboundStart opens the session with a chosen persona.
	InboundStart InboundKind = "start"

	// InboundStop is a user-initiated hangup.
	InboundStop InboundKind = "stop"

	// InboundFinalAudioComplete confirms the client drained playback of the
	// closing phrase after a hangup.
	InboundFinalAudioComplete InboundKind = "final_audio_complete"
)

// Inbound is a decoded client control frame.
type Inbound struct {
	Kind InboundKind

	// Persona is set for InboundStart frames. Defaults to PersonaA when the
	// client omits it.
	Persona types.Persona
}

// ErrUnknownType is returned by DecodeInbound for frames whose type tag is not
// a recognised control message. Callers log and ignore these.
var ErrUnknownType = errors.New("protocol: unknown message type")

// DecodeInbound parses a client text frame into an Inbound value.
func DecodeInbound(data []byte) (Inbound, error) {
	var raw struct {
		Type    string `json:"type"`
		Persona string `json:"persona"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("protocol: decode frame: %w", err)
	}

	switch InboundKind(raw.Type) {
	case InboundStart:
		p := types.Persona(raw.Persona)
		if raw.Persona == "" {
			p = types.PersonaA
		}
		if !p.IsValid() {
			return Inbound{}, fmt.Errorf("protocol: unknown persona %q", raw.Persona)
		}
		return Inbound{Kind: InboundStart, Persona: p}, nil
	case InboundStop:
		return Inbound{Kind: InboundStop}, nil
	case InboundFinalAudioComplete:
		return Inbound{Kind: InboundFinalAudioComplete}, nil
	default:
		return Inbound{}, fmt.Errorf("%w: %q", ErrUnknownType, raw.Type)
	}
}

// ─── Outbound ─────────────────────────────────────────────────────────────────

// Status reports session lifecycle transitions: "connected", "initializing",
// "ready", or an "error: …" string.
type Status struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewStatus returns a status event with the given message.
func NewStatus(message string) Status {
	return Status{Type: "status", Message: message}
}

// ASRFinal carries one final transcript of the user's speech.
type ASRFinal struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewASRFinal returns an asr_final event.
func NewASRFinal(text string) ASRFinal {
	return ASRFinal{Type: "asr_final", Text: text}
}

// LLMToken carries one incremental fragment of the assistant's reply.
type LLMToken struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewLLMToken returns an llm_token event.
func NewLLMToken(text string) LLMToken {
	return LLMToken{Type: "llm_token", Text: text}
}

// AudioStart precedes the first binary audio chunk of each segment so the
// client can flip its speaking indicator before samples arrive.
type AudioStart struct {
	Type string `json:"type"`
}

// NewAudioStart returns an audio_start event.
func NewAudioStart() AudioStart {
	return AudioStart{Type: "audio_start"}
}

// SegmentDone signals that all audio for one synthesis segment has been sent.
// IsFinal marks the closing segment of a persona-initiated hangup.
type SegmentDone struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
}

// NewSegmentDone returns a segment_done event.
func NewSegmentDone(isFinal bool) SegmentDone {
	return SegmentDone{Type: "segment_done", IsFinal: isFinal}
}

// TurnDone signals the end of one complete assistant turn.
type TurnDone struct {
	Type string `json:"type"`
}

// NewTurnDone returns a turn_done event.
func NewTurnDone() TurnDone {
	return TurnDone{Type: "turn_done"}
}

// Hangup tells the client the persona has ended the call; playback of already
// delivered audio may continue until the client confirms with
// final_audio_complete.
type Hangup struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// NewHangup returns a hangup event.
func NewHangup() Hangup {
	return Hangup{Type: "hangup"}
}

// Done is the last frame of every session.
type Done struct {
	Type string `json:"type"`
}

// NewDone returns a done event.
func NewDone() Done {
	return Done{Type: "done"}
}

// Clear instructs the client to fade out and drop its queued playback buffer
// after a barge-in.
type Clear struct {
	Type string `json:"type"`
}

// NewClear returns a clear event.
func NewClear() Clear {
	return Clear{Type: "clear"}
}

// VADState is the passthrough of a periodic speech/silence classification.
type VADState struct {
	Type  string  `json:"type"`
	State string  `json:"state"`
	Prob  float64 `json:"prob"`
}

// Utterance is the passthrough of an utterance boundary event.
type Utterance struct {
	Type  string `json:"type"`
	Phase string `json:"phase"`
}

// NewVAD converts a provider voice-activity event into its wire form.
// The returned value is one of VADState or Utterance.
func NewVAD(e types.VADEvent) any {
	if e.Kind == types.VADKindUtterance {
		return Utterance{Type: "utterance", Phase: e.Phase}
	}
	return VADState{Type: "vad", State: e.State, Prob: e.Probability}
}
