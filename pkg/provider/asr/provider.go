// Package asr defines the Provider interface for streaming speech recognition
// backends.
//
// An ASR provider wraps a real-time transcription service and exposes a
// uniform streaming interface. The central abstraction is SessionHandle: once
// opened, a session accepts raw PCM audio frames and emits two event streams —
// authoritative final transcripts, and voice-activity events used for barge-in
// and client-side speaking indicators.
//
// Implementations must be safe for concurrent use. Audio input and event
// output channels are goroutine-safe by construction.
package asr

import (
	"context"

	"github.com/callcraft-ai/callcraft/pkg/types"
)

// StreamConfig describes the audio format for a new ASR session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. The microphone uplink is
	// 16000 Hz PCM16 mono.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// Empty lets the provider auto-detect, if supported.
	Language string
}

// SessionHandle represents an open ASR streaming session. It is an interface
// so that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. Failing to do
// so may leak goroutines and network connections inside the provider
// implementation. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider for
	// transcription. The chunk must match the SampleRate and Channels agreed
	// in StreamConfig. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Finals returns a read-only channel that emits authoritative Transcript
	// values once the provider has committed to a recognition result. The
	// channel is closed when the session ends.
	Finals() <-chan types.Transcript

	// Events returns a read-only channel of voice-activity events (periodic
	// speech/silence states and utterance boundaries). The channel is closed
	// when the session ends.
	Events() <-chan types.VADEvent

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. After Close returns, the Finals and Events
	// channels will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any ASR backend.
type Provider interface {
	// Open establishes a new streaming transcription session with the given
	// audio format. The returned SessionHandle is ready to accept audio.
	//
	// Returns an error if the provider cannot establish the session
	// (authentication failure, unsupported configuration, or ctx already
	// cancelled). The caller owns the SessionHandle and must call Close.
	Open(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
