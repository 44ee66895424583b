// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service and presents a uniform
// streaming interface: Synthesize accepts one text segment and returns a
// channel of raw PCM audio chunks as they become available, enabling
// low-latency pipelining between the LLM segmenter and client playback.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts one text segment to speech and returns a channel
	// that emits raw PCM16 little-endian mono audio chunks at 48 kHz.
	//
	// The returned channel is closed by the implementation when the segment
	// has been fully synthesised, when a provider error cuts the stream
	// short, or when ctx is cancelled. The caller must drain the channel to
	// avoid blocking the provider's internal goroutines; callers should
	// check ctx.Err() to distinguish cancellation from provider errors.
	//
	// Returns a non-nil error only if the stream cannot be started. An empty
	// or whitespace-only text yields an immediately closed channel.
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)

	// Close releases any long-lived resources (connection pools). After
	// Close, Synthesize must not be called.
	Close() error
}
