// Package mock provides a test double for the tts.Provider interface.
//
// The mock replays a fixed set of audio chunks for every synthesised segment
// and records the texts it was asked to speak, letting tests assert on
// segmentation without a live synthesis service.
package mock

import (
	"context"
	"sync"

	"github.com/callcraft-ai/callcraft/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the audio emitted for each non-empty segment. Defaults to a
	// single 4-byte chunk when nil.
	Chunks [][]byte

	// SynthesizeErr, if non-nil, is returned by Synthesize instead of
	// starting a stream.
	SynthesizeErr error

	// Gate, when non-nil, is received from before each chunk is emitted;
	// close it to release all remaining chunks. Lets tests hold a segment
	// mid-stream to exercise cancellation.
	Gate chan struct{}

	// Texts records every text passed to Synthesize, in order.
	Texts []string

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// Synthesize records the text and returns a channel replaying Chunks.
// Empty or whitespace-only text still gets recorded but yields no audio,
// mirroring real providers.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	p.mu.Lock()
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.Texts = append(p.Texts, text)
		p.mu.Unlock()
		return nil, err
	}
	p.Texts = append(p.Texts, text)
	chunks := p.Chunks
	if chunks == nil {
		chunks = [][]byte{{0x01, 0x02, 0x03, 0x04}}
	}
	gate := p.Gate
	p.mu.Unlock()

	out := make(chan []byte, len(chunks))
	go func() {
		defer close(out)
		for _, c := range chunks {
			if gate != nil {
				select {
				case <-gate:
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close records the call.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCount++
	return nil
}

// SpokenTexts returns a snapshot of the recorded segment texts.
func (p *Provider) SpokenTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Texts))
	copy(out, p.Texts)
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = nil
	p.CloseCount = 0
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
