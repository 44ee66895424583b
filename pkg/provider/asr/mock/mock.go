// Package mock provides test doubles for the asr.Provider and
// asr.SessionHandle interfaces.
//
// Tests drive the orchestrator by pushing transcripts and voice-activity
// events through a Session's Push methods, standing in for a live recognition
// service.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/callcraft-ai/callcraft/pkg/provider/asr"
	"github.com/callcraft-ai/callcraft/pkg/types"
)

// Session is a mock asr.SessionHandle. Create one with NewSession.
type Session struct {
	mu     sync.Mutex
	closed bool

	finals chan types.Transcript
	events chan types.VADEvent

	// SentAudio records every chunk passed to SendAudio, in order.
	SentAudio [][]byte

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// SendGate, when non-nil, is received from before each chunk is
	// recorded; close it to release all pending sends. Lets tests stall the
	// audio pump to build up upstream backpressure.
	SendGate chan struct{}

	// CloseCount is the number of times Close was called.
	CloseCount int
}

// NewSession returns a Session with buffered transcript and event channels.
func NewSession() *Session {
	return &Session{
		finals: make(chan types.Transcript, 16),
		events: make(chan types.VADEvent, 16),
	}
}

// PushFinal delivers a final transcript to the session's consumer.
func (s *Session) PushFinal(t types.Transcript) {
	s.finals <- t
}

// PushEvent delivers a voice-activity event to the session's consumer.
func (s *Session) PushEvent(e types.VADEvent) {
	s.events <- e
}

// SendAudio records the chunk, waiting on SendGate first when one is set.
func (s *Session) SendAudio(chunk []byte) error {
	if s.SendGate != nil {
		<-s.SendGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SentAudio = append(s.SentAudio, cp)
	return nil
}

// Finals returns the transcript channel.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Events returns the voice-activity event channel.
func (s *Session) Events() <-chan types.VADEvent { return s.events }

// Close marks the session closed and closes both output channels.
// Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCount++
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.finals)
	close(s.events)
	return nil
}

// AudioCount returns the number of chunks recorded so far.
func (s *Session) AudioCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SentAudio)
}

// Sent returns a snapshot of the recorded chunks.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.SentAudio))
	copy(out, s.SentAudio)
	return out
}

// Provider is a mock asr.Provider that hands out a pre-built Session.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Open. If nil and OpenErr is nil, Open creates a
	// fresh Session per call.
	Session *Session

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// OpenCalls records the StreamConfig of every Open invocation.
	OpenCalls []asr.StreamConfig
}

// Open records the call and returns the configured session or error.
func (p *Provider) Open(_ context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.OpenCalls = append(p.OpenCalls, cfg)
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Ensure the mocks satisfy the interfaces at compile time.
var (
	_ asr.Provider      = (*Provider)(nil)
	_ asr.SessionHandle = (*Session)(nil)
)
