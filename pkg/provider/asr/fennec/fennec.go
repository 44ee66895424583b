// Package fennec provides an ASR provider backed by the Fennec streaming
// WebSocket API. It implements the asr.Provider interface.
//
// Auth flow (per Fennec docs):
//  1. POST the API key to the streaming-token endpoint to get a short-lived JWT.
//  2. Connect to the stream endpoint with ?streaming_token=<JWT> in the URL.
//     No API key header is sent on the WebSocket itself.
package fennec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/callcraft-ai/callcraft/pkg/provider/asr"
	"github.com/callcraft-ai/callcraft/pkg/types"
)

const (
	defaultStreamURL = "wss://api.fennec-asr.com/api/v1/transcribe/stream"
	defaultTokenURL  = "https://api.fennec-asr.com/api/v1/transcribe/streaming-token"

	defaultSampleRate = 16000

	// defaultReadyTimeout bounds the wait for the server's "ready" handshake
	// after the start frame is sent.
	defaultReadyTimeout = 10 * time.Second
)

// VADConfig is the voice-activity tuning block sent in the start frame.
// Events must be enabled for barge-in to work; DefaultVADConfig requests them
// at 8 Hz.
type VADConfig struct {
	Threshold      float64 `json:"threshold"`
	MinSilenceMs   int     `json:"min_silence_ms"`
	SpeechPadMs    int     `json:"speech_pad_ms"`
	FinalSilenceS  float64 `json:"final_silence_s"`
	StartTriggerMs int     `json:"start_trigger_ms"`
	MinVoicedMs    int     `json:"min_voiced_ms"`
	MinChars       int     `json:"min_chars"`
	MinWords       int     `json:"min_words"`
	AmpExtend      int     `json:"amp_extend"`
	ForceDecodeMs  int     `json:"force_decode_ms"`
	Events         bool    `json:"events"`
	EventHz        int     `json:"event_hz"`
}

// DefaultVADConfig returns the tuning used for conversational barge-in.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Threshold:      0.6,
		MinSilenceMs:   50,
		SpeechPadMs:    350,
		FinalSilenceS:  0.05,
		StartTriggerMs: 150,
		MinVoicedMs:    100,
		MinChars:       1,
		MinWords:       1,
		AmpExtend:      600,
		ForceDecodeMs:  0,
		Events:         true,
		EventHz:        8,
	}
}

// Option is a functional option for configuring the Fennec Provider.
type Option func(*Provider)

// WithStreamURL overrides the WebSocket stream endpoint.
func WithStreamURL(u string) Option {
	return func(p *Provider) {
		p.streamURL = u
	}
}

// WithTokenURL overrides the streaming-token exchange endpoint.
func WithTokenURL(u string) Option {
	return func(p *Provider) {
		p.tokenURL = u
	}
}

// WithVADConfig replaces the default voice-activity tuning.
func WithVADConfig(v VADConfig) Option {
	return func(p *Provider) {
		p.vad = v
	}
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithReadyTimeout bounds the wait for the server's ready handshake.
func WithReadyTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.readyTimeout = d
	}
}

// Provider implements asr.Provider backed by the Fennec streaming API.
type Provider struct {
	apiKey       string
	streamURL    string
	tokenURL     string
	vad          VADConfig
	httpClient   *http.Client
	readyTimeout time.Duration
}

// New creates a new Fennec Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("fennec: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		streamURL:    defaultStreamURL,
		tokenURL:     defaultTokenURL,
		vad:          DefaultVADConfig(),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		readyTimeout: defaultReadyTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// startFrame is the JSON config frame sent immediately after connecting.
type startFrame struct {
	Type       string    `json:"type"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	VAD        VADConfig `json:"vad"`
}

// Open exchanges the API key for a streaming token, dials the stream endpoint,
// sends the start frame, and waits for the server's ready handshake before
// returning the session.
func (p *Provider) Open(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	token, err := p.fetchStreamingToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("fennec: fetch streaming token: %w", err)
	}

	wsURL, err := p.urlWithToken(token)
	if err != nil {
		return nil, fmt.Errorf("fennec: build URL: %w", err)
	}

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fennec: dial: %w", err)
	}
	conn.SetReadLimit(-1)

	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}
	ch := cfg.Channels
	if ch == 0 {
		ch = 1
	}

	start, err := json.Marshal(startFrame{
		Type:       "start",
		SampleRate: sr,
		Channels:   ch,
		VAD:        p.vad,
	})
	if err != nil {
		conn.Close(websocket.StatusInternalError, "encode start frame")
		return nil, fmt.Errorf("fennec: encode start frame: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, start); err != nil {
		conn.Close(websocket.StatusInternalError, "send start frame")
		return nil, fmt.Errorf("fennec: send start frame: %w", err)
	}

	sess := &session{
		conn:   conn,
		finals: make(chan types.Transcript, 64),
		events: make(chan types.VADEvent, 64),
		audio:  make(chan []byte, 256),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}

	sess.wg.Add(1)
	go sess.readLoop(ctx)

	// Audio sent before the server acknowledges the config is discarded
	// server-side, so gate the write loop on the ready handshake.
	select {
	case <-sess.ready:
	case <-time.After(p.readyTimeout):
		_ = sess.Close()
		return nil, errors.New("fennec: timed out waiting for ready handshake")
	case <-ctx.Done():
		_ = sess.Close()
		return nil, ctx.Err()
	}

	sess.wg.Add(1)
	go sess.writeLoop(ctx)

	return sess, nil
}

// fetchStreamingToken exchanges the API key for a short-lived JWT.
func (p *Provider) fetchStreamingToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", err
	}
	req.Header.Set("X-API-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("token endpoint returned %s", resp.Status)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("token endpoint returned no token")
	}
	return body.Token, nil
}

// urlWithToken merges ?streaming_token=... into the stream URL.
func (p *Provider) urlWithToken(token string) (string, error) {
	u, err := url.Parse(p.streamURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("streaming_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// serverMessage is the JSON envelope for all text frames from the server.
type serverMessage struct {
	Type  string  `json:"type"`
	Text  string  `json:"text"`
	Error string  `json:"error"`
	State string  `json:"state"`
	Prob  float64 `json:"prob"`
	Phase string  `json:"phase"`
}

// session is a live Fennec streaming session. It implements asr.SessionHandle.
type session struct {
	conn   *websocket.Conn
	finals chan types.Transcript
	events chan types.VADEvent
	audio  chan []byte

	ready     chan struct{}
	readyOnce sync.Once

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM chunk for delivery to the server.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("fennec: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("fennec: session is closed")
	}
}

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Events returns the channel of voice-activity events.
func (s *session) Events() <-chan types.VADEvent { return s.events }

// Close terminates the session cleanly. An eos frame asks the server to flush
// any pending audio before the socket goes down.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"eos"}`))
		// The connection must go down before the wait: readLoop blocks in
		// conn.Read and only a closed socket is guaranteed to unblock it when
		// the server has gone quiet.
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary frames to the server.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Flush whatever is still queued before exiting.
			for {
				select {
				case chunk := <-s.audio:
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// readLoop receives JSON messages from the server and dispatches them to the
// finals and events channels.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.finals)
	defer close(s.events)

	for {
		kind, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation.
			return
		}
		if kind != websocket.MessageText {
			continue
		}

		var m serverMessage
		if err := json.Unmarshal(msg, &m); err != nil {
			continue
		}

		switch {
		case m.Type == "ready":
			s.readyOnce.Do(func() { close(s.ready) })

		case m.Error != "":
			// Server-side recognition errors are non-fatal for the stream.
			continue

		case m.Type == "vad":
			ev := types.VADEvent{Kind: types.VADKindState, State: m.State, Probability: m.Prob}
			select {
			case s.events <- ev:
			case <-s.done:
			default:
				// VAD events are advisory; never block the read loop on them.
			}

		case m.Type == "utterance":
			ev := types.VADEvent{Kind: types.VADKindUtterance, Phase: m.Phase}
			select {
			case s.events <- ev:
			case <-s.done:
			}

		default:
			if t, ok := parseFinal(m); ok {
				select {
				case s.finals <- t:
				case <-s.done:
				}
			}
		}
	}
}

// parseFinal extracts a final transcript from a server message. Fennec tags
// finals as "final_transcript", "corrected_transcript", or "complete_thought";
// untyped messages with text are also treated as finals. Partials are never
// delivered on this stream.
func parseFinal(m serverMessage) (types.Transcript, bool) {
	switch m.Type {
	case "final_transcript", "corrected_transcript", "complete_thought", "":
	default:
		return types.Transcript{}, false
	}
	if m.Text == "" {
		return types.Transcript{}, false
	}
	return types.Transcript{Text: m.Text}, true
}

var _ asr.Provider = (*Provider)(nil)
var _ asr.SessionHandle = (*session)(nil)
