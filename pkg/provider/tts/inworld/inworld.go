// Package inworld provides a TTS provider backed by the Inworld streaming
// synthesis API. It implements the tts.Provider interface.
//
// The API is an HTTP streaming POST: the response body is a sequence of JSON
// lines, each carrying a base64 WAV chunk in result.audioContent. Chunks are
// decoded, the 44-byte WAV header is stripped, and the raw LINEAR16 samples
// are forwarded.
package inworld

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/callcraft-ai/callcraft/pkg/provider/tts"
)

const (
	defaultEndpoint   = "https://api.inworld.ai/tts/v1/voice:stream"
	defaultModelID    = "inworld-tts-1"
	defaultVoiceID    = "Olivia"
	defaultSampleRate = 48000

	// wavHeaderLen is the RIFF header prefixed to every chunk the API returns.
	wavHeaderLen = 44

	// synthesisTemperature trades expressiveness against stability.
	synthesisTemperature = 0.85
)

// Option is a functional option for configuring the Inworld Provider.
type Option func(*Provider)

// WithModel sets the synthesis model (e.g., "inworld-tts-1").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the voice identifier (e.g., "Mark", "Olivia").
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithSampleRate sets the output sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithEndpoint overrides the synthesis endpoint URL.
func WithEndpoint(u string) Option {
	return func(p *Provider) {
		p.endpoint = u
	}
}

// Provider implements tts.Provider backed by the Inworld streaming API.
// The HTTP client is shared across segments so keep-alive connections are
// reused for every synthesis request in a session.
type Provider struct {
	authHeader string
	model      string
	voice      string
	sampleRate int
	endpoint   string
	client     *http.Client
}

// New creates a new Inworld Provider. apiKeyB64 is the pre-encoded Basic
// credential issued by the Inworld console.
func New(apiKeyB64 string, opts ...Option) (*Provider, error) {
	if apiKeyB64 == "" {
		return nil, errors.New("inworld: apiKey must not be empty")
	}
	p := &Provider{
		authHeader: "Basic " + apiKeyB64,
		model:      defaultModelID,
		voice:      defaultVoiceID,
		sampleRate: defaultSampleRate,
		endpoint:   defaultEndpoint,
		client: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesisRequest is the JSON request body for one segment.
type synthesisRequest struct {
	Text        string      `json:"text"`
	VoiceID     string      `json:"voiceId"`
	ModelID     string      `json:"modelId"`
	Temperature float64     `json:"temperature"`
	AudioConfig audioConfig `json:"audio_config"`
}

type audioConfig struct {
	AudioEncoding   string `json:"audio_encoding"`
	SampleRateHertz int    `json:"sample_rate_hertz"`
}

// streamLine is one JSON line of the streaming response.
type streamLine struct {
	Result struct {
		AudioContent string `json:"audioContent"`
	} `json:"result"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	out := make(chan []byte, 16)

	if strings.TrimSpace(text) == "" {
		close(out)
		return out, nil
	}

	body, err := json.Marshal(synthesisRequest{
		Text:        text,
		VoiceID:     p.voice,
		ModelID:     p.model,
		Temperature: synthesisTemperature,
		AudioConfig: audioConfig{
			AudioEncoding:   "LINEAR16",
			SampleRateHertz: p.sampleRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("inworld: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("inworld: build request: %w", err)
	}
	req.Header.Set("Authorization", p.authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inworld: request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("inworld: synthesis returned %s", resp.Status)
	}

	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		// Base64 WAV lines can be large; allow up to 4 MiB per line.
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			pcm, ok := decodeLine(scanner.Bytes())
			if !ok {
				continue
			}
			select {
			case out <- pcm:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// decodeLine parses one response line into raw PCM with the WAV header
// removed. Lines that are empty, malformed, or carry no audio are skipped.
func decodeLine(line []byte) ([]byte, bool) {
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, false
	}
	var sl streamLine
	if err := json.Unmarshal(line, &sl); err != nil {
		return nil, false
	}
	if sl.Result.AudioContent == "" {
		return nil, false
	}
	wav, err := base64.StdEncoding.DecodeString(sl.Result.AudioContent)
	if err != nil {
		return nil, false
	}
	if len(wav) <= wavHeaderLen {
		return nil, false
	}
	return wav[wavHeaderLen:], true
}

// Close shuts down idle keep-alive connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

var _ tts.Provider = (*Provider)(nil)
