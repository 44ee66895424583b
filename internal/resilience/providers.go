package resilience

import (
	"context"
	"errors"

	"github.com/callcraft-ai/callcraft/pkg/provider/asr"
	"github.com/callcraft-ai/callcraft/pkg/provider/llm"
	"github.com/callcraft-ai/callcraft/pkg/provider/tts"
)

// ─── LLM ──────────────────────────────────────────────────────────────────────

// LLMFailover implements [llm.Provider] across a primary and zero or more
// fallback backends. Only starting a request is covered: once a token stream
// is established, mid-stream errors stay with the caller, which already
// handles them via the error-chunk convention.
type LLMFailover struct {
	chain *chain[llm.Provider]
}

var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover wraps primary. Register fallbacks with AddFallback.
func NewLLMFailover(cfg BreakerConfig, primaryName string, primary llm.Provider) *LLMFailover {
	return &LLMFailover{chain: newChain(cfg, primaryName, primary)}
}

// AddFallback appends a backend tried after all earlier entries.
func (f *LLMFailover) AddFallback(name string, p llm.Provider) {
	f.chain.add(BreakerConfig{}, name, p)
}

func (f *LLMFailover) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return call(f.chain, func(p llm.Provider) (<-chan llm.Chunk, error) {
		return p.StreamCompletion(ctx, req)
	})
}

func (f *LLMFailover) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return call(f.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// ─── TTS ──────────────────────────────────────────────────────────────────────

// TTSFailover implements [tts.Provider] across multiple synthesis backends.
// A segment is synthesised entirely by one backend; failover applies per
// segment, not per audio chunk.
type TTSFailover struct {
	chain *chain[tts.Provider]
}

var _ tts.Provider = (*TTSFailover)(nil)

// NewTTSFailover wraps primary. Register fallbacks with AddFallback.
func NewTTSFailover(cfg BreakerConfig, primaryName string, primary tts.Provider) *TTSFailover {
	return &TTSFailover{chain: newChain(cfg, primaryName, primary)}
}

// AddFallback appends a backend tried after all earlier entries.
func (f *TTSFailover) AddFallback(name string, p tts.Provider) {
	f.chain.add(BreakerConfig{}, name, p)
}

func (f *TTSFailover) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	return call(f.chain, func(p tts.Provider) (<-chan []byte, error) {
		return p.Synthesize(ctx, text)
	})
}

// Close closes every backend and joins their errors.
func (f *TTSFailover) Close() error {
	var errs []error
	for i := range f.chain.backends {
		if err := f.chain.backends[i].value.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ─── ASR ──────────────────────────────────────────────────────────────────────

// ASRFailover implements [asr.Provider] across multiple recognition
// backends. Failover covers session establishment only; a session that dies
// mid-call surfaces through its closed Finals channel as usual.
type ASRFailover struct {
	chain *chain[asr.Provider]
}

var _ asr.Provider = (*ASRFailover)(nil)

// NewASRFailover wraps primary. Register fallbacks with AddFallback.
func NewASRFailover(cfg BreakerConfig, primaryName string, primary asr.Provider) *ASRFailover {
	return &ASRFailover{chain: newChain(cfg, primaryName, primary)}
}

// AddFallback appends a backend tried after all earlier entries.
func (f *ASRFailover) AddFallback(name string, p asr.Provider) {
	f.chain.add(BreakerConfig{}, name, p)
}

func (f *ASRFailover) Open(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	return call(f.chain, func(p asr.Provider) (asr.SessionHandle, error) {
		return p.Open(ctx, cfg)
	})
}
