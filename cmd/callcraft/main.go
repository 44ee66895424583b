// Command callcraft is the main entry point for the Callcraft sales-call
// practice server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callcraft-ai/callcraft/internal/config"
	"github.com/callcraft-ai/callcraft/internal/feedback"
	"github.com/callcraft-ai/callcraft/internal/health"
	"github.com/callcraft-ai/callcraft/internal/observe"
	"github.com/callcraft-ai/callcraft/internal/resilience"
	"github.com/callcraft-ai/callcraft/internal/session"
	"github.com/callcraft-ai/callcraft/internal/transport"
	"github.com/callcraft-ai/callcraft/pkg/provider/asr"
	"github.com/callcraft-ai/callcraft/pkg/provider/asr/fennec"
	"github.com/callcraft-ai/callcraft/pkg/provider/llm"
	"github.com/callcraft-ai/callcraft/pkg/provider/llm/anyllm"
	oaillm "github.com/callcraft-ai/callcraft/pkg/provider/llm/openai"
	"github.com/callcraft-ai/callcraft/pkg/provider/tts"
	"github.com/callcraft-ai/callcraft/pkg/provider/tts/inworld"
)

// basetenBaseURL is the default OpenAI-compatible inference endpoint used by
// the "baseten" provider alias.
const basetenBaseURL = "https://inference.baseten.co/v1"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "callcraft: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "callcraft: %v\n", err)
		}
		return 1
	}
	config.ApplyEnv(cfg)

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("callcraft starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "callcraft"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer func() {
		if err := providers.TTS.Close(); err != nil {
			slog.Warn("tts close error", "err", err)
		}
	}()

	// ── HTTP routes ───────────────────────────────────────────────────────────
	sessionCfg := session.Config{
		ASR:           providers.ASR,
		LLM:           providers.LLM,
		TTS:           providers.TTS,
		Metrics:       metrics,
		Logger:        logger,
		HangupTimeout: time.Duration(cfg.Session.HangupTimeoutMS) * time.Millisecond,
		IdleTimeout:   time.Duration(cfg.Session.IdleTimeoutMS) * time.Millisecond,
	}

	mux := http.NewServeMux()
	mux.Handle("/ws/agent", transport.NewAgentHandler(sessionCfg))

	instrument := observe.Middleware(metrics)
	mux.Handle("POST /api/feedback", instrument(feedback.NewHandler(
		feedback.NewEvaluator(providers.LLM, logger), logger)))

	health.New(
		health.Probe{Name: "providers", Fn: func(context.Context) error {
			if providers.ASR == nil || providers.LLM == nil || providers.TTS == nil {
				return errors.New("provider missing")
			}
			return nil
		}},
	).Mount(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// ── Serve ─────────────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providerSet holds the instantiated pipeline stages.
type providerSet struct {
	ASR asr.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── ASR ───────────────────────────────────────────────────────────────────

	reg.RegisterASR("fennec", func(entry config.ProviderEntry) (asr.Provider, error) {
		var opts []fennec.Option
		if entry.BaseURL != "" {
			opts = append(opts, fennec.WithStreamURL(entry.BaseURL))
		}
		return fennec.New(entry.APIKey, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────
	// "openai" talks to any OpenAI-compatible endpoint; "baseten" is the same
	// client pointed at the Baseten inference gateway by default.

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("baseten", func(entry config.ProviderEntry) (llm.Provider, error) {
		base := entry.BaseURL
		if base == "" {
			base = basetenBaseURL
		}
		return oaillm.New(entry.APIKey, entry.Model, oaillm.WithBaseURL(base))
	})

	// The remaining model backends share one adapter: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("inworld", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []inworld.Option
		if entry.Model != "" {
			opts = append(opts, inworld.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice_id"); voice != "" {
			opts = append(opts, inworld.WithVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, inworld.WithEndpoint(entry.BaseURL))
		}
		return inworld.New(entry.APIKey, opts...)
	})
}

// buildProviders instantiates the three pipeline stages named in cfg. A stage
// with fallback entries is wrapped in the matching failover chain, so the rest
// of the server only ever sees one provider per stage.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{}
	var err error

	if ps.ASR, err = buildASR(cfg.Providers.ASR, reg); err != nil {
		return nil, fmt.Errorf("create asr provider %q: %w", cfg.Providers.ASR.Name, err)
	}
	slog.Info("provider created", "kind", "asr", "name", cfg.Providers.ASR.Name,
		"fallbacks", len(cfg.Providers.ASR.Fallbacks))

	if ps.LLM, err = buildLLM(cfg.Providers.LLM, reg); err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name,
		"model", cfg.Providers.LLM.Model, "fallbacks", len(cfg.Providers.LLM.Fallbacks))

	if ps.TTS, err = buildTTS(cfg.Providers.TTS, reg); err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name,
		"fallbacks", len(cfg.Providers.TTS.Fallbacks))

	return ps, nil
}

func buildASR(entry config.ProviderEntry, reg *config.Registry) (asr.Provider, error) {
	primary, err := reg.CreateASR(entry)
	if err != nil || len(entry.Fallbacks) == 0 {
		return primary, err
	}
	f := resilience.NewASRFailover(resilience.BreakerConfig{}, entry.Name, primary)
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateASR(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		f.AddFallback(fb.Name, p)
	}
	return f, nil
}

func buildLLM(entry config.ProviderEntry, reg *config.Registry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(entry)
	if err != nil || len(entry.Fallbacks) == 0 {
		return primary, err
	}
	f := resilience.NewLLMFailover(resilience.BreakerConfig{}, entry.Name, primary)
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateLLM(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		f.AddFallback(fb.Name, p)
	}
	return f, nil
}

func buildTTS(entry config.ProviderEntry, reg *config.Registry) (tts.Provider, error) {
	primary, err := reg.CreateTTS(entry)
	if err != nil || len(entry.Fallbacks) == 0 {
		return primary, err
	}
	f := resilience.NewTTSFailover(resilience.BreakerConfig{}, entry.Name, primary)
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateTTS(fb)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", fb.Name, err)
		}
		f.AddFallback(fb.Name, p)
	}
	return f, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
