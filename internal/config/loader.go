package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"asr": {"fennec"},
	"llm": {"openai", "baseten", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts": {"inworld"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. Secrets come from the
// environment in every deployment, so env always wins over the file.
func ApplyEnv(cfg *Config) {
	overlay := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	overlay(&cfg.Providers.ASR.APIKey, "FENNEC_API_KEY")
	overlay(&cfg.Providers.ASR.BaseURL, "FENNEC_BASE_URL")

	overlay(&cfg.Providers.LLM.APIKey, "LLM_API_KEY")
	overlay(&cfg.Providers.LLM.BaseURL, "LLM_BASE_URL")
	overlay(&cfg.Providers.LLM.Model, "LLM_MODEL")

	overlay(&cfg.Providers.TTS.APIKey, "INWORLD_API_KEY")
	overlay(&cfg.Providers.TTS.Model, "INWORLD_MODEL_ID")

	if v := os.Getenv("INWORLD_VOICE_ID"); v != "" {
		if cfg.Providers.TTS.Options == nil {
			cfg.Providers.TTS.Options = map[string]any{}
		}
		cfg.Providers.TTS.Options["voice_id"] = v
	}

	overlay(&cfg.Server.ListenAddr, "LISTEN_ADDR")
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("asr", cfg.Providers.ASR.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	// Fallback entries need a name to resolve against the registry.
	for kind, entry := range map[string]ProviderEntry{
		"asr": cfg.Providers.ASR,
		"llm": cfg.Providers.LLM,
		"tts": cfg.Providers.TTS,
	} {
		for i, fb := range entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks[%d].name is required", kind, i))
				continue
			}
			validateProviderName(kind, fb.Name)
		}
	}

	// All three stages are mandatory for the cascade.
	if cfg.Providers.ASR.Name == "" {
		errs = append(errs, errors.New("providers.asr.name is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}

	// Session timing
	if cfg.Session.HangupTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("session.hangup_timeout_ms %d must not be negative", cfg.Session.HangupTimeoutMS))
	}
	if cfg.Session.IdleTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout_ms %d must not be negative", cfg.Session.IdleTimeoutMS))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
