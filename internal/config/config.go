// Package config provides the configuration schema, loader, and provider
// registry for the Callcraft voice agent server.
package config

// LogLevel controls log verbosity for the Callcraft server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Callcraft.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Session   SessionConfig   `yaml:"session"`
}

// ServerConfig holds network and logging settings for the Callcraft server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	ASR ProviderEntry `yaml:"asr"`
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "fennec", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g.,
	// "meta-llama/Llama-4-Scout-17B-16E-Instruct", "inworld-tts-1").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`

	// Fallbacks lists alternative backends tried, in order, when this one
	// fails or its circuit breaker is open. Fallbacks of fallbacks are not
	// supported; nested entries are ignored.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// SessionConfig tunes per-call behaviour. Zero values select the built-in
// defaults.
type SessionConfig struct {
	// HangupTimeoutMS is how long to wait for the client's
	// final_audio_complete confirmation before forcing session end.
	// Default: 6000.
	HangupTimeoutMS int `yaml:"hangup_timeout_ms"`

	// IdleTimeoutMS ends sessions without microphone activity.
	// Default: 20000.
	IdleTimeoutMS int `yaml:"idle_timeout_ms"`
}

// Default returns a Config with sane development defaults: listen on :8080 at
// info level. Provider entries stay empty and must come from the file or the
// environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
	}
}
