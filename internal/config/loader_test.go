package config

import (
	"errors"
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  asr:
    name: fennec
    api_key: fk-123
  llm:
    name: openai
    api_key: sk-123
    base_url: https://inference.baseten.co/v1
    model: meta-llama/Llama-4-Scout-17B-16E-Instruct
  tts:
    name: inworld
    api_key: aW53b3JsZA==
    options:
      voice_id: Olivia
session:
  hangup_timeout_ms: 6000
  idle_timeout_ms: 20000
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Providers.LLM.Model != "meta-llama/Llama-4-Scout-17B-16E-Instruct" {
		t.Errorf("llm model = %q", cfg.Providers.LLM.Model)
	}
	if got := cfg.Providers.TTS.Options["voice_id"]; got != "Olivia" {
		t.Errorf("tts voice_id = %v", got)
	}
	if cfg.Session.HangupTimeoutMS != 6000 {
		t.Errorf("hangup_timeout_ms = %d", cfg.Session.HangupTimeoutMS)
	}
}

func TestLoadDefaults(t *testing.T) {
	yaml := `
providers:
  asr: {name: fennec}
  llm: {name: openai}
  tts: {name: inworld}
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("default listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != LogInfo {
		t.Errorf("default log_level = %q", cfg.Server.LogLevel)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	yaml := `
server:
  listen_addr: ":8080"
  certainly_not_a_field: true
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{LogLevel: "loud"},
		Session: SessionConfig{
			HangupTimeoutMS: -1,
		},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"log_level",
		"listen_addr",
		"providers.asr.name",
		"providers.llm.name",
		"providers.tts.name",
		"hangup_timeout_ms",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestApplyEnvOverridesFile(t *testing.T) {
	t.Setenv("FENNEC_API_KEY", "env-fennec")
	t.Setenv("LLM_API_KEY", "env-llm")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("INWORLD_API_KEY", "env-inworld")
	t.Setenv("INWORLD_VOICE_ID", "Mark")
	t.Setenv("LISTEN_ADDR", ":7070")

	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	ApplyEnv(cfg)

	if cfg.Providers.ASR.APIKey != "env-fennec" {
		t.Errorf("asr api_key = %q", cfg.Providers.ASR.APIKey)
	}
	if cfg.Providers.LLM.APIKey != "env-llm" || cfg.Providers.LLM.Model != "env-model" {
		t.Errorf("llm entry = %+v", cfg.Providers.LLM)
	}
	if cfg.Providers.TTS.APIKey != "env-inworld" {
		t.Errorf("tts api_key = %q", cfg.Providers.TTS.APIKey)
	}
	if cfg.Providers.TTS.Options["voice_id"] != "Mark" {
		t.Errorf("tts voice_id = %v", cfg.Providers.TTS.Options["voice_id"])
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
}

func TestApplyEnvLeavesFileValues(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	ApplyEnv(cfg)
	if cfg.Providers.ASR.APIKey != "fk-123" {
		t.Errorf("asr api_key = %q, want file value preserved", cfg.Providers.ASR.APIKey)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.CreateLLM(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateASR(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateASR = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTTS(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateTTS = %v, want ErrProviderNotRegistered", err)
	}
}
