package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Assistant.Sensitivity = 2
	cfg.Camera.Source = "satellite"
	cfg.Memory.Backend = "redis"
	cfg.LLM.Providers = nil

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"sensitivity", "camera.source", "redis_url", "llm.providers"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attend.yaml")
	data := `
assistant:
  sensitivity: 0.8
  listen_timeout: 4s
  free_mode: true
llm:
  providers: [gemini, openai]
memory:
  backend: json
  path: /tmp/h.json
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Assistant.Sensitivity != 0.8 || cfg.Assistant.ListenTimeout != 4*time.Second || !cfg.Assistant.FreeMode {
		t.Errorf("assistant section not applied: %+v", cfg.Assistant)
	}
	if len(cfg.LLM.Providers) != 2 || cfg.LLM.Providers[0] != "gemini" {
		t.Errorf("providers = %v", cfg.LLM.Providers)
	}
	if cfg.LLM.MaxTokens != 150 {
		t.Errorf("untouched default lost: max_tokens = %d", cfg.LLM.MaxTokens)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("assistant:\n  sensitivty: 0.3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for misspelled key")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Errorf("empty file should load defaults: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":       "sk-test",
		"DEEPGRAM_API_KEY":     "dg",
		"ATTEND_FREE_MODE":     "true",
		"ATTEND_SENSITIVITY":   "0.65",
		"ATTEND_TTS_PROVIDERS": "elevenlabs, openai,",
		"REDIS_URL":            "redis://localhost:6379/0",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv failed: %v", err)
	}
	if cfg.Keys.OpenAI != "sk-test" || cfg.Keys.Deepgram != "dg" {
		t.Errorf("keys = %+v", cfg.Keys)
	}
	if !cfg.Assistant.FreeMode || cfg.Assistant.Sensitivity != 0.65 {
		t.Errorf("assistant = %+v", cfg.Assistant)
	}
	if got := cfg.TTS.Providers; len(got) != 2 || got[0] != "elevenlabs" || got[1] != "openai" {
		t.Errorf("tts providers = %v", got)
	}
	if cfg.Memory.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("redis url = %q", cfg.Memory.RedisURL)
	}
}

func TestApplyEnvBadValues(t *testing.T) {
	lookup := func(k string) (string, bool) {
		switch k {
		case "ATTEND_FREE_MODE":
			return "maybe", true
		case "ATTEND_LISTEN_TIMEOUT":
			return "forever", true
		}
		return "", false
	}
	err := Default().ApplyEnv(lookup)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ATTEND_FREE_MODE") || !strings.Contains(err.Error(), "ATTEND_LISTEN_TIMEOUT") {
		t.Errorf("error should name both variables: %v", err)
	}
}

func TestLoadDotEnvMissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
}
