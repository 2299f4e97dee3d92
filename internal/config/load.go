package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load builds the configuration from defaults, the YAML file at path (if
// non-empty) and the environment. A .env file in the working directory is
// loaded first when present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := decodeYAML(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. A missing file
// is not an error; variables already set win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays credentials and ATTEND_* overrides read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("OPENAI_API_KEY", &c.Keys.OpenAI)
	str("GEMINI_API_KEY", &c.Keys.Gemini)
	if c.Keys.Gemini == "" {
		str("GOOGLE_API_KEY", &c.Keys.Gemini)
	}
	str("DEEPGRAM_API_KEY", &c.Keys.Deepgram)
	str("ELEVENLABS_API_KEY", &c.Keys.ElevenLabs)
	str("GOOGLE_API_KEY", &c.Keys.Google)
	str("REDIS_URL", &c.Memory.RedisURL)
	str("DATABASE_URL", &c.Memory.DatabaseURL)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	str("ATTEND_LOG_LEVEL", &c.Log.Level)
	str("ATTEND_LOG_FORMAT", &c.Log.Format)
	str("ATTEND_CAMERA_SOURCE", &c.Camera.Source)
	str("ATTEND_CAMERA_PRESET", &c.Camera.Preset)
	str("ATTEND_AUDIO_BACKEND", &c.Audio.Backend)
	str("ATTEND_REMOTE_URL", &c.Remote.SignallingURL)
	str("ATTEND_MEMORY_BACKEND", &c.Memory.Backend)
	str("ATTEND_WEB_ADDR", &c.Web.Addr)
	str("ATTEND_LLM_MODEL", &c.LLM.Model)

	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	list("ATTEND_STT_PROVIDERS", &c.STT.Providers)
	list("ATTEND_LLM_PROVIDERS", &c.LLM.Providers)
	list("ATTEND_TTS_PROVIDERS", &c.TTS.Providers)

	var errs []error
	if v, ok := lookup("ATTEND_FREE_MODE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ATTEND_FREE_MODE: %w", err))
		} else {
			c.Assistant.FreeMode = b
		}
	}
	if v, ok := lookup("ATTEND_SENSITIVITY"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("ATTEND_SENSITIVITY: %w", err))
		} else {
			c.Assistant.Sensitivity = f
		}
	}
	if v, ok := lookup("ATTEND_LISTEN_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ATTEND_LISTEN_TIMEOUT: %w", err))
		} else {
			c.Assistant.ListenTimeout = d
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
