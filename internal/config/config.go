// Package config loads go-attend settings from defaults, a YAML file, a
// .env file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Assistant AssistantConfig `yaml:"assistant"`
	Face      FaceConfig      `yaml:"face"`
	Camera    CameraConfig    `yaml:"camera"`
	Remote    RemoteConfig    `yaml:"remote"`
	VAD       VADConfig       `yaml:"vad"`
	Audio     AudioConfig     `yaml:"audio"`
	STT       STTConfig       `yaml:"stt"`
	LLM       LLMConfig       `yaml:"llm"`
	TTS       TTSConfig       `yaml:"tts"`
	Memory    MemoryConfig    `yaml:"memory"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Keys come from the environment only.
	Keys Keys `yaml:"-"`
}

// AssistantConfig drives the orchestrator.
type AssistantConfig struct {
	Sensitivity        float64       `yaml:"sensitivity"`
	ListenTimeout      time.Duration `yaml:"listen_timeout"`
	ErrorRecoveryDelay time.Duration `yaml:"error_recovery_delay"`
	ContextTurns       int           `yaml:"context_turns"`
	FreeMode           bool          `yaml:"free_mode"`
}

// FaceConfig configures the YuNet face detector.
type FaceConfig struct {
	Model        string        `yaml:"model"`
	NMSThreshold float64       `yaml:"nms_threshold"`
	TopK         int           `yaml:"top_k"`
	Interval     time.Duration `yaml:"interval"`
}

// CameraConfig selects where frames come from.
type CameraConfig struct {
	Source string `yaml:"source"` // local, remote, none
	Device int    `yaml:"device"`
	Preset string `yaml:"preset"`
	// Width and Height override the preset when non-zero.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// RemoteConfig points at a WebRTC device exposing camera and microphone.
type RemoteConfig struct {
	SignallingURL string `yaml:"signalling_url"`
	PeerName      string `yaml:"peer_name"`
}

// VADConfig configures the energy voice-activity detector.
type VADConfig struct {
	Threshold       float64       `yaml:"threshold"`
	StartFrames     int           `yaml:"start_frames"`
	Hangover        time.Duration `yaml:"hangover"`
	MinSpeech       time.Duration `yaml:"min_speech"`
	MaxUtterance    time.Duration `yaml:"max_utterance"`
	NoiseFloorFrame int           `yaml:"noise_floor_frames"`
}

// AudioConfig configures microphone capture and playback.
type AudioConfig struct {
	Backend    string `yaml:"backend"` // malgo, remote, mock
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	BufferMs   int    `yaml:"buffer_ms"`
}

// STTConfig lists speech-to-text providers in fallback order.
type STTConfig struct {
	Providers     []string      `yaml:"providers"` // whisper, deepgram, google
	Language      string        `yaml:"language"`
	WhisperModel  string        `yaml:"whisper_model"`
	DeepgramModel string        `yaml:"deepgram_model"`
	Timeout       time.Duration `yaml:"timeout"`
}

// LLMConfig lists chat providers in fallback order.
type LLMConfig struct {
	Providers    []string      `yaml:"providers"` // openai, gemini
	Model        string        `yaml:"model"`
	GeminiModel  string        `yaml:"gemini_model"`
	BaseURL      string        `yaml:"base_url"`
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  float64       `yaml:"temperature"`
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout"`
}

// TTSConfig lists speech providers in fallback order.
type TTSConfig struct {
	Providers       []string `yaml:"providers"` // openai, elevenlabs, google
	OpenAIModel     string   `yaml:"openai_model"`
	OpenAIVoice     string   `yaml:"openai_voice"`
	ElevenLabsVoice string   `yaml:"elevenlabs_voice"`
	ElevenLabsModel string   `yaml:"elevenlabs_model"`
	GoogleVoice     string   `yaml:"google_voice"`
	Language        string   `yaml:"language"`
}

// MemoryConfig selects the history store.
type MemoryConfig struct {
	Backend     string `yaml:"backend"` // none, json, redis, postgres
	Path        string `yaml:"path"`
	RedisURL    string `yaml:"redis_url"`
	RedisKey    string `yaml:"redis_key"`
	DatabaseURL string `yaml:"database_url"`
	MaxItems    int    `yaml:"max_items"`
}

// WebConfig configures the dashboard server.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TelemetryConfig configures span export. An empty endpoint disables it.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

// Keys holds provider credentials.
type Keys struct {
	OpenAI     string
	Gemini     string
	Deepgram   string
	ElevenLabs string
	Google     string
}

// DefaultSystemPrompt keeps replies short enough to speak.
const DefaultSystemPrompt = "You are a friendly voice assistant. Keep responses concise and " +
	"conversational, suitable for speaking aloud. Avoid lists, markdown and long explanations."

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Sensitivity:        0.5,
			ListenTimeout:      10 * time.Second,
			ErrorRecoveryDelay: 3 * time.Second,
			ContextTurns:       10,
		},
		Face: FaceConfig{
			Model:        "models/face_detection_yunet_2023mar.onnx",
			NMSThreshold: 0.3,
			TopK:         50,
			Interval:     200 * time.Millisecond,
		},
		Camera: CameraConfig{Source: "local", Preset: "default"},
		Remote: RemoteConfig{PeerName: "attend-device"},
		VAD: VADConfig{
			Threshold:       0.5,
			StartFrames:     3,
			Hangover:        800 * time.Millisecond,
			MinSpeech:       300 * time.Millisecond,
			MaxUtterance:    30 * time.Second,
			NoiseFloorFrame: 50,
		},
		Audio: AudioConfig{Backend: "malgo", SampleRate: 16000, Channels: 1, BufferMs: 20},
		STT: STTConfig{
			Providers:     []string{"whisper"},
			Language:      "en",
			WhisperModel:  "whisper-1",
			DeepgramModel: "nova-2",
			Timeout:       30 * time.Second,
		},
		LLM: LLMConfig{
			Providers:    []string{"openai"},
			Model:        "gpt-4o-mini",
			GeminiModel:  "gemini-2.0-flash",
			BaseURL:      "https://api.openai.com/v1",
			MaxTokens:    150,
			Temperature:  0.7,
			SystemPrompt: DefaultSystemPrompt,
			Timeout:      30 * time.Second,
		},
		TTS: TTSConfig{
			Providers:       []string{"openai"},
			OpenAIModel:     "tts-1",
			OpenAIVoice:     "alloy",
			ElevenLabsModel: "eleven_turbo_v2_5",
			GoogleVoice:     "en-US-Neural2-C",
			Language:        "en-US",
		},
		Memory: MemoryConfig{
			Backend:  "none",
			Path:     "history.json",
			RedisKey: "attend:history",
			MaxItems: 200,
		},
		Web:       WebConfig{Enabled: true, Addr: ":8080"},
		Log:       LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{ServiceName: "go-attend"},
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	if c.Assistant.Sensitivity < 0 || c.Assistant.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("assistant.sensitivity must be in [0,1], got %v", c.Assistant.Sensitivity))
	}
	if c.Assistant.ListenTimeout <= 0 {
		errs = append(errs, errors.New("assistant.listen_timeout must be positive"))
	}
	if c.VAD.Threshold < 0 || c.VAD.Threshold > 1 {
		errs = append(errs, fmt.Errorf("vad.threshold must be in [0,1], got %v", c.VAD.Threshold))
	}
	if !oneOf(c.Camera.Source, "local", "remote", "none") {
		errs = append(errs, fmt.Errorf("camera.source %q is not one of local, remote, none", c.Camera.Source))
	}
	if !oneOf(c.Audio.Backend, "malgo", "remote", "mock") {
		errs = append(errs, fmt.Errorf("audio.backend %q is not one of malgo, remote, mock", c.Audio.Backend))
	}
	if (c.Camera.Source == "remote" || c.Audio.Backend == "remote") && c.Remote.SignallingURL == "" {
		errs = append(errs, errors.New("remote.signalling_url is required for remote camera or audio"))
	}
	if !oneOf(c.Memory.Backend, "none", "json", "redis", "postgres") {
		errs = append(errs, fmt.Errorf("memory.backend %q is not one of none, json, redis, postgres", c.Memory.Backend))
	}
	if c.Memory.Backend == "redis" && c.Memory.RedisURL == "" {
		errs = append(errs, errors.New("memory.redis_url is required for the redis backend"))
	}
	if c.Memory.Backend == "postgres" && c.Memory.DatabaseURL == "" {
		errs = append(errs, errors.New("memory.database_url is required for the postgres backend"))
	}
	if len(c.STT.Providers) == 0 {
		errs = append(errs, errors.New("stt.providers must not be empty"))
	}
	if len(c.LLM.Providers) == 0 {
		errs = append(errs, errors.New("llm.providers must not be empty"))
	}
	if len(c.TTS.Providers) == 0 {
		errs = append(errs, errors.New("tts.providers must not be empty"))
	}
	return errors.Join(errs...)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
