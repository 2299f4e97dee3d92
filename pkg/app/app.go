// Package app assembles go-attend from configuration: sensors, the
// conversation engines, history persistence, observers and the
// orchestrator that ties them together.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-attend/internal/config"
	"github.com/teslashibe/go-attend/internal/telemetry"
	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/audioio"
	"github.com/teslashibe/go-attend/pkg/camera"
	"github.com/teslashibe/go-attend/pkg/conversation"
	"github.com/teslashibe/go-attend/pkg/face"
	"github.com/teslashibe/go-attend/pkg/memory"
	"github.com/teslashibe/go-attend/pkg/metrics"
	"github.com/teslashibe/go-attend/pkg/tts"
	"github.com/teslashibe/go-attend/pkg/tui"
	"github.com/teslashibe/go-attend/pkg/vad"
	"github.com/teslashibe/go-attend/pkg/video"
	"github.com/teslashibe/go-attend/pkg/web"
)

// ErrNoReply is returned by Probe when the turn ends without a new reply.
var ErrNoReply = errors.New("app: no reply")

// App owns every component and their lifecycle.
type App struct {
	config *config.Config
	logger *slog.Logger

	stopTracing func(context.Context) error

	remote  *video.Client
	frames  camera.FrameSource
	mic     audioio.Source
	speaker audioio.Sink

	// cameraSettings is set only for a local camera.
	cameraSettings *camera.Manager

	faces   *face.Source
	voice   *vad.Source
	convo   *conversation.Service
	memory  *memory.Memory
	metrics *metrics.Metrics
	orch    *assistant.Orchestrator
	web     *web.Server
}

// RunOptions selects the front ends.
type RunOptions struct {
	// TUI shows the terminal UI; quitting it stops the app.
	TUI bool
}

// New validates cfg and creates an uninitialized app.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{config: cfg, logger: logger}, nil
}

// Init builds all components. Call Shutdown even when Init fails.
func (a *App) Init(ctx context.Context) error {
	stop, err := telemetry.Setup(ctx, a.config.Telemetry.OTLPEndpoint, a.config.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	a.stopTracing = stop

	if err := a.initSensors(ctx); err != nil {
		return err
	}
	if err := a.initConversation(ctx); err != nil {
		return err
	}
	if err := a.initMemory(ctx); err != nil {
		return err
	}

	a.metrics = metrics.New("attend")
	a.orch, err = assistant.New(a.faces, a.voice, a.convo,
		assistant.WithSensitivity(a.config.Assistant.Sensitivity),
		assistant.WithVADThreshold(a.config.VAD.Threshold),
		assistant.WithListenTimeout(a.config.Assistant.ListenTimeout),
		assistant.WithErrorRecoveryDelay(a.config.Assistant.ErrorRecoveryDelay),
		assistant.WithContextTurns(a.config.Assistant.ContextTurns),
		assistant.WithFreeMode(a.config.Assistant.FreeMode),
		assistant.WithInitialHistory(a.initialHistory()),
		assistant.WithMetrics(a.metrics),
		assistant.WithLogger(a.logger),
	)
	if err != nil {
		return fmt.Errorf("assistant: %w", err)
	}

	if a.config.Web.Enabled {
		opts := []web.Option{
			web.WithAddr(a.config.Web.Addr),
			web.WithMetrics(a.metrics.Handler()),
			web.WithHealth(a.convo.Health),
			web.WithLogger(a.logger),
		}
		if a.config.Camera.Source != "none" {
			opts = append(opts, web.WithCamera(a.frames))
		}
		if a.cameraSettings != nil {
			opts = append(opts, web.WithCameraSettings(a.cameraSettings))
		}
		a.web = web.NewServer(a.orch, opts...)
	}
	return nil
}

func (a *App) initSensors(ctx context.Context) error {
	cfg := a.config

	if cfg.Camera.Source == "remote" || cfg.Audio.Backend == "remote" {
		a.remote = video.NewClient(cfg.Remote.SignallingURL,
			video.WithPeerName(cfg.Remote.PeerName),
			video.WithAudioRate(cfg.Audio.SampleRate),
			video.WithLogger(a.logger),
		)
		if err := a.remote.Connect(ctx); err != nil {
			return fmt.Errorf("remote device: %w", err)
		}
	}

	switch cfg.Camera.Source {
	case "remote":
		a.frames = a.remote
	case "none":
		a.frames = uploadOnly{}
	default:
		camCfg, err := CaptureConfig(cfg.Camera)
		if err != nil {
			return err
		}
		capture, err := camera.Open(camCfg, a.logger)
		if err != nil {
			return fmt.Errorf("camera: %w", err)
		}
		a.frames = capture
		a.cameraSettings = camera.NewManager(camCfg, capture.Reconfigure)
	}

	yunet := face.DefaultYuNetConfig()
	yunet.ModelPath = cfg.Face.Model
	yunet.NMSThreshold = cfg.Face.NMSThreshold
	yunet.TopK = cfg.Face.TopK
	detector, err := face.NewYuNet(yunet)
	if err != nil {
		return fmt.Errorf("face detector: %w", err)
	}
	a.faces = face.NewSource(detector, a.frames,
		face.WithInterval(cfg.Face.Interval),
		face.WithSensitivity(cfg.Assistant.Sensitivity),
		face.WithLogger(a.logger),
	)

	audioCfg := audioio.DefaultConfig()
	audioCfg.SampleRate = cfg.Audio.SampleRate
	audioCfg.Channels = cfg.Audio.Channels
	audioCfg.BufferDuration = time.Duration(cfg.Audio.BufferMs) * time.Millisecond

	switch cfg.Audio.Backend {
	case "remote":
		a.mic = a.remote.Audio()
		audioCfg.Backend = audioio.BackendAuto
	case "mock":
		audioCfg.Backend = audioio.BackendMock
	default:
		audioCfg.Backend = audioio.BackendMalgo
	}
	if a.mic == nil {
		if a.mic, err = audioio.NewSource(audioCfg, a.logger); err != nil {
			return fmt.Errorf("microphone: %w", err)
		}
	}
	// Replies always play locally.
	if a.speaker, err = audioio.NewSink(audioCfg, a.logger); err != nil {
		return fmt.Errorf("speaker: %w", err)
	}

	energy := vad.DefaultEnergyParams()
	energy.NoiseWindow = cfg.VAD.NoiseFloorFrame
	a.voice = vad.NewSource(a.mic,
		vad.WithThreshold(cfg.VAD.Threshold),
		vad.WithEnergyParams(energy),
		vad.WithSegmenter(vad.SegmenterConfig{
			StartFrames:  cfg.VAD.StartFrames,
			Hangover:     cfg.VAD.Hangover,
			MinSpeech:    cfg.VAD.MinSpeech,
			MaxUtterance: cfg.VAD.MaxUtterance,
		}),
		vad.WithLogger(a.logger),
	)
	return nil
}

// CaptureConfig resolves the local camera settings: the named preset, then
// the explicit device and size.
func CaptureConfig(cc config.CameraConfig) (camera.Config, error) {
	cfg := camera.DefaultConfig()
	if cc.Preset != "" {
		preset := camera.GetPreset(cc.Preset)
		if preset == nil {
			return cfg, fmt.Errorf("%w %q", camera.ErrUnknownPreset, cc.Preset)
		}
		cfg = *preset
	}
	cfg.Device = cc.Device
	if cc.Width > 0 {
		cfg.Width = cc.Width
	}
	if cc.Height > 0 {
		cfg.Height = cc.Height
	}
	return cfg, cfg.Validate()
}

func (a *App) initConversation(ctx context.Context) error {
	recognizer, err := newRecognizer(ctx, a.config, a.logger)
	if err != nil {
		return err
	}
	model, err := newModel(ctx, a.config, a.logger)
	if err != nil {
		recognizer.Close()
		return err
	}
	voice, err := newVoice(ctx, a.config, a.logger)
	if err != nil {
		recognizer.Close()
		model.Close()
		return err
	}

	speaker := tts.NewSpeaker(voice, a.speaker, a.logger)
	a.convo, err = conversation.New(recognizer, model, speaker,
		conversation.WithSystemPrompt(a.config.LLM.SystemPrompt),
		conversation.WithMaxTokens(a.config.LLM.MaxTokens),
		conversation.WithTemperature(a.config.LLM.Temperature),
		conversation.WithTimeouts(a.config.STT.Timeout, a.config.LLM.Timeout, 0),
		conversation.WithLogger(a.logger),
	)
	if err != nil {
		speaker.Close()
		recognizer.Close()
		model.Close()
		return fmt.Errorf("conversation: %w", err)
	}
	return nil
}

func (a *App) initMemory(ctx context.Context) error {
	cfg := a.config.Memory

	var store memory.Store
	switch cfg.Backend {
	case "json":
		store = memory.NewJSONStore(cfg.Path)
	case "redis":
		rs, err := memory.OpenRedis(ctx, cfg.RedisURL, memory.WithKey(cfg.RedisKey))
		if err != nil {
			return fmt.Errorf("memory: %w", err)
		}
		store = rs
	case "postgres":
		ps, err := memory.OpenPostgres(ctx, cfg.DatabaseURL, "default", a.logger)
		if err != nil {
			return fmt.Errorf("memory: %w", err)
		}
		store = ps
	default:
		return nil
	}

	a.memory = memory.New(store)
	if err := a.memory.Load(ctx); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	a.logger.Info("history restored", "backend", cfg.Backend, "items", len(a.memory.Items()))
	return nil
}

// initialHistory returns the newest stored items within the configured cap.
func (a *App) initialHistory() []assistant.ConversationItem {
	if a.memory == nil {
		return nil
	}
	items := a.memory.Items()
	if limit := a.config.Memory.MaxItems; limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items
}

// Orchestrator returns the assembled orchestrator. Nil before Init.
func (a *App) Orchestrator() *assistant.Orchestrator {
	return a.orch
}

// Run starts sensing and serves the configured front ends until ctx is
// done, the TUI quits or a component fails.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	if err := a.orch.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("assistant running", "state", a.orch.State(), "free_mode", a.orch.FreeMode())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if a.memory != nil {
		snaps, unsubscribe := a.orch.Subscribe()
		recorder := memory.NewRecorder(a.memory, a.logger)
		g.Go(func() error {
			defer unsubscribe()
			if err := recorder.Run(ctx, snaps); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if a.web != nil {
		g.Go(func() error {
			return a.web.Run(ctx)
		})
	}
	if opts.TUI {
		g.Go(func() error {
			defer cancel()
			return tui.Run(ctx, a.orch)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

// Probe answers text without the microphone or camera and returns the
// reply. It is a smoke test of the conversation engines and history.
func (a *App) Probe(ctx context.Context, text string) (string, error) {
	snaps, unsubscribe := a.orch.Subscribe()
	defer unsubscribe()
	errs, unsubscribeErrs := a.orch.Errors()
	defer unsubscribeErrs()

	before := a.orch.History().Len()
	if !a.orch.TriggerManual(text) {
		return "", fmt.Errorf("app: trigger refused in state %s", a.orch.State())
	}

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case f, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if f.Kind != assistant.SpeechSynthesisFailure || errors.Is(f.Err, assistant.ErrSpeechNotStarted) {
				return "", &f
			}
		case s, ok := <-snaps:
			if !ok {
				return "", ErrNoReply
			}
			if s.History.Len() > before && !s.State.Busy() {
				last, _ := s.History.Last()
				return last.AIResponse, nil
			}
		}
	}
}

// Shutdown releases every component. It is safe after a failed Init.
func (a *App) Shutdown() {
	switch {
	case a.orch != nil:
		a.orch.Release()
	case a.voice != nil:
		a.voice.Release()
	case a.mic != nil:
		a.mic.Close()
	}
	if a.convo != nil {
		if err := a.convo.Close(); err != nil {
			a.logger.Warn("conversation close failed", "error", err)
		}
	}
	if a.faces != nil {
		a.faces.Close()
	} else if a.frames != nil {
		a.frames.Close()
	}
	if a.speaker != nil {
		a.speaker.Close()
	}
	if a.remote != nil {
		a.remote.Close()
	}
	if a.memory != nil {
		a.memory.Close()
	}
	if a.stopTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.stopTracing(ctx); err != nil {
			a.logger.Warn("telemetry flush failed", "error", err)
		}
	}
	a.logger.Info("shutdown complete")
}

// uploadOnly is the frame source when no camera is attached. Frames reach
// the assistant only through ProcessFaceFrame.
type uploadOnly struct{}

func (uploadOnly) Frame(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (uploadOnly) Name() string { return "upload" }

func (uploadOnly) Close() error { return nil }
