// Package web serves the assistant dashboard: a JSON API for intents, a
// websocket stream of snapshots and failures, the camera feed, health and
// Prometheus metrics.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/camera"
	"github.com/teslashibe/go-attend/pkg/hub"
)

//go:embed static
var staticFiles embed.FS

// Controller is the orchestrator surface the dashboard drives.
// *assistant.Orchestrator satisfies it.
type Controller interface {
	Snapshot() assistant.Snapshot
	Subscribe() (<-chan assistant.Snapshot, func())
	Errors() (<-chan assistant.Failure, func())
	TriggerManual(text string) bool
	InterruptSpeaking()
	ToggleFreeMode() bool
	SetFreeMode(on bool)
	ClearConversationHistory()
	Resume() bool
	SetSensitivity(s float64) error
	ProcessFaceFrame(ctx context.Context, frame []byte) (assistant.FaceDetectionResult, error)
}

var _ Controller = (*assistant.Orchestrator)(nil)

// Config holds dashboard settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// Camera, when set, backs GET /api/camera and /ws/camera.
	Camera camera.FrameSource

	// CameraSettings, when set, backs /api/camera/settings.
	CameraSettings *camera.Manager

	// CameraInterval is the /ws/camera frame period.
	CameraInterval time.Duration

	// Metrics is served on /metrics when set.
	Metrics http.Handler

	// Health is called by /health. Nil always reports healthy.
	Health func(ctx context.Context) error

	// MaxFrameBytes bounds uploaded frames.
	MaxFrameBytes int

	Logger *slog.Logger
}

// Option is a functional option for the server.
type Option func(*Config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) { c.Addr = addr }
}

// WithCamera enables the camera endpoints.
func WithCamera(src camera.FrameSource) Option {
	return func(c *Config) { c.Camera = src }
}

// WithCameraSettings enables live camera tuning.
func WithCameraSettings(m *camera.Manager) Option {
	return func(c *Config) { c.CameraSettings = m }
}

// WithMetrics serves h on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(c *Config) { c.Metrics = h }
}

// WithHealth sets the /health check.
func WithHealth(fn func(ctx context.Context) error) Option {
	return func(c *Config) { c.Health = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// DefaultConfig returns the default dashboard configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           ":8080",
		CameraInterval: 200 * time.Millisecond,
		MaxFrameBytes:  4 << 20,
		Logger:         slog.Default(),
	}
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	ctl    Controller
	cfg    Config
	logger *slog.Logger

	stateHub  *hub.Hub
	cameraHub *hub.Hub
}

// NewServer creates a dashboard for ctl. Routes are registered immediately,
// so App can be exercised before Run.
func NewServer(ctl Controller, opts ...Option) *Server {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "web")

	s := &Server{
		ctl:       ctl,
		cfg:       *cfg,
		logger:    logger,
		stateHub:  hub.New("state", cfg.Logger),
		cameraHub: hub.New("camera", cfg.Logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-attend",
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxFrameBytes,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/history", s.handleHistory)
	api.Post("/trigger", s.handleTrigger)
	api.Post("/interrupt", s.handleInterrupt)
	api.Post("/resume", s.handleResume)
	api.Post("/free-mode", s.handleFreeMode)
	api.Post("/sensitivity", s.handleSensitivity)
	api.Post("/history/clear", s.handleClearHistory)
	api.Post("/frames", s.handleFrame)
	api.Get("/camera", s.handleCamera)
	api.Get("/camera/settings", s.handleCameraSettings)
	api.Patch("/camera/settings", s.handleUpdateCameraSettings)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	static, _ := fs.Sub(staticFiles, "static")
	app.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(static),
		Index: "index.html",
	}))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is done, then shuts the listener and hubs down.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.stateHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.cameraHub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.forwardSnapshots(ctx)
		return nil
	})
	g.Go(func() error {
		s.forwardErrors(ctx)
		return nil
	})
	if s.cfg.Camera != nil {
		g.Go(func() error {
			s.streamCamera(ctx)
			return nil
		})
	}
	g.Go(func() error {
		s.logger.Info("dashboard listening", "addr", s.cfg.Addr)
		if err := s.app.Listen(s.cfg.Addr); err != nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.app.ShutdownWithContext(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) forwardSnapshots(ctx context.Context) {
	snaps, unsubscribe := s.ctl.Subscribe()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			if err := s.stateHub.BroadcastEvent("snapshot", snap); err != nil {
				s.logger.Warn("failed to encode snapshot", "error", err)
			}
		}
	}
}

func (s *Server) forwardErrors(ctx context.Context) {
	failures, unsubscribe := s.ctl.Errors()
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-failures:
			if !ok {
				return
			}
			if err := s.stateHub.BroadcastEvent("error", f); err != nil {
				s.logger.Warn("failed to encode failure", "error", err)
			}
		}
	}
}

// streamCamera pushes frames to /ws/camera while anyone is watching.
func (s *Server) streamCamera(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.CameraInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.cameraHub.ClientCount() == 0 {
				continue
			}
			frameCtx, cancel := context.WithTimeout(ctx, s.cfg.CameraInterval)
			frame, err := s.cfg.Camera.Frame(frameCtx)
			cancel()
			if err != nil {
				s.logger.Debug("camera frame unavailable", "error", err)
				continue
			}
			s.cameraHub.BroadcastBinary(frame)
		}
	}
}
