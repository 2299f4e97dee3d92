package face

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/camera"
)

// Sentinel errors for the face package.
var (
	ErrModelNotFound = errors.New("face: model file not found")
	ErrBadFrame      = errors.New("face: cannot decode frame")
	ErrNoCamera      = errors.New("face: no frame source")
	ErrRunning       = errors.New("face: detection already running")
)

// Config holds Source settings.
type Config struct {
	// Interval between frames in continuous detection.
	Interval time.Duration

	// Sensitivity is the initial minimum confidence reported as a face.
	Sensitivity float64

	// MaxConsecutiveErrors stops continuous detection after this many
	// failed frames in a row. Zero never stops.
	MaxConsecutiveErrors int

	Logger *slog.Logger
}

// Option is a functional option for configuring a Source.
type Option func(*Config)

// WithInterval sets the frame interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) { c.Interval = d }
}

// WithSensitivity sets the initial sensitivity.
func WithSensitivity(s float64) Option {
	return func(c *Config) { c.Sensitivity = s }
}

// WithMaxConsecutiveErrors sets the error budget for continuous detection.
func WithMaxConsecutiveErrors(n int) Option {
	return func(c *Config) { c.MaxConsecutiveErrors = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:             200 * time.Millisecond,
		Sensitivity:          0.5,
		MaxConsecutiveErrors: 50,
		Logger:               slog.Default(),
	}
}

// Source turns camera frames into face observations.
type Source struct {
	detector Detector
	frames   camera.FrameSource
	cfg      *Config
	logger   *slog.Logger

	sensitivity atomic.Uint64 // math.Float64bits

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ assistant.FaceSignalSource = (*Source)(nil)

// NewSource creates a face source. frames may be nil when only DetectFaces
// is used, for example with uploaded frames.
func NewSource(detector Detector, frames camera.FrameSource, opts ...Option) *Source {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	s := &Source{
		detector: detector,
		frames:   frames,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "face.source"),
	}
	s.SetDetectionSensitivity(cfg.Sensitivity)
	return s
}

// StartFaceDetection samples frames every Interval until stopped. Each
// frame yields one result, including "no face" results.
func (s *Source) StartFaceDetection(ctx context.Context) (<-chan assistant.FaceDetectionResult, error) {
	if s.frames == nil {
		return nil, ErrNoCamera
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	out := make(chan assistant.FaceDetectionResult, 1)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.logger.Info("face detection started", "detector", s.detector.Name(), "camera", s.frames.Name(), "interval", s.cfg.Interval)
	go s.run(runCtx, out, done)
	return out, nil
}

// StopFaceDetection stops sampling. Safe to call repeatedly.
func (s *Source) StopFaceDetection() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		s.logger.Info("face detection stopped")
	}
}

// DetectFaces analyses one encoded frame.
func (s *Source) DetectFaces(ctx context.Context, frame []byte) (assistant.FaceDetectionResult, error) {
	if err := ctx.Err(); err != nil {
		return assistant.FaceDetectionResult{}, err
	}
	if len(frame) == 0 {
		return assistant.FaceDetectionResult{}, ErrBadFrame
	}
	dets, err := s.detector.Detect(frame)
	if err != nil {
		return assistant.FaceDetectionResult{}, fmt.Errorf("face: detect: %w", err)
	}
	return ToResult(Filter(dets, s.Sensitivity()), time.Now()), nil
}

// SetDetectionSensitivity sets the minimum confidence, clamped to [0,1].
func (s *Source) SetDetectionSensitivity(v float64) {
	s.sensitivity.Store(math.Float64bits(clamp01(v)))
}

// Sensitivity returns the current minimum confidence.
func (s *Source) Sensitivity() float64 {
	return math.Float64frombits(s.sensitivity.Load())
}

// Close stops detection and releases the detector and camera.
func (s *Source) Close() error {
	s.StopFaceDetection()
	errs := []error{s.detector.Close()}
	if s.frames != nil {
		errs = append(errs, s.frames.Close())
	}
	return errors.Join(errs...)
}

func (s *Source) run(ctx context.Context, out chan assistant.FaceDetectionResult, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	failures := 0
	for {
		res, err := s.sample(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			failures++
			if failures == 1 || failures%10 == 0 {
				s.logger.Warn("frame failed", "error", err, "consecutive", failures)
			}
			if s.cfg.MaxConsecutiveErrors > 0 && failures >= s.cfg.MaxConsecutiveErrors {
				s.logger.Error("face detection giving up", "consecutive", failures)
				return
			}
		default:
			if failures > 0 {
				s.logger.Info("frames recovered", "after", failures)
			}
			failures = 0
			publishLatest(out, res)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Source) sample(ctx context.Context) (assistant.FaceDetectionResult, error) {
	frame, err := s.frames.Frame(ctx)
	if err != nil {
		return assistant.FaceDetectionResult{}, err
	}
	return s.DetectFaces(ctx, frame)
}

// publishLatest replaces an unread result so consumers never see stale
// frames.
func publishLatest(out chan assistant.FaceDetectionResult, res assistant.FaceDetectionResult) {
	for {
		select {
		case out <- res:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
