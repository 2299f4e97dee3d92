package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"
)

// Capture reads frames from a local camera through OpenCV.
type Capture struct {
	mu     sync.Mutex
	cfg    Config
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	closed bool
	logger *slog.Logger
}

// Open starts capturing from cfg.Device.
func Open(cfg Config, logger *slog.Logger) (*Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Capture{
		cfg:    cfg,
		mat:    gocv.NewMat(),
		logger: logger.With("component", "camera.opencv"),
	}
	if err := c.open(cfg); err != nil {
		c.mat.Close()
		return nil, err
	}
	return c, nil
}

func (c *Capture) open(cfg Config) error {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return fmt.Errorf("%w %d: %w", ErrOpenDevice, cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w %d", ErrOpenDevice, cfg.Device)
	}
	c.vc = vc
	c.apply(cfg)
	c.logger.Info("camera opened", "device", cfg.Device, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return nil
}

func (c *Capture) apply(cfg Config) {
	c.vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	c.vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	c.vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.Brightness != 0 {
		c.vc.Set(gocv.VideoCaptureBrightness, cfg.Brightness)
	}
	if cfg.Exposure > 0 {
		c.vc.Set(gocv.VideoCaptureExposure, cfg.Exposure)
	}
	c.cfg = cfg
}

// Reconfigure applies cfg, reopening the device if it changed.
// It is the apply function of the Manager for a local camera.
func (c *Capture) Reconfigure(cfg Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if cfg.Device == c.cfg.Device {
		c.apply(cfg)
		return nil
	}
	old := c.vc
	if err := c.open(cfg); err != nil {
		return err
	}
	old.Close()
	return nil
}

// Frame grabs one frame and encodes it as JPEG.
func (c *Capture) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, ErrNoFrame
	}

	img := c.mat
	if c.cfg.ZoomLevel > 1 {
		region := c.mat.Region(zoomRect(c.mat.Cols(), c.mat.Rows(), c.cfg.ZoomLevel))
		defer region.Close()
		img = region
	}
	if c.cfg.Mirror {
		flipped := gocv.NewMat()
		defer flipped.Close()
		gocv.Flip(img, &flipped, 1)
		img = flipped
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), c.cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode: %w", err)
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}

// Name returns "opencv".
func (c *Capture) Name() string { return "opencv" }

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.mat.Close()
	return c.vc.Close()
}

// zoomRect returns the centred crop for a digital zoom factor.
func zoomRect(w, h int, zoom float64) image.Rectangle {
	if zoom <= 1 {
		return image.Rect(0, 0, w, h)
	}
	cw := int(float64(w) / zoom)
	ch := int(float64(h) / zoom)
	x := (w - cw) / 2
	y := (h - ch) / 2
	return image.Rect(x, y, x+cw, y+ch)
}
