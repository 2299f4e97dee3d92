package camera

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors for the camera package.
var (
	ErrClosed        = errors.New("camera: closed")
	ErrNoFrame       = errors.New("camera: no frame available")
	ErrOpenDevice    = errors.New("camera: cannot open device")
	ErrUnknownPreset = errors.New("camera: unknown preset")
)

// FrameSource produces JPEG-encoded frames on demand.
type FrameSource interface {
	// Frame returns the most recent frame. It blocks until one is available
	// or ctx is done.
	Frame(ctx context.Context) ([]byte, error)

	// Name returns the backend name ("opencv", "remote", "mock").
	Name() string

	io.Closer
}
