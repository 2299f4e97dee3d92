package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// Mock is a FrameSource for tests. It cycles through Frames, or calls
// FrameFunc when set.
type Mock struct {
	mu        sync.Mutex
	Frames    [][]byte
	FrameFunc func(ctx context.Context) ([]byte, error)

	next   int
	calls  int
	closed bool
}

// NewMock returns a mock that serves frames in order, repeating the last.
func NewMock(frames ...[]byte) *Mock {
	return &Mock{Frames: frames}
}

// Frame returns the next frame.
func (m *Mock) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.calls++
	fn := m.FrameFunc
	if fn == nil && len(m.Frames) == 0 {
		m.mu.Unlock()
		return nil, ErrNoFrame
	}
	var frame []byte
	if fn == nil {
		frame = m.Frames[m.next]
		if m.next < len(m.Frames)-1 {
			m.next++
		}
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	return frame, nil
}

// Calls returns how many frames were requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SolidJPEG encodes a w×h frame of one colour.
func SolidJPEG(w, h int, c color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80})
	return buf.Bytes()
}
