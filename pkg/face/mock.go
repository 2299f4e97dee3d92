package face

import (
	"sync"
)

// MockDetector is a Detector for tests and camera-less setups.
type MockDetector struct {
	mu         sync.Mutex
	DetectFunc func(frame []byte) ([]Detection, error)
	Results    []Detection
	calls      int
	closed     bool
}

// NewMockDetector returns a detector that always reports dets.
func NewMockDetector(dets ...Detection) *MockDetector {
	return &MockDetector{Results: dets}
}

// Detect returns Results or calls DetectFunc.
func (m *MockDetector) Detect(frame []byte) ([]Detection, error) {
	m.mu.Lock()
	m.calls++
	fn := m.DetectFunc
	res := append([]Detection(nil), m.Results...)
	m.mu.Unlock()
	if fn != nil {
		return fn(frame)
	}
	return res, nil
}

// SetResults replaces the reported detections.
func (m *MockDetector) SetResults(dets ...Detection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results = dets
}

// Calls returns the number of Detect calls.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Name returns "mock".
func (m *MockDetector) Name() string { return "mock" }

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
