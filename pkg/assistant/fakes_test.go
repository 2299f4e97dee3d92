package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeFaces struct {
	mu          sync.Mutex
	ch          chan FaceDetectionResult
	startErr    error
	sensitivity float64
	stopped     int
	detect      func(frame []byte) (FaceDetectionResult, error)
}

func newFakeFaces() *fakeFaces {
	return &fakeFaces{ch: make(chan FaceDetectionResult, 16)}
}

func (f *fakeFaces) StartFaceDetection(ctx context.Context) (<-chan FaceDetectionResult, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.ch, nil
}

func (f *fakeFaces) StopFaceDetection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeFaces) DetectFaces(ctx context.Context, frame []byte) (FaceDetectionResult, error) {
	if f.detect != nil {
		return f.detect(frame)
	}
	return FaceDetectionResult{}, nil
}

func (f *fakeFaces) SetDetectionSensitivity(s float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sensitivity = s
}

func (f *fakeFaces) send(count int, confidence float64) {
	f.ch <- FaceDetectionResult{FaceCount: count, Confidence: confidence, Timestamp: time.Now()}
}

type fakeVoice struct {
	mu        sync.Mutex
	ch        chan AudioObservation
	initOK    bool
	startErr  error
	threshold float64
	released  int
}

func newFakeVoice() *fakeVoice {
	return &fakeVoice{ch: make(chan AudioObservation, 16), initOK: true}
}

func (v *fakeVoice) InitializeVAD(ctx context.Context) bool { return v.initOK }

func (v *fakeVoice) StartAudioDetection(ctx context.Context) (<-chan AudioObservation, error) {
	if v.startErr != nil {
		return nil, v.startErr
	}
	return v.ch, nil
}

func (v *fakeVoice) StopAudioDetection() {}

func (v *fakeVoice) SetVADThreshold(t float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.threshold = t
}

func (v *fakeVoice) Release() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.released++
	return nil
}

// fakeConvo runs each stage through an optional hook. Hooks that block
// should honour ctx.
type fakeConvo struct {
	mu       sync.Mutex
	stt      func(ctx context.Context, audio []byte) (string, error)
	converse func(ctx context.Context, text string, history []Message) (string, error)
	tts      func(ctx context.Context, text string) error

	histories [][]Message
	spoken    []string
	stops     int
}

func newFakeConvo() *fakeConvo {
	return &fakeConvo{}
}

func (c *fakeConvo) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	if c.stt != nil {
		return c.stt(ctx, audio)
	}
	return "hello", nil
}

func (c *fakeConvo) Converse(ctx context.Context, text string, history []Message) (string, error) {
	c.mu.Lock()
	c.histories = append(c.histories, history)
	c.mu.Unlock()
	if c.converse != nil {
		return c.converse(ctx, text, history)
	}
	return "hi there", nil
}

func (c *fakeConvo) TextToSpeech(ctx context.Context, text string) error {
	c.mu.Lock()
	c.spoken = append(c.spoken, text)
	c.mu.Unlock()
	if c.tts != nil {
		return c.tts(ctx, text)
	}
	return nil
}

func (c *fakeConvo) StopSpeaking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *fakeConvo) IsSpeaking() bool { return false }

func (c *fakeConvo) stopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

func (c *fakeConvo) lastHistory() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.histories) == 0 {
		return nil
	}
	return c.histories[len(c.histories)-1]
}

// block returns a hook that waits for ctx cancellation and signals entry.
func block(entered chan<- struct{}) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		entered <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
}

var errBoom = errors.New("boom")

type recordingMetrics struct {
	mu          sync.Mutex
	transitions [][2]State
	outcomes    []TurnOutcome
	failures    []FailureKind
	timeouts    int
}

func (m *recordingMetrics) StateChanged(from, to State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, [2]State{from, to})
}

func (m *recordingMetrics) TurnFinished(outcome TurnOutcome, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) StageCompleted(string, time.Duration, error) {}

func (m *recordingMetrics) FailureRaised(kind FailureKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, kind)
}

func (m *recordingMetrics) ListenTimedOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts++
}

func (m *recordingMetrics) outcomeList() []TurnOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TurnOutcome(nil), m.outcomes...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	o       *Orchestrator
	faces   *fakeFaces
	voice   *fakeVoice
	convo   *fakeConvo
	metrics *recordingMetrics
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		faces:   newFakeFaces(),
		voice:   newFakeVoice(),
		convo:   newFakeConvo(),
		metrics: &recordingMetrics{},
	}
	base := []Option{
		WithLogger(quietLogger()),
		WithMetrics(h.metrics),
		WithErrorRecoveryDelay(50 * time.Millisecond),
		WithListenTimeout(5 * time.Second),
	}
	o, err := New(h.faces, h.voice, h.convo, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	h.o = o
	t.Cleanup(o.Release)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.o.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForState(t, h.o, StateDetecting)
}

// listen drives the machine from Detecting to Listening with a face.
func (h *harness) listen(t *testing.T) {
	t.Helper()
	h.faces.send(1, 0.9)
	waitForState(t, h.o, StateListening)
}

func waitForState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	waitFor(t, func() bool { return o.State() == want }, "state "+want.String())
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
