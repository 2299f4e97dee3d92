package vad

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-attend/pkg/audioio"
)

const testRate = 16000

func tone(amplitude float64, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * 32767 * math.Sin(2*math.Pi*440*float64(i)/testRate))
	}
	return out
}

func frame(samples []int16) audioio.AudioChunk {
	return audioio.AudioChunk{Samples: samples, SampleRate: testRate, Channels: 1}
}

func TestRMS(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("empty RMS should be 0")
	}
	got := RMS(tone(0.5, 1600))
	if math.Abs(got-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("RMS = %f, want ~%f", got, 0.5/math.Sqrt2)
	}
}

func TestZeroCrossingRate(t *testing.T) {
	got := ZeroCrossingRate(tone(0.5, 16000), testRate)
	if got < 860 || got > 900 {
		t.Errorf("zcr = %f, want ~880", got)
	}
}

func TestEnergyAnalyzerAdaptsToNoise(t *testing.T) {
	params := DefaultEnergyParams()
	params.Smoothing = 1
	params.NoiseWindow = 5
	a := NewEnergyAnalyzer(params)

	// Quiet room: speech stands out.
	for i := 0; i < 5; i++ {
		a.Analyze(tone(0.005, 320), testRate)
	}
	p, _ := a.Analyze(tone(0.3, 320), testRate)
	if p < 0.5 {
		t.Errorf("speech in quiet room scored %f", p)
	}

	// Noisy room: once the floor rises, the same level is not speech.
	for i := 0; i < 5; i++ {
		a.Analyze(tone(0.1, 320), testRate)
	}
	if floor := a.NoiseFloor(); floor < 0.06 {
		t.Errorf("noise floor = %f, expected it to track the noise", floor)
	}
	p, _ = a.Analyze(tone(0.15, 320), testRate)
	if p != 0 {
		t.Errorf("level below 3x floor scored %f", p)
	}

	a.Reset()
	if a.NoiseFloor() != 0 {
		t.Error("Reset should clear the noise floor")
	}
}

func TestVoicedAnalyzerRejectsShortFrames(t *testing.T) {
	a := NewVoicedAnalyzer(DefaultEnergyParams())
	if _, err := a.Analyze(make([]int16, 10), testRate); !errors.Is(err, ErrShortFrame) {
		t.Errorf("expected ErrShortFrame, got %v", err)
	}
	if _, err := a.Analyze(make([]int16, 320), testRate); err != nil {
		t.Errorf("20ms frame rejected: %v", err)
	}
}

type stubAnalyzer struct {
	name  string
	p     float64
	err   error
	calls int
}

func (s *stubAnalyzer) Analyze([]int16, int) (float64, error) {
	s.calls++
	return s.p, s.err
}
func (s *stubAnalyzer) Reset()       {}
func (s *stubAnalyzer) Name() string { return s.name }

func TestFallbackAfterConsecutiveFailures(t *testing.T) {
	primary := &stubAnalyzer{name: "primary", err: errors.New("model error")}
	fallback := &stubAnalyzer{name: "fallback", p: 0.8}
	f := NewFallbackAnalyzer(primary, fallback, 3, nil)

	for i := 0; i < 2; i++ {
		p, err := f.Analyze(nil, testRate)
		if err != nil || p != 0.8 {
			t.Fatalf("frame %d: p=%f err=%v", i, p, err)
		}
		if f.FellBack() {
			t.Fatalf("fell back after %d failures", i+1)
		}
	}

	f.Analyze(nil, testRate)
	if !f.FellBack() || f.Name() != "fallback" {
		t.Fatal("expected fallback after 3 failures")
	}

	primary.err = nil
	f.Analyze(nil, testRate)
	if primary.calls != 3 {
		t.Errorf("primary called %d times after fallback, want 3", primary.calls)
	}
}

func TestFallbackCounterResetsOnSuccess(t *testing.T) {
	primary := &stubAnalyzer{name: "primary", p: 0.1}
	fallback := &stubAnalyzer{name: "fallback"}
	f := NewFallbackAnalyzer(primary, fallback, 3, nil)

	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			primary.err = errors.New("flaky")
		} else {
			primary.err = nil
		}
		f.Analyze(nil, testRate)
	}
	if f.FellBack() {
		t.Error("non-consecutive failures should not trigger fallback")
	}
}

func TestSegmenter(t *testing.T) {
	cfg := SegmenterConfig{
		StartFrames:  2,
		Hangover:     60 * time.Millisecond,
		MinSpeech:    100 * time.Millisecond,
		MaxUtterance: time.Second,
	}
	f := frame(make([]int16, 320)) // 20ms

	push := func(s *Segmenter, voiced bool, n int) Event {
		var last Event
		for i := 0; i < n; i++ {
			if ev := s.Push(f, voiced); ev.Kind != EventNone {
				last = ev
			}
		}
		return last
	}

	t.Run("utterance", func(t *testing.T) {
		s := NewSegmenter(cfg)
		if ev := push(s, true, 2); ev.Kind != EventStarted {
			t.Fatalf("expected start, got %v", ev.Kind)
		}
		push(s, true, 6)
		ev := push(s, false, 3)
		if ev.Kind != EventEnded {
			t.Fatalf("expected end, got %v", ev.Kind)
		}
		if want := 11 * 320; len(ev.Samples) != want {
			t.Errorf("samples = %d, want %d", len(ev.Samples), want)
		}
		if ev.Speech != 160*time.Millisecond {
			t.Errorf("speech = %v, want 160ms", ev.Speech)
		}
	})

	t.Run("blip does not start", func(t *testing.T) {
		s := NewSegmenter(cfg)
		s.Push(f, true)
		s.Push(f, false)
		if ev := s.Push(f, true); ev.Kind != EventNone {
			t.Errorf("expected none, got %v", ev.Kind)
		}
		if s.Speaking() {
			t.Error("should not be speaking")
		}
	})

	t.Run("too short is discarded", func(t *testing.T) {
		s := NewSegmenter(cfg)
		push(s, true, 3)
		if ev := push(s, false, 3); ev.Kind != EventDiscarded {
			t.Errorf("expected discard, got %v", ev.Kind)
		}
	})

	t.Run("max utterance", func(t *testing.T) {
		s := NewSegmenter(cfg)
		push(s, true, 2)
		if ev := push(s, true, 48); ev.Kind != EventEnded {
			t.Errorf("expected forced end, got %v", ev.Kind)
		}
	})

	t.Run("flush", func(t *testing.T) {
		s := NewSegmenter(cfg)
		push(s, true, 8)
		if ev := s.Flush(); ev.Kind != EventEnded {
			t.Errorf("expected end on flush, got %v", ev.Kind)
		}
		if ev := s.Flush(); ev.Kind != EventNone {
			t.Errorf("second flush = %v", ev.Kind)
		}
	})
}
