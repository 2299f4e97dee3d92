// Package vad turns microphone audio into voice-activity observations.
//
// Each frame is scored by an Analyzer, the Segmenter turns scores into
// utterances, and Source wires both to an audioio.Source as an
// assistant.VoiceActivitySource.
package vad

import (
	"errors"
	"log/slog"
	"math"
	"sync"
)

const pcmMaxAmplitude = 32768.0

// ErrShortFrame is returned by analyzers that need a minimum frame length.
var ErrShortFrame = errors.New("vad: frame too short")

// Analyzer scores one frame of PCM16 mono audio with a speech probability
// in [0,1].
type Analyzer interface {
	Analyze(samples []int16, sampleRate int) (float64, error)
	Reset()
	Name() string
}

// EnergyParams tunes EnergyAnalyzer.
type EnergyParams struct {
	// MinVolume is the RMS below which a frame is never speech.
	MinVolume float64
	// MaxVolume is the RMS that maps to probability 1.
	MaxVolume float64
	// Smoothing is the exponential smoothing factor in (0,1].
	Smoothing float64
	// NoiseWindow is how many recent frames the noise floor is taken over.
	NoiseWindow int
	// NoiseFactor scales the noise floor into the speech gate.
	NoiseFactor float64
}

// DefaultEnergyParams returns parameters tuned for close-talk speech.
func DefaultEnergyParams() EnergyParams {
	return EnergyParams{
		MinVolume:   0.01,
		MaxVolume:   0.3,
		Smoothing:   0.3,
		NoiseWindow: 50,
		NoiseFactor: 3,
	}
}

// EnergyAnalyzer scores frames by smoothed RMS above an adaptive gate. The
// gate is max(MinVolume, NoiseFactor × the quietest of the last NoiseWindow
// frames).
type EnergyAnalyzer struct {
	params EnergyParams

	mu       sync.Mutex
	smoothed float64
	window   []float64
	next     int
}

// NewEnergyAnalyzer creates an energy analyzer.
func NewEnergyAnalyzer(params EnergyParams) *EnergyAnalyzer {
	if params.Smoothing <= 0 || params.Smoothing > 1 {
		params.Smoothing = 1
	}
	if params.NoiseWindow < 1 {
		params.NoiseWindow = 1
	}
	return &EnergyAnalyzer{params: params}
}

// Name returns "energy".
func (a *EnergyAnalyzer) Name() string { return "energy" }

// Analyze returns the speech probability of a frame.
func (a *EnergyAnalyzer) Analyze(samples []int16, _ int) (float64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	rms := RMS(samples)

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.window) < a.params.NoiseWindow {
		a.window = append(a.window, rms)
	} else {
		a.window[a.next] = rms
		a.next = (a.next + 1) % len(a.window)
	}
	a.smoothed = a.params.Smoothing*rms + (1-a.params.Smoothing)*a.smoothed

	return probability(a.smoothed, a.gate(), a.params.MaxVolume), nil
}

// NoiseFloor returns the current noise floor estimate.
func (a *EnergyAnalyzer) NoiseFloor() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.floor()
}

func (a *EnergyAnalyzer) floor() float64 {
	if len(a.window) == 0 {
		return 0
	}
	m := a.window[0]
	for _, v := range a.window[1:] {
		m = math.Min(m, v)
	}
	return m
}

func (a *EnergyAnalyzer) gate() float64 {
	return math.Max(a.params.MinVolume, a.floor()*a.params.NoiseFactor)
}

// Reset clears smoothing and noise history.
func (a *EnergyAnalyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.smoothed = 0
	a.window = a.window[:0]
	a.next = 0
}

// VoicedAnalyzer weights energy by how speech-like the zero-crossing rate
// is. Broadband hiss and low hum cross zero far more or far less often than
// voiced speech. Frames shorter than 10 ms are rejected.
type VoicedAnalyzer struct {
	energy *EnergyAnalyzer
	// MinZCR and MaxZCR bound the crossings-per-second band treated as voice.
	MinZCR float64
	MaxZCR float64
}

// NewVoicedAnalyzer creates a zero-crossing weighted analyzer.
func NewVoicedAnalyzer(params EnergyParams) *VoicedAnalyzer {
	return &VoicedAnalyzer{
		energy: NewEnergyAnalyzer(params),
		MinZCR: 50,
		MaxZCR: 3500,
	}
}

// Name returns "voiced".
func (a *VoicedAnalyzer) Name() string { return "voiced" }

// Analyze returns the energy probability, attenuated outside the voice band.
func (a *VoicedAnalyzer) Analyze(samples []int16, sampleRate int) (float64, error) {
	if sampleRate <= 0 || len(samples) < sampleRate/100 {
		return 0, ErrShortFrame
	}
	p, err := a.energy.Analyze(samples, sampleRate)
	if err != nil {
		return 0, err
	}

	zcr := ZeroCrossingRate(samples, sampleRate)
	if zcr < a.MinZCR || zcr > a.MaxZCR {
		p *= 0.25
	}
	return p, nil
}

// Reset clears analyzer state.
func (a *VoicedAnalyzer) Reset() { a.energy.Reset() }

// FallbackAnalyzer uses primary until it fails maxFailures times in a row,
// then switches to fallback for good.
type FallbackAnalyzer struct {
	primary     Analyzer
	fallback    Analyzer
	maxFailures int
	logger      *slog.Logger

	mu       sync.Mutex
	failures int
	fellBack bool
}

// DefaultMaxFailures is how many consecutive primary errors trigger the
// switch.
const DefaultMaxFailures = 3

// NewFallbackAnalyzer wraps primary with fallback.
func NewFallbackAnalyzer(primary, fallback Analyzer, maxFailures int, logger *slog.Logger) *FallbackAnalyzer {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackAnalyzer{
		primary:     primary,
		fallback:    fallback,
		maxFailures: maxFailures,
		logger:      logger,
	}
}

// Name returns the name of the analyzer currently in use.
func (f *FallbackAnalyzer) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fellBack {
		return f.fallback.Name()
	}
	return f.primary.Name()
}

// FellBack reports whether the primary analyzer has been abandoned.
func (f *FallbackAnalyzer) FellBack() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fellBack
}

// Analyze scores a frame with the active analyzer.
func (f *FallbackAnalyzer) Analyze(samples []int16, sampleRate int) (float64, error) {
	f.mu.Lock()
	fellBack := f.fellBack
	f.mu.Unlock()

	if !fellBack {
		p, err := f.primary.Analyze(samples, sampleRate)
		if err == nil {
			f.mu.Lock()
			f.failures = 0
			f.mu.Unlock()
			return p, nil
		}

		f.mu.Lock()
		f.failures++
		if f.failures >= f.maxFailures {
			f.fellBack = true
			f.logger.Warn("vad analyzer failing, switching to fallback",
				"primary", f.primary.Name(),
				"fallback", f.fallback.Name(),
				"error", err,
			)
		}
		f.mu.Unlock()
	}
	return f.fallback.Analyze(samples, sampleRate)
}

// Reset resets both analyzers but keeps the fallback decision.
func (f *FallbackAnalyzer) Reset() {
	f.primary.Reset()
	f.fallback.Reset()
	f.mu.Lock()
	f.failures = 0
	f.mu.Unlock()
}

// RMS returns the root mean square of samples normalized to [0,1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		n := float64(s) / pcmMaxAmplitude
		sum += n * n
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZeroCrossingRate returns sign changes per second.
func ZeroCrossingRate(samples []int16, sampleRate int) float64 {
	if len(samples) < 2 || sampleRate <= 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) * float64(sampleRate) / float64(len(samples))
}

func probability(level, gate, max float64) float64 {
	if level <= gate {
		return 0
	}
	if max <= gate {
		return 1
	}
	p := (level - gate) / (max - gate)
	return math.Min(1, math.Max(0, p))
}
