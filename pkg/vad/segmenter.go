package vad

import (
	"time"

	"github.com/teslashibe/go-attend/pkg/audioio"
)

// EventKind is what a frame did to the current utterance.
type EventKind int

const (
	EventNone EventKind = iota
	// EventStarted fires once speech has lasted StartFrames frames.
	EventStarted
	// EventEnded carries a finished utterance.
	EventEnded
	// EventDiscarded means speech ended before MinSpeech.
	EventDiscarded
)

// Event is returned by Segmenter.Push.
type Event struct {
	Kind    EventKind
	Samples []int16
	Speech  time.Duration
}

// SegmenterConfig tunes utterance boundaries.
type SegmenterConfig struct {
	// StartFrames consecutive voiced frames open an utterance. They are kept
	// as pre-roll.
	StartFrames int
	// Hangover is how much trailing silence closes an utterance.
	Hangover time.Duration
	// MinSpeech is the least voiced audio an utterance must contain.
	MinSpeech time.Duration
	// MaxUtterance force-closes long utterances.
	MaxUtterance time.Duration
}

// DefaultSegmenterConfig returns conversational defaults.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		StartFrames:  3,
		Hangover:     800 * time.Millisecond,
		MinSpeech:    300 * time.Millisecond,
		MaxUtterance: 30 * time.Second,
	}
}

type segState int

const (
	segQuiet segState = iota
	segStarting
	segSpeaking
)

// Segmenter is a quiet → starting → speaking state machine over scored
// frames. It is not safe for concurrent use.
type Segmenter struct {
	cfg SegmenterConfig

	state   segState
	voiced  int
	buf     []int16
	speech  time.Duration
	silence time.Duration
	total   time.Duration
}

// NewSegmenter creates a segmenter.
func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	if cfg.StartFrames < 1 {
		cfg.StartFrames = 1
	}
	return &Segmenter{cfg: cfg}
}

// Speaking reports whether an utterance is open.
func (s *Segmenter) Speaking() bool { return s.state == segSpeaking }

// Push feeds one frame and its voiced decision.
func (s *Segmenter) Push(chunk audioio.AudioChunk, voiced bool) Event {
	d := chunk.Duration()

	switch s.state {
	case segQuiet, segStarting:
		if !voiced {
			s.Reset()
			return Event{}
		}
		s.state = segStarting
		s.voiced++
		s.buf = append(s.buf, chunk.Samples...)
		s.speech += d
		s.total += d
		if s.voiced >= s.cfg.StartFrames {
			s.state = segSpeaking
			return Event{Kind: EventStarted}
		}
		return Event{}

	case segSpeaking:
		s.buf = append(s.buf, chunk.Samples...)
		s.total += d
		if voiced {
			s.speech += d
			s.silence = 0
		} else {
			s.silence += d
		}

		if s.silence >= s.cfg.Hangover || (s.cfg.MaxUtterance > 0 && s.total >= s.cfg.MaxUtterance) {
			return s.close()
		}
	}
	return Event{}
}

// Flush closes an open utterance, e.g. when capture stops.
func (s *Segmenter) Flush() Event {
	if s.state != segSpeaking {
		s.Reset()
		return Event{}
	}
	return s.close()
}

func (s *Segmenter) close() Event {
	ev := Event{Kind: EventEnded, Samples: s.buf, Speech: s.speech}
	if s.speech < s.cfg.MinSpeech {
		ev = Event{Kind: EventDiscarded, Speech: s.speech}
	}
	s.buf = nil
	s.Reset()
	return ev
}

// Reset drops any partial utterance.
func (s *Segmenter) Reset() {
	s.state = segQuiet
	s.voiced = 0
	s.buf = s.buf[:0]
	s.speech = 0
	s.silence = 0
	s.total = 0
}
