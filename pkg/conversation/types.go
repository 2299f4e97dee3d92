package conversation

import (
	"sync/atomic"
	"time"
)

// Stage names one step of a turn.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageConverse   Stage = "converse"
	StageSpeak      Stage = "speak"
)

// Metrics tracks service statistics.
type Metrics struct {
	Transcriptions  int64
	EmptyTranscript int64
	Replies         int64
	Utterances      int64
	Interruptions   int64
	Errors          int64

	// Last stage latencies.
	LastTranscribe time.Duration
	LastConverse   time.Duration
	LastSpeak      time.Duration
}

type counters struct {
	transcriptions  atomic.Int64
	emptyTranscript atomic.Int64
	replies         atomic.Int64
	utterances      atomic.Int64
	interruptions   atomic.Int64
	errors          atomic.Int64

	lastTranscribe atomic.Int64
	lastConverse   atomic.Int64
	lastSpeak      atomic.Int64
}

func (c *counters) snapshot() Metrics {
	return Metrics{
		Transcriptions:  c.transcriptions.Load(),
		EmptyTranscript: c.emptyTranscript.Load(),
		Replies:         c.replies.Load(),
		Utterances:      c.utterances.Load(),
		Interruptions:   c.interruptions.Load(),
		Errors:          c.errors.Load(),
		LastTranscribe:  time.Duration(c.lastTranscribe.Load()),
		LastConverse:    time.Duration(c.lastConverse.Load()),
		LastSpeak:       time.Duration(c.lastSpeak.Load()),
	}
}
