package audioio

import (
	"context"
	"io"
	"time"
)

// AudioChunk is a block of interleaved PCM16 samples.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// ChunkFromPCM decodes little-endian PCM16 bytes. A trailing odd byte is
// dropped.
func ChunkFromPCM(data []byte, sampleRate, channels int) AudioChunk {
	return AudioChunk{Samples: BytesToSamples(data), SampleRate: sampleRate, Channels: channels}
}

// Bytes returns the samples as little-endian PCM16.
func (c AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration is the playback length of the chunk.
func (c AudioChunk) Duration() time.Duration {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate*c.Channels)
}

// Source captures audio. Chunks are delivered between Start and Stop
// through either Read or Stream; a source may be restarted until Close.
type Source interface {
	Start(ctx context.Context) error
	// Stop is idempotent and closes the current Stream channel.
	Stop() error
	// Read blocks for the next chunk and returns io.EOF once stopped.
	Read(ctx context.Context) (AudioChunk, error)
	Stream() <-chan AudioChunk
	Config() Config
	Name() string
	io.Closer
}

// Sink plays audio. Write converts chunks to the sink's rate.
type Sink interface {
	Start(ctx context.Context) error
	Stop() error
	// Write may block while the playback buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error
	// Flush blocks until buffered audio has played.
	Flush(ctx context.Context) error
	// Clear drops buffered audio so a reply stops at once.
	Clear() error
	Config() Config
	Name() string
	io.Closer
}

// SourceStats counts capture activity.
type SourceStats struct {
	ChunksRead  int64  `json:"chunks_read"`
	SamplesRead int64  `json:"samples_read"`
	Overruns    int64  `json:"overruns"` // chunks dropped because nobody read them
	Running     bool   `json:"running"`
	Backend     string `json:"backend"`
}

// SinkStats counts playback activity.
type SinkStats struct {
	ChunksWritten   int64  `json:"chunks_written"`
	SamplesWritten  int64  `json:"samples_written"`
	Underruns       int64  `json:"underruns"` // callbacks that found the buffer empty mid-reply
	BufferedSamples int64  `json:"buffered_samples"`
	Running         bool   `json:"running"`
	Backend         string `json:"backend"`
}

// SourceWithStats is a Source that reports SourceStats.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}

// SinkWithStats is a Sink that reports SinkStats.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
