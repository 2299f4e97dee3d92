package audioio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotWAV is returned when decoding data that is not 16-bit PCM WAV.
var ErrNotWAV = errors.New("audioio: not a 16-bit PCM WAV")

const wavHeaderSize = 44

// EncodeWAV wraps PCM16 samples in a canonical 44-byte RIFF header.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataLen))

	le := binary.LittleEndian
	buf.WriteString("RIFF")
	_ = binary.Write(buf, le, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, le, uint32(16))
	_ = binary.Write(buf, le, uint16(1)) // PCM
	_ = binary.Write(buf, le, uint16(channels))
	_ = binary.Write(buf, le, uint32(sampleRate))
	_ = binary.Write(buf, le, uint32(sampleRate*channels*2))
	_ = binary.Write(buf, le, uint16(channels*2))
	_ = binary.Write(buf, le, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(buf, le, uint32(dataLen))
	buf.Write(SamplesToBytes(samples))
	return buf.Bytes()
}

// DecodeWAV parses a 16-bit PCM WAV, skipping unknown chunks.
func DecodeWAV(data []byte) (AudioChunk, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return AudioChunk{}, ErrNotWAV
	}

	le := binary.LittleEndian
	var (
		chunk     AudioChunk
		haveFmt   bool
		bitsPer   uint16
		audioType uint16
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(le.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return AudioChunk{}, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			audioType = le.Uint16(data[body:])
			chunk.Channels = int(le.Uint16(data[body+2:]))
			chunk.SampleRate = int(le.Uint32(data[body+4:]))
			bitsPer = le.Uint16(data[body+14:])
			haveFmt = true
		case "data":
			if !haveFmt {
				return AudioChunk{}, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			if audioType != 1 || bitsPer != 16 {
				return AudioChunk{}, fmt.Errorf("%w: format %d, %d bits", ErrNotWAV, audioType, bitsPer)
			}
			chunk.Samples = BytesToSamples(data[body : body+size])
			return chunk, nil
		}

		pos = body + size + size%2
	}
	return AudioChunk{}, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}
