package audioio

import (
	"testing"
	"time"
)

func TestResampleLengths(t *testing.T) {
	tests := []struct {
		name     string
		in       int
		from, to int
		want     int
	}{
		{"same rate", 320, 16000, 16000, 320},
		{"48k to 16k", 960, 48000, 16000, 320},
		{"16k to 48k", 320, 16000, 48000, 960},
		{"empty", 0, 48000, 16000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]int16, tt.in)
			for i := range in {
				in[i] = int16(i)
			}
			if got := len(Resample(in, tt.from, tt.to)); got != tt.want {
				t.Errorf("len = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResampleInterpolates(t *testing.T) {
	out := Resample([]int16{0, 100}, 8000, 16000)
	if len(out) != 4 || out[0] != 0 || out[1] != 50 {
		t.Errorf("out = %v", out)
	}
}

func TestSampleByteConversion(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	data := SamplesToBytes(samples)
	if len(data) != 10 || data[2] != 1 || data[3] != 0 || data[4] != 0xff {
		t.Fatalf("bytes = %v", data)
	}
	back := BytesToSamples(data)
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, back[i], samples[i])
		}
	}
	if got := BytesToSamples(append(data, 0x7f)); len(got) != len(samples) {
		t.Errorf("odd trailing byte gave %d samples, want %d", len(got), len(samples))
	}
}

func TestStereoToMono(t *testing.T) {
	mono := StereoToMono([]int16{100, 300, -50, 50})
	if len(mono) != 2 || mono[0] != 200 || mono[1] != 0 {
		t.Errorf("mono = %v", mono)
	}
}

func TestMeanPower(t *testing.T) {
	if MeanPower(nil) != 0 {
		t.Error("empty should be 0")
	}
	if MeanPower(make([]int16, 10)) != 0 {
		t.Error("silence should be 0")
	}
	full := []int16{32767, -32767}
	if got := MeanPower(full); got < 0.99 || got > 1.01 {
		t.Errorf("full scale = %f, want ~1", got)
	}
}

func TestAudioChunk(t *testing.T) {
	chunk := AudioChunk{Samples: []int16{1, -1, 256}, SampleRate: 16000, Channels: 1}

	back := ChunkFromPCM(chunk.Bytes(), 16000, 1)
	for i := range chunk.Samples {
		if back.Samples[i] != chunk.Samples[i] {
			t.Errorf("sample %d = %d, want %d", i, back.Samples[i], chunk.Samples[i])
		}
	}

	twenty := AudioChunk{Samples: make([]int16, 320), SampleRate: 16000, Channels: 1}
	if d := twenty.Duration(); d != 20*time.Millisecond {
		t.Errorf("duration = %v, want 20ms", d)
	}
	stereo := AudioChunk{Samples: make([]int16, 640), SampleRate: 16000, Channels: 2}
	if d := stereo.Duration(); d != 20*time.Millisecond {
		t.Errorf("stereo duration = %v, want 20ms", d)
	}
	if (AudioChunk{}).Duration() != 0 {
		t.Error("zero chunk should have zero duration")
	}
}
