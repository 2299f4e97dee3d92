package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
)

// H264 NAL unit types that matter for decoding.
const (
	naluIDR = 5
	naluSPS = 7
)

// maxGOPBytes bounds the buffered group of pictures.
const maxGOPBytes = 4 << 20

// gopAssembler depacketizes H264 RTP into Annex-B and keeps everything
// since the last keyframe, so the newest picture can always be decoded.
type gopAssembler struct {
	depack  codecs.H264Packet
	unit    []byte
	gop     []byte
	haveKey bool
}

// push adds one RTP packet. It reports true when an access unit completed.
func (g *gopAssembler) push(pkt *rtp.Packet) (bool, error) {
	nal, err := g.depack.Unmarshal(pkt.Payload)
	if err != nil {
		return false, err
	}
	g.unit = append(g.unit, nal...)
	if !pkt.Marker {
		return false, nil
	}

	unit := g.unit
	g.unit = nil
	if len(unit) == 0 {
		return false, nil
	}

	if isKeyframe(unit) {
		g.gop = append(g.gop[:0], unit...)
		g.haveKey = true
		return true, nil
	}
	if !g.haveKey {
		return false, nil
	}
	if len(g.gop)+len(unit) > maxGOPBytes {
		g.gop = g.gop[:0]
		g.haveKey = false
		return false, nil
	}
	g.gop = append(g.gop, unit...)
	return true, nil
}

// snapshot returns a copy of the buffered stream, or nil before a keyframe.
func (g *gopAssembler) snapshot() []byte {
	if !g.haveKey {
		return nil
	}
	return bytes.Clone(g.gop)
}

// isKeyframe reports whether an Annex-B access unit holds an IDR slice or SPS.
func isKeyframe(annexB []byte) bool {
	for _, t := range naluTypes(annexB) {
		if t == naluIDR || t == naluSPS {
			return true
		}
	}
	return false
}

// naluTypes lists the NAL unit types in an Annex-B stream.
func naluTypes(annexB []byte) []byte {
	var types []byte
	for i := 0; i+3 < len(annexB); i++ {
		if annexB[i] != 0 || annexB[i+1] != 0 {
			continue
		}
		switch {
		case annexB[i+2] == 1:
			types = append(types, annexB[i+3]&0x1f)
			i += 2
		case annexB[i+2] == 0 && i+4 < len(annexB) && annexB[i+3] == 1:
			types = append(types, annexB[i+4]&0x1f)
			i += 3
		}
	}
	return types
}

// FrameDecoder turns an H264 Annex-B stream into the JPEG of its last picture.
type FrameDecoder interface {
	Decode(ctx context.Context, annexB []byte) ([]byte, error)
}

// FFmpegDecoder decodes through a short-lived ffmpeg process over pipes.
type FFmpegDecoder struct {
	Path    string
	Quality int // mjpeg q:v, 1-31, lower is better
	Timeout time.Duration
}

// NewFFmpegDecoder returns a decoder using ffmpeg from PATH.
func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{Path: "ffmpeg", Quality: 3, Timeout: 500 * time.Millisecond}
}

// Decode pipes annexB through ffmpeg and returns the final JPEG.
func (d *FFmpegDecoder) Decode(ctx context.Context, annexB []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.Path,
		"-loglevel", "error",
		"-f", "h264",
		"-i", "pipe:0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", fmt.Sprint(d.Quality),
		"pipe:1",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(annexB)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil && stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg: %w: %s", ErrDecode, err, bytes.TrimSpace(stderr.Bytes()))
	}
	frame := lastJPEG(stdout.Bytes())
	if frame == nil {
		return nil, fmt.Errorf("%w: no picture in %d bytes", ErrDecode, len(annexB))
	}
	return frame, nil
}

var (
	jpegSOI = []byte{0xff, 0xd8, 0xff}
	jpegEOI = []byte{0xff, 0xd9}
)

// lastJPEG returns the last complete JPEG in a concatenated mjpeg stream.
func lastJPEG(stream []byte) []byte {
	end := bytes.LastIndex(stream, jpegEOI)
	if end < 0 {
		return nil
	}
	start := bytes.LastIndex(stream[:end], jpegSOI)
	if start < 0 {
		return nil
	}
	return bytes.Clone(stream[start : end+len(jpegEOI)])
}
