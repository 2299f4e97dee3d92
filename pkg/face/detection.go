// Package face detects faces in camera frames and reports them as
// assistant face observations.
package face

import (
	"image"
	"time"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

// Detection is one face found in a frame, in pixel coordinates.
type Detection struct {
	Box        image.Rectangle
	Confidence float64
}

// Area returns the bounding box area in pixels.
func (d Detection) Area() int {
	return d.Box.Dx() * d.Box.Dy()
}

// Detector finds faces in an encoded image.
type Detector interface {
	// Detect finds faces in a JPEG or PNG frame.
	Detect(frame []byte) ([]Detection, error)

	// Name returns the backend name.
	Name() string

	// Close releases resources.
	Close() error
}

// SelectBest picks the most confident detection, preferring the larger box
// on a tie. It returns nil for no detections.
func SelectBest(dets []Detection) *Detection {
	if len(dets) == 0 {
		return nil
	}
	best := &dets[0]
	for i := 1; i < len(dets); i++ {
		d := &dets[i]
		if d.Confidence > best.Confidence ||
			(d.Confidence == best.Confidence && d.Area() > best.Area()) {
			best = d
		}
	}
	return best
}

// Filter drops detections below minConfidence.
func Filter(dets []Detection, minConfidence float64) []Detection {
	out := dets[:0:0]
	for _, d := range dets {
		if d.Confidence >= minConfidence {
			out = append(out, d)
		}
	}
	return out
}

// ToResult builds an observation from detections. Confidence is that of the
// best face.
func ToResult(dets []Detection, ts time.Time) assistant.FaceDetectionResult {
	res := assistant.FaceDetectionResult{Timestamp: ts}
	best := SelectBest(dets)
	if best == nil {
		return res
	}
	res.FaceCount = len(dets)
	res.Confidence = clamp01(best.Confidence)
	res.BoundingBoxes = make([]assistant.Box, len(dets))
	for i, d := range dets {
		res.BoundingBoxes[i] = assistant.Box{
			X:      d.Box.Min.X,
			Y:      d.Box.Min.Y,
			Width:  d.Box.Dx(),
			Height: d.Box.Dy(),
		}
	}
	return res
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
