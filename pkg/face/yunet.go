package face

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YuNetConfig holds YuNet model settings.
type YuNetConfig struct {
	ModelPath string
	// ScoreThreshold is the model's own cut-off. Keep it at or below the
	// lowest sensitivity you intend to use.
	ScoreThreshold float64
	NMSThreshold   float64
	TopK           int
	InputWidth     int
	InputHeight    int
}

// DefaultYuNetConfig returns production defaults for YuNet.
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:      "models/face_detection_yunet_2023mar.onnx",
		ScoreThreshold: 0.3,
		NMSThreshold:   0.3,
		TopK:           50,
		InputWidth:     320,
		InputHeight:    320,
	}
}

// YuNet uses OpenCV's FaceDetectorYN.
type YuNet struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // FaceDetectorYN is not safe for concurrent use
}

// NewYuNet loads the ONNX model at cfg.ModelPath.
func NewYuNet(cfg YuNetConfig) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelNotFound, cfg.ModelPath, err)
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ScoreThreshold),
		float32(cfg.NMSThreshold),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &YuNet{detector: detector}, nil
}

// Detect finds faces in an encoded image.
func (y *YuNet) Detect(frame []byte) ([]Detection, error) {
	img, err := gocv.IMDecode(frame, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrBadFrame
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	y.detector.Detect(img, &faces)

	// Each row: x, y, w, h, five landmark pairs, score.
	dets := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		x := int(faces.GetFloatAt(r, 0))
		top := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		box := image.Rect(x, top, x+w, top+h).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
		if box.Empty() {
			continue
		}
		dets = append(dets, Detection{
			Box:        box,
			Confidence: float64(faces.GetFloatAt(r, 14)),
		})
	}
	return dets, nil
}

// Name returns "yunet".
func (y *YuNet) Name() string { return "yunet" }

// Close releases the model.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.detector.Close()
	return nil
}
