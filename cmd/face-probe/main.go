// Face probe - checks the camera and YuNet detector without the assistant.
//
// With JPEG paths as arguments each file is detected once. Otherwise the
// configured camera is sampled until Ctrl+C.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-attend/internal/config"
	logging "github.com/teslashibe/go-attend/internal/log"
	"github.com/teslashibe/go-attend/pkg/app"
	"github.com/teslashibe/go-attend/pkg/assistant"
	"github.com/teslashibe/go-attend/pkg/camera"
	"github.com/teslashibe/go-attend/pkg/face"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	sensitivity := flag.Float64("sensitivity", -1, "Confidence gate override (0-1)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("❌ Config: %v\n", err)
		os.Exit(1)
	}
	if *sensitivity >= 0 {
		cfg.Assistant.Sensitivity = *sensitivity
	}
	logger := logging.Init(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	fmt.Println("🙂 Face probe")
	fmt.Println("=============")
	fmt.Printf("Model: %s\n", cfg.Face.Model)
	fmt.Printf("Sensitivity: %.2f\n\n", cfg.Assistant.Sensitivity)

	yunet := face.DefaultYuNetConfig()
	yunet.ModelPath = cfg.Face.Model
	yunet.NMSThreshold = cfg.Face.NMSThreshold
	yunet.TopK = cfg.Face.TopK
	detector, err := face.NewYuNet(yunet)
	if err != nil {
		fmt.Printf("❌ Detector: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flag.NArg() > 0 {
		src := face.NewSource(detector, nil, face.WithSensitivity(cfg.Assistant.Sensitivity), face.WithLogger(logger))
		defer src.Close()
		for _, path := range flag.Args() {
			frame, err := os.ReadFile(path)
			if err != nil {
				fmt.Printf("❌ %s: %v\n", path, err)
				continue
			}
			res, err := src.DetectFaces(ctx, frame)
			if err != nil {
				fmt.Printf("❌ %s: %v\n", path, err)
				continue
			}
			fmt.Printf("%s: %s\n", path, describe(res, cfg.Assistant.Sensitivity))
		}
		return
	}

	camCfg, err := app.CaptureConfig(cfg.Camera)
	if err != nil {
		detector.Close()
		fmt.Printf("❌ Camera: %v\n", err)
		os.Exit(1)
	}
	capture, err := camera.Open(camCfg, logger)
	if err != nil {
		detector.Close()
		fmt.Printf("❌ Camera: %v\n", err)
		os.Exit(1)
	}

	src := face.NewSource(detector, capture,
		face.WithInterval(cfg.Face.Interval),
		face.WithSensitivity(cfg.Assistant.Sensitivity),
		face.WithLogger(logger),
	)
	defer src.Close()

	results, err := src.StartFaceDetection(ctx)
	if err != nil {
		fmt.Printf("❌ Detection: %v\n", err)
		return
	}
	fmt.Println("🔄 Sampling camera (Ctrl+C to stop)")

	var last string
	for res := range results {
		line := describe(res, cfg.Assistant.Sensitivity)
		if line != last {
			fmt.Printf("[%s] %s\n", res.Timestamp.Format(time.TimeOnly), line)
			last = line
		}
	}
	fmt.Println("\n👋 Goodbye!")
}

func describe(res assistant.FaceDetectionResult, sensitivity float64) string {
	if res.FaceCount == 0 {
		return "no face"
	}
	verdict := "ignored"
	if res.Present(sensitivity) {
		verdict = "present"
	}
	return fmt.Sprintf("%d face(s), best %.2f, %s", res.FaceCount, res.Confidence, verdict)
}
