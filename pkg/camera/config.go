// Package camera captures JPEG frames from a local camera and holds its
// runtime-tunable settings.
package camera

import (
	"errors"
	"fmt"
)

// Config holds camera capture parameters.
// They can be changed at runtime through a Manager.
type Config struct {
	// Device is the OpenCV capture index.
	Device int `json:"device"`

	Width     int `json:"width"`     // Frame width in pixels
	Height    int `json:"height"`    // Frame height in pixels
	Framerate int `json:"framerate"` // Target FPS
	Quality   int `json:"quality"`   // JPEG quality 1-100

	// Brightness is passed to the driver in [-1, 1]. 0 leaves it alone.
	Brightness float64 `json:"brightness"`

	// Exposure is a driver-specific exposure value. 0 means auto.
	Exposure float64 `json:"exposure"`

	// ZoomLevel is a centred digital crop factor (1.0 to 4.0).
	ZoomLevel float64 `json:"zoom_level"`

	// Mirror flips frames horizontally.
	Mirror bool `json:"mirror"`
}

// Limits accepted by Validate.
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 3840
	MaxHeight    = 2160
	MaxFramerate = 60
	MaxZoom      = 4.0
)

// DefaultConfig returns VGA capture, which is plenty for face detection.
func DefaultConfig() Config {
	return Config{
		Device:    0,
		Width:     640,
		Height:    480,
		Framerate: 15,
		Quality:   80,
		ZoomLevel: 1.0,
	}
}

// Validate reports every out-of-range value.
func (c Config) Validate() error {
	var errs []error
	if c.Device < 0 {
		errs = append(errs, errors.New("camera: device must not be negative"))
	}
	if c.Width < MinWidth || c.Width > MaxWidth {
		errs = append(errs, fmt.Errorf("camera: width must be between %d and %d", MinWidth, MaxWidth))
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errs = append(errs, fmt.Errorf("camera: height must be between %d and %d", MinHeight, MaxHeight))
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errs = append(errs, fmt.Errorf("camera: framerate must be between 1 and %d", MaxFramerate))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, errors.New("camera: quality must be between 1 and 100"))
	}
	if c.Brightness < -1 || c.Brightness > 1 {
		errs = append(errs, errors.New("camera: brightness must be between -1.0 and 1.0"))
	}
	if c.Exposure < 0 {
		errs = append(errs, errors.New("camera: exposure must be 0 (auto) or positive"))
	}
	if c.ZoomLevel < 1 || c.ZoomLevel > MaxZoom {
		errs = append(errs, fmt.Errorf("camera: zoom_level must be between 1.0 and %.1f", MaxZoom))
	}
	return errors.Join(errs...)
}

// Capabilities describes the tunable ranges, for the dashboard.
func Capabilities() map[string]any {
	return map[string]any{
		"min_width":     MinWidth,
		"min_height":    MinHeight,
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"max_zoom":      MaxZoom,
		"presets":       PresetNames(),
	}
}
