package camera

import (
	"fmt"
	"sync"
)

// Update is a partial settings change. Nil fields are left alone. A preset
// replaces everything except the device before the other fields apply.
type Update struct {
	Preset     *string  `json:"preset,omitempty"`
	Width      *int     `json:"width,omitempty"`
	Height     *int     `json:"height,omitempty"`
	Framerate  *int     `json:"framerate,omitempty"`
	Quality    *int     `json:"quality,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
	Exposure   *float64 `json:"exposure,omitempty"`
	ZoomLevel  *float64 `json:"zoom_level,omitempty"`
	Mirror     *bool    `json:"mirror,omitempty"`
}

// Apply returns cfg with u applied. The result is not validated.
func (u Update) Apply(cfg Config) (Config, error) {
	if u.Preset != nil {
		preset := GetPreset(*u.Preset)
		if preset == nil {
			return cfg, fmt.Errorf("%w %q", ErrUnknownPreset, *u.Preset)
		}
		device := cfg.Device
		cfg = *preset
		cfg.Device = device
	}
	set(&cfg.Width, u.Width)
	set(&cfg.Height, u.Height)
	set(&cfg.Framerate, u.Framerate)
	set(&cfg.Quality, u.Quality)
	set(&cfg.Brightness, u.Brightness)
	set(&cfg.Exposure, u.Exposure)
	set(&cfg.ZoomLevel, u.ZoomLevel)
	set(&cfg.Mirror, u.Mirror)
	return cfg, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Manager owns the live camera settings. Changes are validated and handed
// to an apply function, usually Capture.Reconfigure; a failed apply keeps
// the previous settings.
type Manager struct {
	mu    sync.Mutex
	cfg   Config
	apply func(Config) error
}

// NewManager starts from cfg. apply may be nil.
func NewManager(cfg Config, apply func(Config) error) *Manager {
	return &Manager{cfg: cfg, apply: apply}
}

// Settings returns the current settings.
func (m *Manager) Settings() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Update applies u and returns the resulting settings.
func (m *Manager) Update(u Update) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := u.Apply(m.cfg)
	if err != nil {
		return m.cfg, err
	}
	if err := next.Validate(); err != nil {
		return m.cfg, err
	}
	if m.apply != nil {
		if err := m.apply(next); err != nil {
			return m.cfg, fmt.Errorf("camera: apply settings: %w", err)
		}
	}
	m.cfg = next
	return next, nil
}
