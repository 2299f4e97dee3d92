package camera

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"tiny width", func(c *Config) { c.Width = 100 }, true},
		{"huge height", func(c *Config) { c.Height = 5000 }, true},
		{"zero framerate", func(c *Config) { c.Framerate = 0 }, true},
		{"quality too high", func(c *Config) { c.Quality = 101 }, true},
		{"brightness out of range", func(c *Config) { c.Brightness = 1.5 }, true},
		{"negative exposure", func(c *Config) { c.Exposure = -1 }, true},
		{"zoom below one", func(c *Config) { c.ZoomLevel = 0.5 }, true},
		{"negative device", func(c *Config) { c.Device = -1 }, true},
		{"zoom max", func(c *Config) { c.ZoomLevel = MaxZoom }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestPresetsValid(t *testing.T) {
	for _, name := range PresetNames() {
		p := GetPreset(name)
		if p == nil {
			t.Fatalf("preset %q missing", name)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("preset %q invalid: %v", name, err)
		}
	}
	if GetPreset("nope") != nil {
		t.Error("unknown preset should be nil")
	}
}

func ptr[T any](v T) *T { return &v }

func TestManagerUpdate(t *testing.T) {
	var applied []Config
	m := NewManager(DefaultConfig(), func(cfg Config) error {
		applied = append(applied, cfg)
		return nil
	})

	got, err := m.Update(Update{Width: ptr(1280), Height: ptr(720), Mirror: ptr(true)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Width != 1280 || got.Height != 720 || !got.Mirror {
		t.Errorf("settings not updated: %+v", got)
	}
	if m.Settings() != got {
		t.Error("Settings does not match Update result")
	}
	if len(applied) != 1 || applied[0] != got {
		t.Errorf("apply calls = %v, want one with the new settings", applied)
	}
}

func TestManagerPresetKeepsDevice(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = 2
	m := NewManager(cfg, nil)

	got, err := m.Update(Update{Preset: ptr(Preset720p), Quality: ptr(90)})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Device != 2 {
		t.Errorf("Device = %d, want 2", got.Device)
	}
	if got.Width != 1280 || got.Quality != 90 {
		t.Errorf("preset not applied: %+v", got)
	}
}

func TestManagerRejects(t *testing.T) {
	tests := []struct {
		name   string
		update Update
		is     error
	}{
		{"unknown preset", Update{Preset: ptr("cinema")}, ErrUnknownPreset},
		{"invalid value", Update{ZoomLevel: ptr(9.0)}, nil},
		{"too small", Update{Width: ptr(10)}, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(DefaultConfig(), nil)
			got, err := m.Update(tc.update)
			if err == nil {
				t.Fatal("expected error")
			}
			if tc.is != nil && !errors.Is(err, tc.is) {
				t.Errorf("err = %v, want %v", err, tc.is)
			}
			if got != DefaultConfig() || m.Settings() != DefaultConfig() {
				t.Error("settings changed despite error")
			}
		})
	}
}

func TestManagerKeepsSettingsOnApplyError(t *testing.T) {
	boom := errors.New("device busy")
	m := NewManager(DefaultConfig(), func(Config) error { return boom })

	if _, err := m.Update(Update{Width: ptr(1280)}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if m.Settings().Width != DefaultConfig().Width {
		t.Error("settings changed after failed apply")
	}
}

func TestUpdateDecodesJSON(t *testing.T) {
	var u Update
	if err := json.Unmarshal([]byte(`{"preset":"dim","zoom_level":1.5}`), &u); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	got, err := u.Apply(DefaultConfig())
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got.Brightness != 0.4 || got.ZoomLevel != 1.5 || got.Width != DefaultConfig().Width {
		t.Errorf("Apply = %+v", got)
	}
}

func TestZoomRect(t *testing.T) {
	tests := []struct {
		zoom float64
		want image.Rectangle
	}{
		{1, image.Rect(0, 0, 640, 480)},
		{2, image.Rect(160, 120, 480, 360)},
		{4, image.Rect(240, 180, 400, 300)},
	}
	for _, tc := range tests {
		if got := zoomRect(640, 480, tc.zoom); got != tc.want {
			t.Errorf("zoomRect(%v) = %v, want %v", tc.zoom, got, tc.want)
		}
	}
}

func TestMockFrames(t *testing.T) {
	a := SolidJPEG(8, 8, color.Black)
	b := SolidJPEG(8, 8, color.White)
	m := NewMock(a, b)
	ctx := context.Background()

	for i, want := range [][]byte{a, b, b} {
		got, err := m.Frame(ctx)
		if err != nil {
			t.Fatalf("Frame %d: %v", i, err)
		}
		if string(got) != string(want) {
			t.Errorf("Frame %d returned the wrong frame", i)
		}
	}
	if m.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", m.Calls())
	}

	m.Close()
	if _, err := m.Frame(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("after Close err = %v, want ErrClosed", err)
	}
}

func TestMockEmpty(t *testing.T) {
	if _, err := NewMock().Frame(context.Background()); !errors.Is(err, ErrNoFrame) {
		t.Errorf("err = %v, want ErrNoFrame", err)
	}
}
