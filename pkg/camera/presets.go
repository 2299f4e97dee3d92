package camera

// Preset names.
const (
	PresetDefault = "default"
	PresetLow     = "low"
	Preset720p    = "720p"
	Preset1080p   = "1080p"
	PresetDim     = "dim"
	PresetZoom2x  = "zoom2x"
)

// presets is ordered for display. Each entry adjusts DefaultConfig.
var presets = []struct {
	name   string
	adjust func(*Config)
}{
	{PresetDefault, func(*Config) {}},
	// Small boards: detection still works on 320x240 faces within a metre.
	{PresetLow, func(c *Config) { c.Width, c.Height, c.Framerate, c.Quality = 320, 240, 10, 70 }},
	{Preset720p, func(c *Config) { c.Width, c.Height = 1280, 720 }},
	// Faces stay detectable further from the camera.
	{Preset1080p, func(c *Config) { c.Width, c.Height, c.Framerate = 1920, 1080, 10 }},
	{PresetDim, func(c *Config) { c.Brightness = 0.4 }},
	// Centre crop for a user sitting far back.
	{PresetZoom2x, func(c *Config) { c.Width, c.Height, c.ZoomLevel = 1280, 720, 2 }},
}

// PresetNames returns the preset names in display order.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// GetPreset returns the named preset, or nil if there is none.
func GetPreset(name string) *Config {
	for _, p := range presets {
		if p.name == name {
			cfg := DefaultConfig()
			p.adjust(&cfg)
			return &cfg
		}
	}
	return nil
}
