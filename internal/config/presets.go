package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/clipforge/clipforge/internal/domain"
)

// Preset is one entry in the preset catalog (spec §4.2.1: "resolves the
// preset to an overlay configuration"). AUTO is a reserved key the compile
// handler falls back to when the caller's preset_key has no catalog entry.
type Preset struct {
	Key            string  `yaml:"key"`
	CaptionStyle   string  `yaml:"caption_style"`
	ZoomCadenceSec float64 `yaml:"zoom_cadence_sec"`
	ZoomRangeMin   float64 `yaml:"zoom_range_min"`
	ZoomRangeMax   float64 `yaml:"zoom_range_max"`
	ProgressBar    bool    `yaml:"progress_bar"`
}

// AutoPresetKey is the catalog fallback used when a batch's preset_key is
// unrecognized or left to the intake-time default.
const AutoPresetKey = "AUTO"

// PresetCatalog resolves a preset_key to its overlay configuration.
type PresetCatalog struct {
	presets map[string]Preset
}

type presetsYAML struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresetCatalog reads path (spec config.PresetsPath) and builds a
// catalog. The AUTO key must be present.
func LoadPresetCatalog(path string) (*PresetCatalog, error) {
	// #nosec G304 -- path comes from trusted deployment configuration, not end users.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadPresetCatalog: %w", err)
	}
	var parsed presetsYAML
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("op=config.LoadPresetCatalog: %w", err)
	}
	catalog := &PresetCatalog{presets: make(map[string]Preset, len(parsed.Presets))}
	for _, p := range parsed.Presets {
		catalog.presets[p.Key] = p
	}
	if _, ok := catalog.presets[AutoPresetKey]; !ok {
		return nil, fmt.Errorf("op=config.LoadPresetCatalog: preset catalog %s has no %s entry", path, AutoPresetKey)
	}
	return catalog, nil
}

// Resolve returns the preset for key, falling back to AUTO when key is
// unrecognized (spec §6: intake accepts preset_key without validating it
// against a closed set).
func (c *PresetCatalog) Resolve(key string) Preset {
	if p, ok := c.presets[key]; ok {
		return p
	}
	return c.presets[AutoPresetKey]
}

// OverlayConfig converts a Preset into the domain.OverlayConfig the
// ComposeAdapter contract expects.
func (p Preset) OverlayConfig() domain.OverlayConfig {
	return domain.OverlayConfig{
		CaptionStyle:   p.CaptionStyle,
		ZoomCadenceSec: p.ZoomCadenceSec,
		ZoomRangeMin:   p.ZoomRangeMin,
		ZoomRangeMax:   p.ZoomRangeMax,
		ProgressBar:    p.ProgressBar,
	}
}
