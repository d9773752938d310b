package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validPresetsYAML = `
presets:
  - key: AUTO
    caption_style: bold
    zoom_cadence_sec: 3
    zoom_range_min: 1.0
    zoom_range_max: 1.1
    progress_bar: true
  - key: product_hero
    caption_style: minimal
    zoom_cadence_sec: 4
    zoom_range_min: 1.0
    zoom_range_max: 1.05
    progress_bar: false
`

func writePresetsFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestLoadPresetCatalog_ResolvesKnownAndUnknownKeys(t *testing.T) {
	path := writePresetsFile(t, validPresetsYAML)
	cat, err := LoadPresetCatalog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	known := cat.Resolve("product_hero")
	if known.CaptionStyle != "minimal" {
		t.Fatalf("expected known preset to resolve directly, got %+v", known)
	}
	unknown := cat.Resolve("does_not_exist")
	if unknown.Key != AutoPresetKey {
		t.Fatalf("expected unknown preset_key to fall back to AUTO, got %+v", unknown)
	}
}

func TestLoadPresetCatalog_MissingFile(t *testing.T) {
	if _, err := LoadPresetCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestLoadPresetCatalog_RequiresAutoEntry(t *testing.T) {
	path := writePresetsFile(t, `
presets:
  - key: product_hero
    caption_style: minimal
`)
	if _, err := LoadPresetCatalog(path); err == nil {
		t.Fatal("expected an error when the catalog has no AUTO entry")
	}
}

func TestPreset_OverlayConfig(t *testing.T) {
	path := writePresetsFile(t, validPresetsYAML)
	cat, err := LoadPresetCatalog(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := cat.Resolve("product_hero")
	cfg := p.OverlayConfig()
	if cfg.CaptionStyle != "minimal" || cfg.ZoomCadenceSec != 4 {
		t.Fatalf("unexpected overlay config: %+v", cfg)
	}
}
