package stub

import (
	"strings"
	"testing"

	"github.com/clipforge/clipforge/internal/domain"
)

func TestScript_Generate_VariesByIndex(t *testing.T) {
	s := NewScript()
	a, err := s.Generate(nil, "a great offer", "preset-a", domain.ModeHookTest, 0, 3, 15, "") //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := s.Generate(nil, "a great offer", "preset-a", domain.ModeHookTest, 1, 3, 15, "") //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Spoken == b.Spoken {
		t.Fatalf("expected variants to differ by index, both got %q", a.Spoken)
	}
	if len(a.Overlays) == 0 {
		t.Fatal("expected at least one overlay")
	}
}

func TestScript_Generate_Deterministic(t *testing.T) {
	s := NewScript()
	a, _ := s.Generate(nil, "a great offer", "preset-a", domain.ModeHookTest, 0, 3, 15, "") //nolint:staticcheck
	b, _ := s.Generate(nil, "a great offer", "preset-a", domain.ModeHookTest, 0, 3, 15, "") //nolint:staticcheck
	if a.Spoken != b.Spoken {
		t.Fatalf("expected identical inputs to produce identical output")
	}
}

func TestVoice_Synthesize_DurationScalesWithWordCount(t *testing.T) {
	v := NewVoice()
	short, err := v.Synthesize(nil, "hi") //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long, err := v.Synthesize(nil, strings.Repeat("word ", 50)) //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if long.EstimatedDurationSec <= short.EstimatedDurationSec {
		t.Fatalf("expected longer script to take longer: short=%v long=%v", short.EstimatedDurationSec, long.EstimatedDurationSec)
	}
	if len(short.AudioBytes) == 0 {
		t.Fatal("expected non-empty audio bytes")
	}
}

func TestVideo_SubmitAndStatus(t *testing.T) {
	v := NewVideo()
	taskID, err := v.Submit(nil, "a vertical ad clip", 15, "sora", "9:16", nil) //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status, err := v.Status(nil, taskID) //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.State != domain.VideoTaskCompleted {
		t.Fatalf("expected stub video to resolve immediately, got %v", status.State)
	}
	if status.URL == "" {
		t.Fatal("expected a URL on completion")
	}
}

func TestWatermark_Remove(t *testing.T) {
	w := NewWatermark()
	out, err := w.Remove(nil, "https://x.test/video.mp4") //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "https://x.test/video.mp4" {
		t.Fatal("expected the URL to change")
	}
}

func TestCompose_Compose(t *testing.T) {
	c := NewCompose()
	overlays := []domain.OnScreenTextEntry{{TSeconds: 0, Text: "hello"}}
	out, err := c.Compose(nil, "video-url", "audio-url", overlays, domain.OverlayConfig{}, 15) //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "" {
		t.Fatal("expected a non-empty composed URL")
	}
}

func TestImage_Generate(t *testing.T) {
	im := NewImage()
	out, err := im.Generate(nil, "a product photo", "hero", "1:1") //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == "" {
		t.Fatal("expected a non-empty image URL")
	}
}

func TestResearch_SearchAndAnalyze(t *testing.T) {
	r := NewResearch()
	videos, err := r.Search(nil, "protein bars", 0, "food") //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(videos) == 0 {
		t.Fatal("expected at least one result")
	}
	summary, err := r.Analyze(nil, videos, "protein bars") //nolint:staticcheck
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary == "" {
		t.Fatal("expected a non-empty summary")
	}
}
