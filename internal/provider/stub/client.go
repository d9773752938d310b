// Package stub provides fast, deterministic provider adapters used when
// USE_STUB_PROVIDERS=true (the default) and in tests, so the pipeline runs
// end-to-end without live provider credentials.
package stub

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/domain"
)

// Script implements domain.ScriptAdapter deterministically.
type Script struct{}

// NewScript constructs a deterministic script adapter.
func NewScript() *Script { return &Script{} }

// Generate produces a deterministic script, overlay cues, and visual prompt
// for one variant, varying by the variant index so batch members differ.
func (s *Script) Generate(_ domain.Context, intent, presetKey string, mode domain.Mode, i, n int, targetDurationSeconds float64, researchCtx string) (domain.ScriptResult, error) {
	hook := hookForIndex(mode, i)
	spoken := fmt.Sprintf("%s %s This is variant %d of %d for %q.", hook, intentTail(intent), i, n, presetKey)
	overlays := []domain.ScriptOverlay{
		{TSeconds: 0, Text: hook},
		{TSeconds: targetDurationSeconds / 2, Text: "See why it works"},
		{TSeconds: targetDurationSeconds - 2, Text: "Get started today"},
	}
	visual := fmt.Sprintf("Close-up product shot, bright natural light, %s framing, energetic pacing", aspectForIndex(i))
	if researchCtx != "" {
		visual += ", informed by competitor trend analysis"
	}
	return domain.ScriptResult{Spoken: spoken, Overlays: overlays, VisualPrompt: visual}, nil
}

// GenerateImagePrompt produces a deterministic detailed image prompt.
func (s *Script) GenerateImagePrompt(_ domain.Context, intent, presetKey string, i, n int, researchCtx string) (string, error) {
	prompt := fmt.Sprintf("Studio product photo for %q, variant %d/%d, preset %s, soft key light, shallow depth of field",
		intentTail(intent), i, n, presetKey)
	if researchCtx != "" {
		prompt += ", matching the visual language surfaced by trend research"
	}
	return prompt, nil
}

// Voice implements domain.VoiceAdapter deterministically.
type Voice struct{}

// NewVoice constructs a deterministic voice adapter.
func NewVoice() *Voice { return &Voice{} }

// Synthesize returns deterministic audio bytes sized to match the script
// length, at a nominal speaking rate of 150 words/minute.
func (v *Voice) Synthesize(_ domain.Context, spoken string) (domain.VoiceResult, error) {
	words := len(strings.Fields(spoken))
	seconds := float64(words) / 2.5
	if seconds < 1 {
		seconds = 1
	}
	return domain.VoiceResult{AudioBytes: deterministicBytes(spoken, 2048), EstimatedDurationSec: seconds}, nil
}

// Video implements domain.VideoAdapter deterministically, resolving every
// submitted task as completed immediately rather than actually polling.
type Video struct{}

// NewVideo constructs a deterministic video adapter.
func NewVideo() *Video { return &Video{} }

// Submit returns a deterministic task id derived from the prompt.
func (v *Video) Submit(_ domain.Context, prompt string, _ float64, _, _ string, _ []string) (string, error) {
	return "stub-task-" + shortHash(prompt), nil
}

// Status always reports the submitted task as completed with a deterministic URL.
func (v *Video) Status(_ domain.Context, taskID string) (domain.VideoTaskStatus, error) {
	return domain.VideoTaskStatus{State: domain.VideoTaskCompleted, URL: "https://stub.clipforge.local/video/" + taskID + ".mp4"}, nil
}

// Watermark implements domain.WatermarkRemover deterministically.
type Watermark struct{}

// NewWatermark constructs a deterministic watermark remover.
func NewWatermark() *Watermark { return &Watermark{} }

// Remove returns a deterministic watermark-free URL derived from the input.
func (w *Watermark) Remove(_ domain.Context, url string) (string, error) {
	return strings.TrimSuffix(url, ".mp4") + "-nowm.mp4", nil
}

// Compose implements domain.ComposeAdapter deterministically.
type Compose struct{}

// NewCompose constructs a deterministic compositor adapter.
func NewCompose() *Compose { return &Compose{} }

// Compose returns a deterministic final URL derived from the inputs.
func (c *Compose) Compose(_ domain.Context, videoURL, audioURL string, overlays []domain.OnScreenTextEntry, _ domain.OverlayConfig, _ float64) (string, error) {
	return fmt.Sprintf("https://stub.clipforge.local/final/%s.mp4", shortHash(videoURL+audioURL+fmt.Sprint(len(overlays)))), nil
}

// Image implements domain.ImageAdapter deterministically.
type Image struct{}

// NewImage constructs a deterministic image adapter.
func NewImage() *Image { return &Image{} }

// Generate returns a deterministic image URL derived from the prompt.
func (im *Image) Generate(_ domain.Context, prompt, imageType, aspect string) (string, error) {
	return fmt.Sprintf("https://stub.clipforge.local/image/%s-%s-%s.png", shortHash(prompt), imageType, aspect), nil
}

// Research implements domain.ResearchAdapter deterministically.
type Research struct{}

// NewResearch constructs a deterministic research adapter.
func NewResearch() *Research { return &Research{} }

// Search returns a small deterministic set of competitor videos.
func (r *Research) Search(_ domain.Context, query string, minViews int64, category string) ([]domain.ResearchVideo, error) {
	base := minViews
	if base <= 0 {
		base = 10000
	}
	return []domain.ResearchVideo{
		{URL: "https://stub.clipforge.local/trend/1-" + shortHash(query) + ".mp4", Caption: "Top hook for " + query, Views: base * 5, Category: category},
		{URL: "https://stub.clipforge.local/trend/2-" + shortHash(query) + ".mp4", Caption: "Runner-up angle for " + query, Views: base * 3, Category: category},
	}, nil
}

// Analyze returns a deterministic trend summary string.
func (r *Research) Analyze(_ domain.Context, videos []domain.ResearchVideo, query string) (string, error) {
	return fmt.Sprintf("Analyzed %d competitor videos for %q: short punchy hooks in the first 2s outperform slow builds.", len(videos), query), nil
}

func hookForIndex(mode domain.Mode, i int) string {
	switch mode {
	case domain.ModeHookTest:
		hooks := []string{"Stop scrolling.", "Wait, this actually works?", "You're doing this wrong."}
		return hooks[i%len(hooks)]
	case domain.ModeAngleTest:
		angles := []string{"For busy parents:", "For small business owners:", "For first-timers:"}
		return angles[i%len(angles)]
	default:
		return fmt.Sprintf("Take %d:", i)
	}
}

func intentTail(intent string) string {
	intent = strings.TrimSpace(intent)
	if len(intent) > 80 {
		return intent[:80]
	}
	return intent
}

func aspectForIndex(i int) string {
	aspects := []string{"vertical", "square", "tight"}
	return aspects[i%len(aspects)]
}

func deterministicBytes(seed string, n int) []byte {
	h := sha1.Sum([]byte(seed))
	x := binary.BigEndian.Uint32(h[:4])
	out := make([]byte, n)
	for i := range out {
		x = x*1664525 + 1013904223
		out[i] = byte(x >> 24)
	}
	return out
}

func shortHash(s string) string {
	h := sha1.Sum([]byte(s))
	return fmt.Sprintf("%x", h[:6])
}

var _ domain.ScriptAdapter = (*Script)(nil)
var _ domain.VoiceAdapter = (*Voice)(nil)
var _ domain.VideoAdapter = (*Video)(nil)
var _ domain.WatermarkRemover = (*Watermark)(nil)
var _ domain.ComposeAdapter = (*Compose)(nil)
var _ domain.ImageAdapter = (*Image)(nil)
var _ domain.ResearchAdapter = (*Research)(nil)
