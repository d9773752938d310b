package script

import (
	"errors"
	"testing"

	"github.com/clipforge/clipforge/internal/domain"
)

func TestIsRefusal(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"Sure, here's your script: ...", false},
		{"I'm sorry, I can't help with that.", true},
		{"As an AI, I must decline this request.", true},
		{"", false},
	}
	for _, c := range cases {
		if got := IsRefusal(c.in); got != c.want {
			t.Errorf("IsRefusal(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestValidator_Validate_EmptyScript(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate(domain.ScriptResult{Spoken: "   "}, 15)
	if !errors.Is(err, domain.ErrContentPolicy) {
		t.Fatalf("want ErrContentPolicy, got %v", err)
	}
}

func TestValidator_Validate_Refusal(t *testing.T) {
	v := NewValidator()
	_, err := v.Validate(domain.ScriptResult{Spoken: "I'm sorry, I cannot do that."}, 15)
	if !errors.Is(err, domain.ErrContentPolicy) {
		t.Fatalf("want ErrContentPolicy, got %v", err)
	}
}

func TestValidator_Validate_CapsWordsToTargetDuration(t *testing.T) {
	v := NewValidator()
	spoken := ""
	for i := 0; i < 60; i++ {
		spoken += "word "
	}
	result, err := v.Validate(domain.ScriptResult{Spoken: spoken}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	words := 0
	for _, r := range result.Spoken {
		if r == ' ' {
			words++
		}
	}
	if words > 25 {
		t.Fatalf("expected spoken script capped to 25 words for 10s target, got %d words", words)
	}
}

func TestValidator_Validate_ClampsOverlays(t *testing.T) {
	v := NewValidator()
	overlays := []domain.ScriptOverlay{
		{TSeconds: -1, Text: "intro"},
		{TSeconds: 20, Text: "late"},
		{TSeconds: 5, Text: "mid"},
		{TSeconds: 1, Text: "a"},
		{TSeconds: 2, Text: "b"},
		{TSeconds: 3, Text: "c"},
		{TSeconds: 4, Text: "overflow"},
	}
	result, err := v.Validate(domain.ScriptResult{Spoken: "hello there", Overlays: overlays}, 15)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Overlays) > maxOverlaysPerClip {
		t.Fatalf("expected at most %d overlays, got %d", maxOverlaysPerClip, len(result.Overlays))
	}
	for _, o := range result.Overlays {
		if o.TSeconds < 0 || o.TSeconds > 15-overlayLatestStartOffsetSeconds {
			t.Fatalf("overlay timestamp %v out of clamped range", o.TSeconds)
		}
	}
}

func TestValidator_ValidateImagePrompt(t *testing.T) {
	v := NewValidator()
	if _, err := v.ValidateImagePrompt("   "); !errors.Is(err, domain.ErrContentPolicy) {
		t.Fatalf("want ErrContentPolicy for empty prompt, got %v", err)
	}
	if _, err := v.ValidateImagePrompt("I cannot generate that image."); !errors.Is(err, domain.ErrContentPolicy) {
		t.Fatalf("want ErrContentPolicy for refusal, got %v", err)
	}
	got, err := v.ValidateImagePrompt("  a sleek product still life  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a sleek product still life" {
		t.Fatalf("expected trimmed prompt, got %q", got)
	}
}

func TestValidated_Generate_PropagatesInnerError(t *testing.T) {
	inner := fakeScriptAdapter{genErr: errors.New("boom")}
	d := NewValidated(inner)
	_, err := d.Generate(nil, "intent", "preset", domain.ModeHookTest, 1, 4, 15, "") //nolint:staticcheck
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestValidated_Generate_ValidatesOutput(t *testing.T) {
	inner := fakeScriptAdapter{result: domain.ScriptResult{Spoken: "I'm sorry, I can't do that."}}
	d := NewValidated(inner)
	_, err := d.Generate(nil, "intent", "preset", domain.ModeHookTest, 1, 4, 15, "") //nolint:staticcheck
	if !errors.Is(err, domain.ErrContentPolicy) {
		t.Fatalf("want ErrContentPolicy, got %v", err)
	}
}

type fakeScriptAdapter struct {
	result    domain.ScriptResult
	genErr    error
	prompt    string
	promptErr error
}

func (f fakeScriptAdapter) Generate(_ domain.Context, _, _ string, _ domain.Mode, _, _ int, _ float64, _ string) (domain.ScriptResult, error) {
	return f.result, f.genErr
}

func (f fakeScriptAdapter) GenerateImagePrompt(_ domain.Context, _, _ string, _, _ int, _ string) (string, error) {
	return f.prompt, f.promptErr
}

var _ domain.ScriptAdapter = fakeScriptAdapter{}
