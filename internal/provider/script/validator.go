package script

import (
	"fmt"
	"math"
	"strings"

	"github.com/clipforge/clipforge/internal/domain"
)

// IsRefusal does a fast, code-based check for a model declining the request,
// grounded on the teacher's AI-powered refusal detector's fallback path —
// a full AI-judged pass is not worth the extra provider call on the hot path.
// Delegates to domain.IsContentPolicyText, the same vocabulary the video
// adapter's failure-reason classifier uses, so refusal detection stays
// consistent across providers.
func IsRefusal(response string) bool {
	return domain.IsContentPolicyText(response)
}

// Validator enforces script-adapter output invariants (spec §6): overlay
// timestamps stay within [0, targetDurationSeconds], the spoken script is
// non-empty, and refusal responses surface as domain.ErrContentPolicy so
// the worker does not burn retries on a result that will never change.
type Validator struct{}

// NewValidator constructs a script output validator.
func NewValidator() *Validator { return &Validator{} }

// Validate checks and clamps result in place, returning an error for
// un-recoverable problems (refusal, empty script).
func (v *Validator) Validate(result domain.ScriptResult, targetDurationSeconds float64) (domain.ScriptResult, error) {
	if strings.TrimSpace(result.Spoken) == "" {
		return result, fmt.Errorf("%w: script provider returned an empty script", domain.ErrContentPolicy)
	}
	if IsRefusal(result.Spoken) || IsRefusal(result.VisualPrompt) {
		return result, fmt.Errorf("%w: script provider refused the request", domain.ErrContentPolicy)
	}
	result.Spoken = capSpokenWords(result.Spoken, targetDurationSeconds)
	result.Overlays = clampOverlays(result.Overlays, targetDurationSeconds)
	return result, nil
}

// wordBudget returns the hard-cap word count for a target video duration
// (spec §6: voice rate 150 wpm / 2.5 wps). 10s and 15s are the only
// supported target durations and get the spec's exact named caps; other
// durations fall back to the same 2.5 wps rate.
func wordBudget(targetDurationSeconds float64) int {
	switch targetDurationSeconds {
	case 10:
		return 25
	case 15:
		return 37
	default:
		if targetDurationSeconds <= 0 {
			return 25
		}
		return int(math.Round(targetDurationSeconds * 2.5))
	}
}

// capSpokenWords hard-caps the spoken script to the target duration's word
// budget, trimming from the end so the cut never falls mid-sentence-opening.
func capSpokenWords(spoken string, targetDurationSeconds float64) string {
	words := strings.Fields(spoken)
	maxWords := wordBudget(targetDurationSeconds)
	if len(words) <= maxWords {
		return spoken
	}
	return strings.Join(words[:maxWords], " ")
}

// ValidateImagePrompt checks a detailed image prompt for refusal and emptiness.
func (v *Validator) ValidateImagePrompt(prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: image prompt provider returned empty output", domain.ErrContentPolicy)
	}
	if IsRefusal(prompt) {
		return "", fmt.Errorf("%w: image prompt provider refused the request", domain.ErrContentPolicy)
	}
	return prompt, nil
}

// maxOverlaysPerClip and overlayLatestStartOffsetSeconds are the spec §6
// overlay constraints ("≤5 overlays per clip", "none beginning later than
// target_duration − 3 s").
const maxOverlaysPerClip = 5
const overlayLatestStartOffsetSeconds = 3.0

func clampOverlays(overlays []domain.ScriptOverlay, targetDurationSeconds float64) []domain.ScriptOverlay {
	latestStart := targetDurationSeconds - overlayLatestStartOffsetSeconds
	clamped := make([]domain.ScriptOverlay, 0, len(overlays))
	for _, o := range overlays {
		if strings.TrimSpace(o.Text) == "" {
			continue
		}
		if o.TSeconds < 0 {
			o.TSeconds = 0
		}
		if targetDurationSeconds > 0 && o.TSeconds > targetDurationSeconds {
			o.TSeconds = targetDurationSeconds
		}
		if targetDurationSeconds > 0 && latestStart > 0 && o.TSeconds > latestStart {
			o.TSeconds = latestStart
		}
		clamped = append(clamped, o)
		if len(clamped) == maxOverlaysPerClip {
			break
		}
	}
	return clamped
}
