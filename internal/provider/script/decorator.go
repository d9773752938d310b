package script

import "github.com/clipforge/clipforge/internal/domain"

// Validated wraps any domain.ScriptAdapter with output validation, so both
// the stub and real adapters get identical refusal-detection and
// overlay-timing clamping without duplicating the checks in each.
type Validated struct {
	inner domain.ScriptAdapter
	v     *Validator
}

// NewValidated wraps inner with the standard script output validator.
func NewValidated(inner domain.ScriptAdapter) *Validated {
	return &Validated{inner: inner, v: NewValidator()}
}

// Generate delegates to inner and validates the result.
func (d *Validated) Generate(ctx domain.Context, intent, presetKey string, mode domain.Mode, i, n int, targetDurationSeconds float64, researchCtx string) (domain.ScriptResult, error) {
	result, err := d.inner.Generate(ctx, intent, presetKey, mode, i, n, targetDurationSeconds, researchCtx)
	if err != nil {
		return domain.ScriptResult{}, err
	}
	return d.v.Validate(result, targetDurationSeconds)
}

// GenerateImagePrompt delegates to inner and validates the result.
func (d *Validated) GenerateImagePrompt(ctx domain.Context, intent, presetKey string, i, n int, researchCtx string) (string, error) {
	prompt, err := d.inner.GenerateImagePrompt(ctx, intent, presetKey, i, n, researchCtx)
	if err != nil {
		return "", err
	}
	return d.v.ValidateImagePrompt(prompt)
}

var _ domain.ScriptAdapter = (*Validated)(nil)
