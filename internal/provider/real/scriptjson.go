package real

import (
	"encoding/json"
	"fmt"

	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider/script"
)

var cleaner = script.NewCleaner()

// parseScriptJSON extracts and decodes the {"spoken":...,"overlays":...,
// "visual_prompt":...} object a script model is instructed to return,
// tolerating surrounding prose or markdown code fences.
func parseScriptJSON(raw string) (domain.ScriptResult, error) {
	cleaned := cleaner.Clean(raw)
	if cleaned == "" || !cleaner.IsValidJSON(cleaned) {
		return domain.ScriptResult{}, fmt.Errorf("%w: script provider response was not valid JSON", domain.ErrUpstreamTimeout)
	}
	var parsed struct {
		Spoken  string `json:"spoken"`
		Overlay []struct {
			T    float64 `json:"t"`
			Text string  `json:"text"`
		} `json:"overlays"`
		VisualPrompt string `json:"visual_prompt"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return domain.ScriptResult{}, fmt.Errorf("op=real.parseScriptJSON: %w", err)
	}
	overlays := make([]domain.ScriptOverlay, 0, len(parsed.Overlay))
	for _, o := range parsed.Overlay {
		overlays = append(overlays, domain.ScriptOverlay{TSeconds: o.T, Text: o.Text})
	}
	return domain.ScriptResult{Spoken: parsed.Spoken, Overlays: overlays, VisualPrompt: parsed.VisualPrompt}, nil
}
