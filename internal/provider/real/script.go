package real

import (
	"fmt"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/adapter/ai/freemodels"
	"github.com/clipforge/clipforge/internal/adapter/ai/tokencount"
	"github.com/clipforge/clipforge/internal/adapter/ratelimit"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider"
	"github.com/clipforge/clipforge/pkg/textx"
)

// Script is a real domain.ScriptAdapter backed by an OpenAI-compatible chat
// completions endpoint (OpenRouter by default per config.ScriptProviderBaseURL).
// When no fixed model is configured, it rotates across OpenRouter's free
// model catalog via freeModels rather than hardcoding one model.
type Script struct {
	c          *caller
	apiKey     string
	model      string
	freeModels *freemodels.Service
}

// NewScript constructs a real script adapter.
func NewScript(cfg config.Config, cb *provider.CircuitBreaker, lim ratelimit.Limiter) *Script {
	s := &Script{
		c:      newCaller("script", cfg, cb, lim, 60*time.Second),
		apiKey: cfg.ScriptProviderAPIKey,
		model:  cfg.ScriptProviderModel,
	}
	if isAutoModel(s.model) {
		s.freeModels = freemodels.New(cfg.ScriptProviderAPIKey, cfg.ScriptProviderBaseURL)
	}
	return s
}

func isAutoModel(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return m == "" || m == "auto"
}

func (s *Script) resolveModel(ctx domain.Context) string {
	if s.freeModels == nil {
		return s.model
	}
	model, err := s.freeModels.GetRandomFreeModel(ctx)
	if err != nil || model == "" {
		return s.model
	}
	return model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (s *Script) chat(ctx domain.Context, operation, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return "", fmt.Errorf("%w: SCRIPT_PROVIDER_API_KEY missing", domain.ErrInvalidArgument)
	}
	model := s.resolveModel(ctx)
	req := chatRequest{
		Model:       model,
		Temperature: 0.7,
		MaxTokens:   maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}
	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + s.apiKey}
	if err := s.c.doJSON(ctx, operation, "POST", s.c.cfg.ScriptProviderBaseURL+"/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: script provider returned no choices", domain.ErrUpstreamTimeout)
	}
	content := textx.SanitizeText(resp.Choices[0].Message.Content)
	if usage, err := tokencount.CalculateUsageDefault(systemPrompt, userPrompt, content, model, "script"); err == nil {
		_ = usage // token accounting surfaced via provider call metrics, not separately tracked
	}
	return content, nil
}

// Generate produces the spoken script, overlay cues, and visual prompt for
// one variant by asking the model for a structured JSON response.
func (s *Script) Generate(ctx domain.Context, intent, presetKey string, mode domain.Mode, i, n int, targetDurationSeconds float64, researchCtx string) (domain.ScriptResult, error) {
	sys := "You write short-form vertical video ad scripts. Respond ONLY with compact JSON: " +
		`{"spoken":"...","overlays":[{"t":0,"text":"..."}],"visual_prompt":"..."}.`
	user := fmt.Sprintf(
		"Product/offer intent: %s\nVariation mode: %s\nVariant %d of %d\nPreset: %s\nTarget duration seconds: %.1f\n",
		intent, mode, i, n, presetKey, targetDurationSeconds)
	if researchCtx != "" {
		user += "Competitor trend research:\n" + researchCtx + "\n"
	}
	raw, err := s.chat(ctx, "generate_script", sys, user, 600)
	if err != nil {
		return domain.ScriptResult{}, err
	}
	return parseScriptJSON(raw)
}

// GenerateImagePrompt asks the model for a single detailed still-image prompt.
func (s *Script) GenerateImagePrompt(ctx domain.Context, intent, presetKey string, i, n int, researchCtx string) (string, error) {
	sys := "You write detailed prompts for a text-to-image model generating product ad stills. Respond with the prompt text only, no preamble."
	user := fmt.Sprintf("Product/offer intent: %s\nVariant %d of %d\nPreset: %s\n", intent, i, n, presetKey)
	if researchCtx != "" {
		user += "Competitor trend research:\n" + researchCtx + "\n"
	}
	raw, err := s.chat(ctx, "generate_image_prompt", sys, user, 200)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

var _ domain.ScriptAdapter = (*Script)(nil)
