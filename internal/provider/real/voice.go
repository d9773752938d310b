package real

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/adapter/ratelimit"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider"
)

// Voice is a real domain.VoiceAdapter backed by a text-to-speech API
// (ElevenLabs-compatible by default per config.VoiceProviderBaseURL).
type Voice struct {
	c      *caller
	apiKey string
}

// NewVoice constructs a real voice adapter.
func NewVoice(cfg config.Config, cb *provider.CircuitBreaker, lim ratelimit.Limiter) *Voice {
	return &Voice{c: newCaller("voice", cfg, cb, lim, 60*time.Second), apiKey: cfg.VoiceProviderAPIKey}
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

type synthesizeResponse struct {
	AudioBase64    string  `json:"audio_base64"`
	DurationSecond float64 `json:"duration_seconds"`
}

// Synthesize calls the TTS endpoint and decodes the base64 audio payload.
func (v *Voice) Synthesize(ctx domain.Context, spoken string) (domain.VoiceResult, error) {
	if strings.TrimSpace(v.apiKey) == "" {
		return domain.VoiceResult{}, fmt.Errorf("%w: VOICE_PROVIDER_API_KEY missing", domain.ErrInvalidArgument)
	}
	var resp synthesizeResponse
	headers := map[string]string{"xi-api-key": v.apiKey}
	if err := v.c.doJSON(ctx, "synthesize", "POST", v.c.cfg.VoiceProviderBaseURL+"/text-to-speech", headers, synthesizeRequest{Text: spoken}, &resp); err != nil {
		return domain.VoiceResult{}, err
	}
	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return domain.VoiceResult{}, fmt.Errorf("op=real.Voice.Synthesize decode: %w", err)
	}
	dur := resp.DurationSecond
	if dur <= 0 {
		dur = float64(len(strings.Fields(spoken))) / 2.5
	}
	return domain.VoiceResult{AudioBytes: audio, EstimatedDurationSec: dur}, nil
}

var _ domain.VoiceAdapter = (*Voice)(nil)
