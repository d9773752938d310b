package real

import (
	"time"

	"github.com/clipforge/clipforge/internal/adapter/ratelimit"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider"
)

// Compose is a real domain.ComposeAdapter backed by an internal video
// compositor microservice (config.ComposeServiceURL) that overlays
// captions/zoom/progress-bar per the resolved preset.
type Compose struct{ c *caller }

// NewCompose constructs a real compositor adapter.
func NewCompose(cfg config.Config, cb *provider.CircuitBreaker, lim ratelimit.Limiter) *Compose {
	return &Compose{c: newCaller("compose", cfg, cb, lim, 180*time.Second)}
}

type composeRequest struct {
	VideoURL              string                     `json:"video_url"`
	AudioURL               string                     `json:"audio_url"`
	Overlays               []domain.OnScreenTextEntry `json:"overlays"`
	CaptionStyle           string                     `json:"caption_style"`
	ZoomCadenceSec         float64                    `json:"zoom_cadence_sec"`
	ZoomRangeMin           float64                    `json:"zoom_range_min"`
	ZoomRangeMax           float64                    `json:"zoom_range_max"`
	ProgressBar            bool                       `json:"progress_bar"`
	TargetDurationSeconds  float64                    `json:"target_duration_seconds"`
}

type composeResponse struct {
	URL string `json:"url"`
}

// Compose submits the raw video, voiceover, and overlay config to the
// compositor service and returns the final deliverable URL.
func (co *Compose) Compose(ctx domain.Context, videoURL, audioURL string, overlays []domain.OnScreenTextEntry, cfg domain.OverlayConfig, targetDurationSeconds float64) (string, error) {
	req := composeRequest{
		VideoURL: videoURL, AudioURL: audioURL, Overlays: overlays,
		CaptionStyle: cfg.CaptionStyle, ZoomCadenceSec: cfg.ZoomCadenceSec,
		ZoomRangeMin: cfg.ZoomRangeMin, ZoomRangeMax: cfg.ZoomRangeMax,
		ProgressBar: cfg.ProgressBar, TargetDurationSeconds: targetDurationSeconds,
	}
	var resp composeResponse
	if err := co.c.doJSON(ctx, "compose", "POST", co.c.cfg.ComposeServiceURL+"/compose", nil, req, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

var _ domain.ComposeAdapter = (*Compose)(nil)
