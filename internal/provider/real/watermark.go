package real

import (
	"time"

	"github.com/clipforge/clipforge/internal/adapter/ratelimit"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider"
)

// Watermark is a real domain.WatermarkRemover backed by an internal
// watermark-removal microservice (config.WatermarkRemoverURL).
type Watermark struct{ c *caller }

// NewWatermark constructs a real watermark remover adapter.
func NewWatermark(cfg config.Config, cb *provider.CircuitBreaker, lim ratelimit.Limiter) *Watermark {
	return &Watermark{c: newCaller("watermark", cfg, cb, lim, 90*time.Second)}
}

type watermarkRequest struct {
	URL string `json:"url"`
}

type watermarkResponse struct {
	URL string `json:"url"`
}

// Remove submits url to the watermark-removal service and returns the
// clean URL.
func (w *Watermark) Remove(ctx domain.Context, url string) (string, error) {
	var resp watermarkResponse
	if err := w.c.doJSON(ctx, "remove", "POST", w.c.cfg.WatermarkRemoverURL+"/remove", nil, watermarkRequest{URL: url}, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

var _ domain.WatermarkRemover = (*Watermark)(nil)
