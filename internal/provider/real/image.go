package real

import (
	"fmt"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/adapter/ratelimit"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
	"github.com/clipforge/clipforge/internal/provider"
)

// Image is a real domain.ImageAdapter backed by an OpenAI-compatible image
// generation endpoint (config.ImageProviderBaseURL).
type Image struct {
	c      *caller
	apiKey string
}

// NewImage constructs a real image adapter.
func NewImage(cfg config.Config, cb *provider.CircuitBreaker, lim ratelimit.Limiter) *Image {
	return &Image{c: newCaller("image", cfg, cb, lim, 90*time.Second), apiKey: cfg.ImageProviderAPIKey}
}

type imageGenerateRequest struct {
	Prompt string `json:"prompt"`
	Size   string `json:"size"`
}

type imageGenerateResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate calls the image generation endpoint and returns the first
// result's URL.
func (im *Image) Generate(ctx domain.Context, prompt, imageType, aspect string) (string, error) {
	if strings.TrimSpace(im.apiKey) == "" {
		return "", fmt.Errorf("%w: IMAGE_PROVIDER_API_KEY missing", domain.ErrInvalidArgument)
	}
	req := imageGenerateRequest{Prompt: prompt, Size: sizeForAspect(aspect)}
	var resp imageGenerateResponse
	headers := map[string]string{"Authorization": "Bearer " + im.apiKey}
	if err := im.c.doJSON(ctx, "generate:"+imageType, "POST", im.c.cfg.ImageProviderBaseURL+"/images/generations", headers, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("%w: image provider returned no results", domain.ErrUpstreamTimeout)
	}
	return resp.Data[0].URL, nil
}

func sizeForAspect(aspect string) string {
	switch aspect {
	case "square":
		return "1024x1024"
	case "vertical":
		return "1024x1792"
	default:
		return "1792x1024"
	}
}

var _ domain.ImageAdapter = (*Image)(nil)
