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

// Video is a real domain.VideoAdapter that dispatches to Sora or Kling
// depending on generationMode ("sora" or "kling"), per spec §4.4's
// per-batch video_service selection.
type Video struct {
	sora  *caller
	kling *caller

	soraKey  string
	klingKey string
	soraURL  string
	klingURL string
}

// NewVideo constructs a real video adapter with one circuit breaker/caller
// per upstream service, since Sora and Kling fail independently.
func NewVideo(cfg config.Config, cbm *provider.Manager, lim ratelimit.Limiter) *Video {
	breakerCfg := func(name string) *provider.CircuitBreaker {
		return cbm.GetOrCreate(name, cfg.BreakerMaxFailures, cfg.BreakerTimeout)
	}
	return &Video{
		sora:     newCaller("sora", cfg, breakerCfg("sora"), lim, 120*time.Second),
		kling:    newCaller("kling", cfg, breakerCfg("kling"), lim, 120*time.Second),
		soraKey:  cfg.SoraAPIKey,
		klingKey: cfg.KlingAPIKey,
		soraURL:  cfg.SoraBaseURL,
		klingURL: cfg.KlingBaseURL,
	}
}

type videoSubmitRequest struct {
	Prompt          string   `json:"prompt"`
	DurationSeconds float64  `json:"duration_seconds"`
	Aspect          string   `json:"aspect"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

type videoSubmitResponse struct {
	TaskID string `json:"task_id"`
}

// Submit dispatches a text-to-video generation request to the provider
// named by generationMode, returning its task id unprefixed except for a
// provider tag so Status can route the poll correctly.
func (v *Video) Submit(ctx domain.Context, prompt string, durationSeconds float64, aspect, generationMode string, refImages []string) (string, error) {
	c, key, baseURL, tag, err := v.resolve(generationMode)
	if err != nil {
		return "", err
	}
	var resp videoSubmitResponse
	headers := map[string]string{"Authorization": "Bearer " + key}
	req := videoSubmitRequest{Prompt: prompt, DurationSeconds: durationSeconds, Aspect: aspect, ReferenceImages: refImages}
	if err := c.doJSON(ctx, "submit", "POST", baseURL+"/videos/generations", headers, req, &resp); err != nil {
		return "", err
	}
	return tag + ":" + resp.TaskID, nil
}

type videoStatusResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Status polls the provider encoded in taskID's prefix.
func (v *Video) Status(ctx domain.Context, taskID string) (domain.VideoTaskStatus, error) {
	tag, id, ok := strings.Cut(taskID, ":")
	if !ok {
		return domain.VideoTaskStatus{}, fmt.Errorf("%w: malformed video task id %q", domain.ErrInvalidArgument, taskID)
	}
	c, key, baseURL, _, err := v.resolve(tag)
	if err != nil {
		return domain.VideoTaskStatus{}, err
	}
	var resp videoStatusResponse
	headers := map[string]string{"Authorization": "Bearer " + key}
	if err := c.doJSON(ctx, "status", "GET", baseURL+"/videos/generations/"+id, headers, nil, &resp); err != nil {
		return domain.VideoTaskStatus{}, err
	}
	return domain.VideoTaskStatus{State: domain.VideoTaskState(resp.Status), URL: resp.URL, Reason: resp.Reason}, nil
}

func (v *Video) resolve(generationMode string) (*caller, string, string, string, error) {
	switch strings.ToLower(generationMode) {
	case "", "sora":
		return v.sora, v.soraKey, v.soraURL, "sora", nil
	case "kling":
		return v.kling, v.klingKey, v.klingURL, "kling", nil
	default:
		return nil, "", "", "", fmt.Errorf("%w: unknown video generation mode %q", domain.ErrInvalidArgument, generationMode)
	}
}

var _ domain.VideoAdapter = (*Video)(nil)
