package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/domain"
)

const imageCallTimeout = 30 * time.Second

// handleImage drives the image pipeline's terminal stage (spec §4.2.2):
// calls the image provider with the clip's image_prompt, persists
// image_url (also used as final_url, since images skip assembly), and
// marks the clip ready.
func (w *Worker) handleImage(ctx domain.Context, job domain.Job) (string, error) {
	if job.ClipID == nil {
		return "", fmt.Errorf("%w: image job missing clip_id", domain.ErrProviderPermanent)
	}
	clip, err := w.d.Clips.Get(ctx, *job.ClipID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleImage.get_clip: %w", err)
	}
	if clip.Status.IsTerminal() {
		return "", nil
	}

	if strings.TrimSpace(clip.ImageURL) == "" {
		if aborted, err := w.advanceOrSkip(ctx, clip.ID, clip.Status, domain.ClipGenerating, domain.ClipPatch{}); err != nil {
			return "", err
		} else if aborted {
			return "", nil
		}

		ictx, cancel := context.WithTimeout(ctx, imageCallTimeout)
		sourceURL, err := w.d.Image.Generate(ictx, clip.ImagePrompt, clip.PresetKey, w.d.Cfg.DefaultAspect)
		cancel()
		if err != nil {
			return "", fmt.Errorf("op=worker.handleImage.generate[%s]: %w", clip.ID, err)
		}

		data, contentType, err := fetchBytes(ctx, sourceURL)
		if err != nil {
			return "", fmt.Errorf("op=worker.handleImage.fetch[%s]: %w", clip.ID, err)
		}
		if contentType == "" {
			contentType = "image/png"
		}
		imageURL, err := w.d.Storage.Put(ctx, "images", clip.ID+".png", data, contentType)
		if err != nil {
			return "", fmt.Errorf("op=worker.handleImage.put[%s]: %w", clip.ID, err)
		}

		patch := domain.ClipPatch{ImageURL: strPtr(imageURL), FinalURL: strPtr(imageURL)}
		if aborted, err := w.advanceOrSkip(ctx, clip.ID, domain.ClipGenerating, domain.ClipReady, patch); err != nil {
			return "", err
		} else if aborted {
			return "", nil
		}
	}
	return "image", nil
}
