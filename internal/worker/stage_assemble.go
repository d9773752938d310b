package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clipforge/clipforge/internal/domain"
)

const composeCallTimeout = 30 * time.Second

// handleAssemble drives the assemble stage (spec §4.2.1): one job per
// clip. Resolves the clip's preset to an overlay configuration, submits a
// compose job, and on success uploads the final MP4 and marks the clip
// ready.
func (w *Worker) handleAssemble(ctx domain.Context, job domain.Job) (string, error) {
	if job.ClipID == nil {
		return "", fmt.Errorf("%w: assemble job missing clip_id", domain.ErrProviderPermanent)
	}
	clip, err := w.d.Clips.Get(ctx, *job.ClipID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleAssemble.get_clip: %w", err)
	}
	if clip.Status.IsTerminal() {
		return "", nil
	}

	if strings.TrimSpace(clip.FinalURL) == "" {
		preset := w.d.Presets.Resolve(clip.PresetKey)
		cctx, cancel := context.WithTimeout(ctx, composeCallTimeout)
		finalSourceURL, err := w.d.Compose.Compose(cctx, clip.RawVideoURL, clip.VoiceURL, clip.OnScreenText, preset.OverlayConfig(), w.d.Cfg.TargetDurationSeconds)
		cancel()
		if err != nil {
			return "", fmt.Errorf("op=worker.handleAssemble.compose[%s]: %w", clip.ID, err)
		}

		patch := domain.ClipPatch{}
		if aborted, err := w.advanceOrSkip(ctx, clip.ID, clip.Status, domain.ClipAssembling, patch); err != nil {
			return "", err
		} else if aborted {
			return "", nil
		}

		data, contentType, err := fetchBytes(ctx, finalSourceURL)
		if err != nil {
			return "", fmt.Errorf("op=worker.handleAssemble.fetch[%s]: %w", clip.ID, err)
		}
		if contentType == "" {
			contentType = "video/mp4"
		}
		finalURL, err := w.d.Storage.Put(ctx, "final", clip.ID+".mp4", data, contentType)
		if err != nil {
			return "", fmt.Errorf("op=worker.handleAssemble.put[%s]: %w", clip.ID, err)
		}

		if aborted, err := w.advanceOrSkip(ctx, clip.ID, domain.ClipAssembling, domain.ClipReady, domain.ClipPatch{FinalURL: strPtr(finalURL)}); err != nil {
			return "", err
		} else if aborted {
			return "", nil
		}
	}
	return "compositor", nil
}
