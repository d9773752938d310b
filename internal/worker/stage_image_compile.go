package worker

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/domain"
)

// handleImageCompile drives the image pipeline's compile stage (spec
// §4.2.2): one job per batch, asking the script provider for a detailed
// image prompt (not a spoken script) per variant.
func (w *Worker) handleImageCompile(ctx domain.Context, job domain.Job) (string, error) {
	batch, err := w.d.Batches.Get(ctx, job.BatchID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleImageCompile.get_batch: %w", err)
	}
	if batch.Status.IsTerminal() {
		return "", nil
	}

	if batch.NeedsResearch && strings.TrimSpace(batch.TrendAnalysis) == "" {
		if err := w.d.Batches.UpdateStatus(ctx, batch.ID, domain.BatchResearching, ""); err != nil {
			return "", fmt.Errorf("op=worker.handleImageCompile.researching: %w", err)
		}
		if err := w.enqueueNext(ctx, batch.ID, nil, domain.JobResearch, nil); err != nil {
			return "", err
		}
		return "", nil
	}

	if batch.Status != domain.BatchRunning {
		if err := w.d.Batches.UpdateStatus(ctx, batch.ID, domain.BatchRunning, ""); err != nil {
			return "", fmt.Errorf("op=worker.handleImageCompile.running: %w", err)
		}
	}

	clips, err := w.d.Clips.ListByBatch(ctx, batch.ID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleImageCompile.list_clips: %w", err)
	}

	for i, clip := range clips {
		if clip.Status.IsTerminal() {
			continue
		}
		if strings.TrimSpace(clip.ImagePrompt) == "" {
			prompt, err := w.d.Script.GenerateImagePrompt(ctx, batch.IntentText, batch.PresetKey, i, len(clips), batch.TrendAnalysis)
			if err != nil {
				return "", fmt.Errorf("op=worker.handleImageCompile.generate[%s]: %w", clip.ID, err)
			}
			patch := domain.ClipPatch{ImagePrompt: strPtr(prompt)}
			if _, err := w.advanceOrSkip(ctx, clip.ID, domain.ClipPlanned, domain.ClipScripting, patch); err != nil {
				return "", err
			}
		}
		if err := w.enqueueNext(ctx, batch.ID, &clip.ID, domain.JobImage, nil); err != nil {
			return "", err
		}
	}
	return "script", nil
}
