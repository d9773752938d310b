package worker

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/domain"
)

// handleCompile drives the compile stage (spec §4.2.1): one job per batch,
// fanning the intent/preset/mode out into a script per variant. When the
// batch needs research and none has run yet, it defers to the research
// stage first (expansion: spec.md declares the `researching` batch status
// and the `research` job type but never wires them to an operation).
func (w *Worker) handleCompile(ctx domain.Context, job domain.Job) (string, error) {
	batch, err := w.d.Batches.Get(ctx, job.BatchID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleCompile.get_batch: %w", err)
	}
	if batch.Status.IsTerminal() {
		return "", nil
	}

	if batch.NeedsResearch && strings.TrimSpace(batch.TrendAnalysis) == "" {
		if err := w.d.Batches.UpdateStatus(ctx, batch.ID, domain.BatchResearching, ""); err != nil {
			return "", fmt.Errorf("op=worker.handleCompile.researching: %w", err)
		}
		if err := w.enqueueNext(ctx, batch.ID, nil, domain.JobResearch, nil); err != nil {
			return "", err
		}
		return "", nil
	}

	if batch.Status != domain.BatchRunning {
		if err := w.d.Batches.UpdateStatus(ctx, batch.ID, domain.BatchRunning, ""); err != nil {
			return "", fmt.Errorf("op=worker.handleCompile.running: %w", err)
		}
	}

	clips, err := w.d.Clips.ListByBatch(ctx, batch.ID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleCompile.list_clips: %w", err)
	}

	for i, clip := range clips {
		if clip.Status.IsTerminal() {
			continue
		}
		if strings.TrimSpace(clip.ScriptSpoken) == "" {
			result, err := w.d.Script.Generate(ctx, batch.IntentText, batch.PresetKey, batch.Mode, i, len(clips), w.d.Cfg.TargetDurationSeconds, batch.TrendAnalysis)
			if err != nil {
				return "", fmt.Errorf("op=worker.handleCompile.generate[%s]: %w", clip.ID, err)
			}
			overlays := toOnScreenText(result.Overlays)
			patch := domain.ClipPatch{
				ScriptSpoken: strPtr(result.Spoken),
				OnScreenText: &overlays,
				SoraPrompt:   strPtr(result.VisualPrompt),
			}
			if _, err := w.advanceOrSkip(ctx, clip.ID, domain.ClipPlanned, domain.ClipScripting, patch); err != nil {
				return "", err
			}
		}
		if err := w.enqueueNext(ctx, batch.ID, &clip.ID, domain.JobTTS, nil); err != nil {
			return "", err
		}
	}
	return "script", nil
}
