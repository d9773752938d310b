package worker

import (
	"fmt"

	"github.com/clipforge/clipforge/internal/domain"
)

// handleResearch drives the research stage (expansion: spec.md declares
// the ResearchAdapter and the `research` job type but never wires a
// handler to them). Searches and analyzes trend data, stores the result
// as opaque JSON on the batch, then re-enqueues the batch's compile stage
// now that trend_analysis is populated.
func (w *Worker) handleResearch(ctx domain.Context, job domain.Job) (string, error) {
	batch, err := w.d.Batches.Get(ctx, job.BatchID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleResearch.get_batch: %w", err)
	}
	if batch.Status.IsTerminal() {
		return "", nil
	}

	videos, err := w.d.Research.Search(ctx, batch.IntentText, w.d.Cfg.ResearchMinViews, batch.PresetKey)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleResearch.search: %w", err)
	}
	analysis, err := w.d.Research.Analyze(ctx, videos, batch.IntentText)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleResearch.analyze: %w", err)
	}
	if err := w.d.Batches.SetTrendAnalysis(ctx, batch.ID, analysis); err != nil {
		return "", fmt.Errorf("op=worker.handleResearch.set_trend_analysis: %w", err)
	}

	nextStage := domain.JobCompile
	if batch.OutputType == domain.OutputImage {
		nextStage = domain.JobImageCompile
	}
	if err := w.enqueueNext(ctx, batch.ID, nil, nextStage, nil); err != nil {
		return "", err
	}
	return "research", nil
}
