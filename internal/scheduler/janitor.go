package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clipforge/clipforge/internal/adapter/observability"
	"github.com/clipforge/clipforge/internal/domain"
)

// Janitor runs the periodic reconciliation sweep (spec §4.3): it is the
// only thing that resurrects jobs abandoned by a crashed worker, times
// out batches that never converge, and enforces retention.
type Janitor struct {
	Batches domain.BatchRepository
	Clips   domain.ClipRepository
	Jobs    domain.JobRepository
	Credits domain.CreditRepository
	Storage domain.Storage

	Interval              time.Duration
	StuckRunningThreshold time.Duration
	IncompleteBatchAge    time.Duration
	FailedBatchAge        time.Duration
	RetentionAge          time.Duration
	DoneJobAge            time.Duration
	PageLimit             int

	log *slog.Logger
}

// NewJanitor builds a Janitor from config-resolved durations; zero
// PageLimit defaults to 200.
func NewJanitor(
	batches domain.BatchRepository,
	clips domain.ClipRepository,
	jobs domain.JobRepository,
	credits domain.CreditRepository,
	storage domain.Storage,
	interval, stuckRunning, incompleteBatchAge, failedBatchAge, retentionAge, doneJobAge time.Duration,
	pageLimit int,
	log *slog.Logger,
) *Janitor {
	if pageLimit <= 0 {
		pageLimit = 200
	}
	return &Janitor{
		Batches:               batches,
		Clips:                 clips,
		Jobs:                  jobs,
		Credits:                credits,
		Storage:               storage,
		Interval:              interval,
		StuckRunningThreshold: stuckRunning,
		IncompleteBatchAge:    incompleteBatchAge,
		FailedBatchAge:        failedBatchAge,
		RetentionAge:          retentionAge,
		DoneJobAge:            doneJobAge,
		PageLimit:             pageLimit,
		log:                   log,
	}
}

// Run blocks, sweeping on Interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			j.log.Info("janitor stopping")
			return
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *Janitor) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("scheduler.janitor")
	ctx, span := tracer.Start(ctx, "Janitor.sweepOnce")
	defer span.End()

	j.step(ctx, "unstick_running", j.unstickRunning)
	j.step(ctx, "harvest_terminal_failed", j.harvestTerminalFailed)
	j.step(ctx, "timeout_stale_batches", j.timeoutStaleBatches)
	j.step(ctx, "purge_ancient_failed", j.purgeAncientFailed)
	j.step(ctx, "apply_retention", j.applyRetention)
	j.step(ctx, "purge_old_done_jobs", j.purgeOldDoneJobs)
}

func (j *Janitor) step(ctx context.Context, name string, fn func(ctx context.Context) (int, error)) {
	tracer := otel.Tracer("scheduler.janitor")
	stepCtx, span := tracer.Start(ctx, "Janitor."+name)
	defer span.End()

	start := time.Now()
	n, err := fn(stepCtx)
	dur := time.Since(start)
	observability.RecordJanitorSweep(name, dur, n)
	span.SetAttributes(attribute.Int("janitor.items", n))
	if err != nil {
		span.RecordError(err)
		j.log.Error("janitor step failed", slog.String("step", name), slog.Any("error", err))
		return
	}
	if n > 0 {
		j.log.Info("janitor step completed", slog.String("step", name), slog.Int("items", n), slog.Duration("duration", dur))
	}
}

// unstickRunning resets jobs the worker abandoned mid-flight (crash, or a
// video job legitimately still polling past its own claim window) back
// to queued so a future tick retries them (spec §4.3 step 1).
func (j *Janitor) unstickRunning(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.StuckRunningThreshold)
	jobs, err := j.Jobs.ListStuckRunning(ctx, cutoff, j.PageLimit)
	if err != nil {
		return 0, fmt.Errorf("op=janitor.unstickRunning.list: %w", err)
	}
	n := 0
	for _, job := range jobs {
		if err := j.Jobs.Requeue(ctx, job.ID, "reset: stuck job"); err != nil {
			j.log.Error("janitor failed to requeue stuck job", slog.String("job_id", job.ID), slog.Any("error", err))
			continue
		}
		n++
	}
	return n, nil
}

// harvestTerminalFailed removes jobs that exhausted retries and failed
// any clip still waiting on them, so CheckComplete can observe a
// terminal clip state instead of hanging on an orphaned job row (spec
// §4.3 step 2).
func (j *Janitor) harvestTerminalFailed(ctx context.Context) (int, error) {
	jobs, err := j.Jobs.ListTerminalFailed(ctx, j.PageLimit)
	if err != nil {
		return 0, fmt.Errorf("op=janitor.harvestTerminalFailed.list: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
		if job.ClipID != nil {
			if err := j.Clips.Fail(ctx, *job.ClipID, job.Error); err != nil {
				j.log.Error("janitor failed to fail clip for terminal job", slog.String("job_id", job.ID), slog.Any("error", err))
			}
		}
		if err := j.checkBatchComplete(ctx, job.BatchID); err != nil {
			j.log.Error("janitor failed to check batch completion", slog.String("batch_id", job.BatchID), slog.Any("error", err))
		}
	}
	if err := j.Jobs.DeleteTerminal(ctx, ids); err != nil {
		return 0, fmt.Errorf("op=janitor.harvestTerminalFailed.delete: %w", err)
	}
	return len(ids), nil
}

// timeoutStaleBatches fails every non-ready clip and drops queued/running
// jobs for a batch that has been alive far longer than any real pipeline
// run should take, then refunds it (spec §4.3 step 3).
func (j *Janitor) timeoutStaleBatches(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.IncompleteBatchAge)
	batches, err := j.Batches.ListStale(ctx, cutoff, j.PageLimit)
	if err != nil {
		return 0, fmt.Errorf("op=janitor.timeoutStaleBatches.list: %w", err)
	}
	n := 0
	for _, batch := range batches {
		if err := j.failAllClips(ctx, batch.ID, "timed out by janitor"); err != nil {
			j.log.Error("janitor failed to fail clips for stale batch", slog.String("batch_id", batch.ID), slog.Any("error", err))
			continue
		}
		if err := j.Jobs.DeleteByBatch(ctx, batch.ID); err != nil {
			j.log.Error("janitor failed to delete jobs for stale batch", slog.String("batch_id", batch.ID), slog.Any("error", err))
		}
		if err := j.Batches.UpdateStatus(ctx, batch.ID, domain.BatchFailed, "timed out by janitor"); err != nil {
			j.log.Error("janitor failed to mark stale batch failed", slog.String("batch_id", batch.ID), slog.Any("error", err))
		}
		j.refund(ctx, batch.ID)
		n++
	}
	return n, nil
}

// purgeAncientFailed hard-deletes batches that have sat failed for far
// longer than the stale timeout, including their blobs (spec §4.3 step 4).
func (j *Janitor) purgeAncientFailed(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.FailedBatchAge)
	batches, err := j.Batches.ListAncientFailed(ctx, cutoff, j.PageLimit)
	if err != nil {
		return 0, fmt.Errorf("op=janitor.purgeAncientFailed.list: %w", err)
	}
	n := 0
	for _, batch := range batches {
		j.deleteBatchBlobs(ctx, batch.ID)
		if err := j.Batches.Delete(ctx, batch.ID); err != nil {
			j.log.Error("janitor failed to delete ancient batch", slog.String("batch_id", batch.ID), slog.Any("error", err))
			continue
		}
		n++
	}
	return n, nil
}

// applyRetention soft-deletes clips past the retention window and
// best-effort removes their storage blobs (spec §4.3 step 5).
func (j *Janitor) applyRetention(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.RetentionAge)
	clips, err := j.Clips.ListRetentionEligible(ctx, cutoff, j.PageLimit)
	if err != nil {
		return 0, fmt.Errorf("op=janitor.applyRetention.list: %w", err)
	}
	n := 0
	for _, clip := range clips {
		j.deleteClipBlobs(ctx, clip)
		if err := j.Clips.SoftDelete(ctx, clip.ID); err != nil {
			j.log.Error("janitor failed to soft delete clip", slog.String("clip_id", clip.ID), slog.Any("error", err))
			continue
		}
		n++
	}
	return n, nil
}

// purgeOldDoneJobs drops job rows that finished successfully long ago;
// they carry no retention-relevant state once their clip is terminal
// (spec §4.3 step 6).
func (j *Janitor) purgeOldDoneJobs(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-j.DoneJobAge)
	jobs, err := j.Jobs.ListOldDone(ctx, cutoff, j.PageLimit)
	if err != nil {
		return 0, fmt.Errorf("op=janitor.purgeOldDoneJobs.list: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	if err := j.Jobs.DeleteTerminal(ctx, ids); err != nil {
		return 0, fmt.Errorf("op=janitor.purgeOldDoneJobs.delete: %w", err)
	}
	return len(ids), nil
}

func (j *Janitor) failAllClips(ctx context.Context, batchID, reason string) error {
	clips, err := j.Clips.ListByBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("op=janitor.failAllClips.list: %w", err)
	}
	for _, clip := range clips {
		if clip.Status.IsTerminal() {
			continue
		}
		if err := j.Clips.Fail(ctx, clip.ID, reason); err != nil {
			j.log.Error("janitor failed to fail clip", slog.String("clip_id", clip.ID), slog.Any("error", err))
		}
	}
	return nil
}

func (j *Janitor) checkBatchComplete(ctx context.Context, batchID string) error {
	status, changed, err := j.Batches.CheckComplete(ctx, batchID)
	if err != nil {
		return err
	}
	if changed && (status == domain.BatchDone || status == domain.BatchFailed) {
		j.refund(ctx, batchID)
	}
	return nil
}

func (j *Janitor) refund(ctx context.Context, batchID string) {
	refunded, err := j.Credits.RefundBatch(ctx, batchID)
	if err != nil {
		j.log.Error("janitor failed to refund batch", slog.String("batch_id", batchID), slog.Any("error", err))
		return
	}
	if refunded > 0 {
		j.log.Info("janitor refunded batch", slog.String("batch_id", batchID), slog.Int64("cents", refunded))
	}
}

func (j *Janitor) deleteBatchBlobs(ctx context.Context, batchID string) {
	clips, err := j.Clips.ListByBatch(ctx, batchID)
	if err != nil {
		j.log.Error("janitor failed to list clips for blob cleanup", slog.String("batch_id", batchID), slog.Any("error", err))
		return
	}
	for _, clip := range clips {
		j.deleteClipBlobs(ctx, clip)
	}
}

func (j *Janitor) deleteClipBlobs(ctx context.Context, clip domain.Clip) {
	for bucket, key := range map[string]string{
		"voice":  clip.ID + ".mp3",
		"raw":    clip.ID + ".mp4",
		"final":  clip.ID + ".mp4",
		"images": clip.ID + ".png",
	} {
		if err := j.Storage.Delete(ctx, bucket, key); err != nil {
			j.log.Debug("janitor blob delete miss", slog.String("bucket", bucket), slog.String("key", key), slog.Any("error", err))
		}
	}
}
