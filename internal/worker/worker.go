// Package worker implements the single active element of the core: one
// invocation claims and drives at most one job through its stage handler
// (spec §4.2).
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clipforge/clipforge/internal/adapter/observability"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
)

// Deps bundles every collaborator a stage handler may need. Grouping them
// in one struct (rather than a long constructor parameter list) mirrors
// the teacher's asynq Worker, which also closes over every repo/client it
// dispatches to.
type Deps struct {
	Batches    domain.BatchRepository
	Clips      domain.ClipRepository
	Jobs       domain.JobRepository
	Credits    domain.CreditRepository
	ServiceLog domain.ServiceLogRepository

	Script    domain.ScriptAdapter
	Voice     domain.VoiceAdapter
	Video     domain.VideoAdapter
	Watermark domain.WatermarkRemover
	Compose   domain.ComposeAdapter
	Image     domain.ImageAdapter
	Research  domain.ResearchAdapter
	Storage   domain.Storage

	Presets *config.PresetCatalog
	Cfg     config.Config
}

// Worker claims and processes one job per RunOnce call.
type Worker struct {
	d      Deps
	log    *slog.Logger
	tracer string
}

// New constructs a Worker from its dependencies.
func New(d Deps, log *slog.Logger) *Worker {
	return &Worker{d: d, log: log, tracer: "worker"}
}

// Result is the outcome of one RunOnce invocation (spec §4.2 contract).
type Result struct {
	Processed  bool
	JobID      string
	JobType    domain.JobType
	DurationMS int64
	Error      string
}

// RunOnce claims the oldest queued job and drives it through one stage
// handler, exactly spec.md §4.2's algorithm.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	job, ok, err := w.d.Jobs.ClaimNext(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("op=worker.RunOnce.claim: %w", err)
	}
	if !ok {
		return Result{Processed: false}, nil
	}

	tracer := otel.Tracer(w.tracer)
	ctx, span := tracer.Start(ctx, "Worker.RunOnce")
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", string(job.Type)),
		attribute.Int("job.attempts", job.Attempts),
	)
	defer span.End()

	if job.Attempts > w.d.Cfg.MaxAttempts {
		return w.failMaxRetries(ctx, job), nil
	}

	observability.ClaimJob(string(job.Type))

	hctx, cancel := context.WithTimeout(ctx, w.jobTimeout())
	defer cancel()

	start := time.Now()
	provider, handlerErr := w.dispatch(hctx, job)
	dur := time.Since(start)

	if handlerErr == nil {
		return w.succeed(ctx, job, provider, dur), nil
	}
	if errors.Is(handlerErr, errAsyncPending) {
		// Text-to-video is async by contract (spec §4.2.1): the job stays
		// running, untouched, until the janitor's unstick pass resurrects
		// it after STUCK_RUNNING_THRESHOLD. Finishing or requeuing here
		// would either lose the provider task ID's "in flight" meaning or
		// burn an attempt on a job that hasn't actually failed.
		w.appendServiceLog(ctx, job, "", dur, "pending", "")
		return Result{Processed: true, JobID: job.ID, JobType: job.Type, DurationMS: dur.Milliseconds()}, nil
	}
	return w.fail(ctx, job, handlerErr, dur), nil
}

func (w *Worker) jobTimeout() time.Duration {
	if w.d.Cfg.JobTimeout > 0 {
		return w.d.Cfg.JobTimeout
	}
	return domain.JobTimeout
}

func (w *Worker) failMaxRetries(ctx context.Context, job domain.Job) Result {
	const reason = "max retries exceeded"
	if err := w.d.Jobs.FinishFailed(ctx, job.ID, reason); err != nil {
		w.log.Error("finish failed job", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	if job.ClipID != nil {
		if err := w.d.Clips.Fail(ctx, *job.ClipID, reason); err != nil {
			w.log.Error("fail clip", slog.String("clip_id", *job.ClipID), slog.Any("error", err))
		}
	}
	observability.FinishJobFailed(string(job.Type))
	w.checkBatchComplete(ctx, job.BatchID)
	w.appendServiceLog(ctx, job, "", 0, "failed", reason)
	return Result{Processed: true, JobID: job.ID, JobType: job.Type, Error: reason}
}

func (w *Worker) succeed(ctx context.Context, job domain.Job, provider string, dur time.Duration) Result {
	if err := w.d.Jobs.FinishDone(ctx, job.ID); err != nil {
		w.log.Error("finish done job", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	observability.FinishJobDone(string(job.Type))
	w.checkBatchComplete(ctx, job.BatchID)
	w.appendServiceLog(ctx, job, provider, dur, "done", "")
	return Result{Processed: true, JobID: job.ID, JobType: job.Type, DurationMS: dur.Milliseconds()}
}

func (w *Worker) fail(ctx context.Context, job domain.Job, handlerErr error, dur time.Duration) Result {
	if domain.IsRetryable(handlerErr) && job.Attempts < w.d.Cfg.MaxAttempts {
		if err := w.d.Jobs.Requeue(ctx, job.ID, handlerErr.Error()); err != nil {
			w.log.Error("requeue job", slog.String("job_id", job.ID), slog.Any("error", err))
		}
		observability.RequeueJob(string(job.Type))
		w.appendServiceLog(ctx, job, "", dur, "requeued", handlerErr.Error())
	} else {
		if err := w.d.Jobs.FinishFailed(ctx, job.ID, handlerErr.Error()); err != nil {
			w.log.Error("finish failed job", slog.String("job_id", job.ID), slog.Any("error", err))
		}
		if job.ClipID != nil {
			if err := w.d.Clips.Fail(ctx, *job.ClipID, handlerErr.Error()); err != nil {
				w.log.Error("fail clip", slog.String("clip_id", *job.ClipID), slog.Any("error", err))
			}
		}
		observability.FinishJobFailed(string(job.Type))
		w.checkBatchComplete(ctx, job.BatchID)
		w.appendServiceLog(ctx, job, "", dur, "failed", handlerErr.Error())
	}
	return Result{Processed: true, JobID: job.ID, JobType: job.Type, DurationMS: dur.Milliseconds(), Error: handlerErr.Error()}
}

// checkBatchComplete closes the batch when every clip is terminal and, per
// spec §4.2.3, refunds the user for any clip that did not reach ready
// (including the all-failed case, where every clip's price is refunded).
func (w *Worker) checkBatchComplete(ctx context.Context, batchID string) {
	status, changed, err := w.d.Batches.CheckComplete(ctx, batchID)
	if err != nil {
		w.log.Error("check batch complete", slog.String("batch_id", batchID), slog.Any("error", err))
		return
	}
	if !changed {
		return
	}
	if status != domain.BatchDone && status != domain.BatchFailed {
		return
	}
	if _, err := w.d.Credits.RefundBatch(ctx, batchID); err != nil {
		w.log.Error("refund batch", slog.String("batch_id", batchID), slog.Any("error", err))
	}
}

func (w *Worker) appendServiceLog(ctx context.Context, job domain.Job, provider string, dur time.Duration, outcome, errMsg string) {
	clipID := ""
	if job.ClipID != nil {
		clipID = *job.ClipID
	}
	entry := domain.ServiceLogEntry{
		JobID:      job.ID,
		BatchID:    job.BatchID,
		ClipID:     clipID,
		JobType:    job.Type,
		Provider:   provider,
		DurationMS: dur.Milliseconds(),
		Outcome:    outcome,
		Error:      errMsg,
	}
	// Service-log insertion is the only suppressible failure (spec §7):
	// a logging hiccup must never turn into a job failure.
	if err := w.d.ServiceLog.Append(ctx, entry); err != nil {
		w.log.Warn("service log append failed", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

// dispatch routes a job to its stage handler (internal/worker/stage_*.go).
func (w *Worker) dispatch(ctx domain.Context, job domain.Job) (provider string, err error) {
	switch job.Type {
	case domain.JobCompile:
		return w.handleCompile(ctx, job)
	case domain.JobTTS:
		return w.handleTTS(ctx, job)
	case domain.JobVideo:
		return w.handleVideo(ctx, job)
	case domain.JobAssemble:
		return w.handleAssemble(ctx, job)
	case domain.JobImageCompile:
		return w.handleImageCompile(ctx, job)
	case domain.JobImage:
		return w.handleImage(ctx, job)
	case domain.JobResearch:
		return w.handleResearch(ctx, job)
	default:
		return "", fmt.Errorf("%w: unknown job type %q", domain.ErrProviderPermanent, job.Type)
	}
}

// enqueueNext enqueues the next-stage job, tolerating the conflict a
// crash-recovery retry produces when the prior attempt already enqueued it
// before timing out (spec §9 "idempotent stage transitions").
func (w *Worker) enqueueNext(ctx domain.Context, batchID string, clipID *string, jobType domain.JobType, payload map[string]any) error {
	if _, err := w.d.Jobs.Enqueue(ctx, batchID, clipID, jobType, payload); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil
		}
		return fmt.Errorf("op=worker.enqueueNext: %w", err)
	}
	return nil
}

// advanceOrSkip applies a clip patch guarded by its current status,
// treating a conflict (clip no longer in the expected status — already
// advanced by a prior attempt, or failed by a cancellation) as an abort
// signal rather than an error: the handler must stop without further
// provider calls or charges (spec §5 Cancellation).
func (w *Worker) advanceOrSkip(ctx domain.Context, clipID string, from, to domain.ClipStatus, patch domain.ClipPatch) (aborted bool, err error) {
	if err := w.d.Clips.Advance(ctx, clipID, from, to, patch); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return true, nil
		}
		return false, fmt.Errorf("op=worker.advanceOrSkip: %w", err)
	}
	return false, nil
}

func toOnScreenText(overlays []domain.ScriptOverlay) []domain.OnScreenTextEntry {
	out := make([]domain.OnScreenTextEntry, 0, len(overlays))
	for _, o := range overlays {
		out = append(out, domain.OnScreenTextEntry{TSeconds: o.TSeconds, Text: o.Text})
	}
	return out
}

func strPtr(s string) *string { return &s }

// errAsyncPending signals that a handler submitted an async provider task
// and the job must stay running untouched rather than finish or requeue
// (spec §4.2.1, §9 "long provider polls vs. short worker invocations").
var errAsyncPending = errors.New("async task pending")
