package worker

import (
	"fmt"
	"strings"

	"github.com/clipforge/clipforge/internal/domain"
)

// defaultWatermarkedVideoService is the provider whose output requires a
// watermark-removal pass (spec §4.2.1: "required for the default video
// provider"); Sora is listed first in the adapter contract's generation
// mode enumeration and is treated as that default.
const defaultWatermarkedVideoService = domain.VideoServiceSora

// handleVideo drives the async video stage (spec §4.2.1, §9). The first
// pass submits a task and leaves the job running; a later pass — after
// the janitor's unstick sweep requeues it — observes the saved task ID
// and polls instead of resubmitting (resubmitting would double-bill).
func (w *Worker) handleVideo(ctx domain.Context, job domain.Job) (string, error) {
	if job.ClipID == nil {
		return "", fmt.Errorf("%w: video job missing clip_id", domain.ErrProviderPermanent)
	}
	clip, err := w.d.Clips.Get(ctx, *job.ClipID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleVideo.get_clip: %w", err)
	}
	if clip.Status.IsTerminal() {
		return "", nil
	}
	if strings.TrimSpace(clip.RawVideoURL) != "" {
		if err := w.enqueueNext(ctx, job.BatchID, &clip.ID, domain.JobAssemble, nil); err != nil {
			return "", err
		}
		return "", nil
	}

	batch, err := w.d.Batches.Get(ctx, job.BatchID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleVideo.get_batch: %w", err)
	}
	videoService := batch.VideoService
	if videoService == "" {
		videoService = defaultWatermarkedVideoService
	}

	taskID, _ := job.Payload["task_id"].(string)
	if taskID == "" {
		taskID, err = w.d.Video.Submit(ctx, clip.SoraPrompt, w.d.Cfg.TargetDurationSeconds, w.d.Cfg.DefaultAspect, string(videoService), nil)
		if err != nil {
			return "", fmt.Errorf("op=worker.handleVideo.submit[%s]: %w", clip.ID, err)
		}
		if err := w.d.Jobs.SavePayload(ctx, job.ID, map[string]any{"task_id": taskID}); err != nil {
			return "", fmt.Errorf("op=worker.handleVideo.save_payload[%s]: %w", clip.ID, err)
		}
		return "", errAsyncPending
	}

	status, err := w.d.Video.Status(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleVideo.status[%s]: %w", clip.ID, err)
	}

	switch status.State {
	case domain.VideoTaskPending, domain.VideoTaskProcessing:
		return "", errAsyncPending
	case domain.VideoTaskFailed:
		return "", fmt.Errorf("op=worker.handleVideo.failed[%s]: %w", clip.ID, domain.ClassifyFailureReason(status.Reason))
	case domain.VideoTaskCompleted:
		// fall through
	default:
		return "", fmt.Errorf("%w: unrecognized video task state %q", domain.ErrProviderPermanent, status.State)
	}

	sourceURL := status.URL
	if sourceURL == "" {
		return "", fmt.Errorf("%w: video provider reported completed with no URL", domain.ErrProviderPermanent)
	}
	if videoService == defaultWatermarkedVideoService {
		cleaned, err := w.d.Watermark.Remove(ctx, sourceURL)
		if err != nil {
			return "", fmt.Errorf("op=worker.handleVideo.watermark[%s]: %w", clip.ID, err)
		}
		sourceURL = cleaned
	}

	data, contentType, err := fetchBytes(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleVideo.fetch[%s]: %w", clip.ID, err)
	}
	if contentType == "" {
		contentType = "video/mp4"
	}
	rawURL, err := w.d.Storage.Put(ctx, "raw", clip.ID+".mp4", data, contentType)
	if err != nil {
		return "", fmt.Errorf("op=worker.handleVideo.put[%s]: %w", clip.ID, err)
	}

	patch := domain.ClipPatch{RawVideoURL: strPtr(rawURL), Provider: strPtr(string(videoService))}
	if aborted, err := w.advanceOrSkip(ctx, clip.ID, clip.Status, domain.ClipRendering, patch); err != nil {
		return "", err
	} else if aborted {
		return "", nil
	}
	if err := w.enqueueNext(ctx, job.BatchID, &clip.ID, domain.JobAssemble, nil); err != nil {
		return "", err
	}
	return string(videoService), nil
}
