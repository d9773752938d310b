package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
)

func TestHandleVideo_FirstPass_SubmitsAndStaysPending(t *testing.T) {
	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobVideo}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipVO, SoraPrompt: "a dog skateboarding"}}
	jobs := &fakeJobs{}
	video := &fakeVideo{submitTaskID: "sora:abc123"}
	w := New(Deps{Clips: clips, Batches: &fakeBatches{}, Jobs: jobs, Video: video, Cfg: config.Config{}}, discardLogger())

	_, err := w.handleVideo(context.Background(), job)
	if !errors.Is(err, errAsyncPending) {
		t.Fatalf("expected errAsyncPending on first submit, got %v", err)
	}
	if video.submitCalls != 1 {
		t.Fatalf("expected exactly one Submit call, got %d", video.submitCalls)
	}
	if len(jobs.savePayloadCalls) != 1 || jobs.savePayloadCalls[0]["task_id"] != "sora:abc123" {
		t.Fatalf("expected the task id to be persisted to the job payload, got %v", jobs.savePayloadCalls)
	}
}

func TestHandleVideo_Resume_AlreadyRendered_SkipsResubmit(t *testing.T) {
	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobVideo}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipVO, RawVideoURL: "https://storage.test/raw/clip-1.mp4"}}
	jobs := &fakeJobs{}
	video := &fakeVideo{}
	w := New(Deps{Clips: clips, Batches: &fakeBatches{}, Jobs: jobs, Video: video}, discardLogger())

	_, err := w.handleVideo(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if video.submitCalls != 0 {
		t.Fatalf("must not resubmit a video that already rendered (would double-bill), got %d Submit calls", video.submitCalls)
	}
	if len(jobs.enqueueCalls) != 1 || jobs.enqueueCalls[0] != domain.JobAssemble {
		t.Fatalf("expected assemble to be enqueued, got %v", jobs.enqueueCalls)
	}
}

func TestHandleVideo_StillProcessing_StaysPending(t *testing.T) {
	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobVideo, Payload: map[string]any{"task_id": "sora:abc123"}}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipVO}}
	video := &fakeVideo{status: domain.VideoTaskStatus{State: domain.VideoTaskProcessing}}
	w := New(Deps{Clips: clips, Batches: &fakeBatches{}, Jobs: &fakeJobs{}, Video: video}, discardLogger())

	_, err := w.handleVideo(context.Background(), job)
	if !errors.Is(err, errAsyncPending) {
		t.Fatalf("expected errAsyncPending while still processing, got %v", err)
	}
}

func TestHandleVideo_Failed_ContentPolicyReason_IsNotRetryable(t *testing.T) {
	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobVideo, Payload: map[string]any{"task_id": "sora:abc123"}}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipVO}}
	video := &fakeVideo{status: domain.VideoTaskStatus{State: domain.VideoTaskFailed, Reason: "rejected by content moderation policy"}}
	w := New(Deps{Clips: clips, Batches: &fakeBatches{}, Jobs: &fakeJobs{}, Video: video}, discardLogger())

	_, err := w.handleVideo(context.Background(), job)
	if !errors.Is(err, domain.ErrContentPolicy) {
		t.Fatalf("expected a content-policy classification, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Fatalf("a content-policy video failure must fail the clip immediately, not retry: %v", err)
	}
}

func TestHandleVideo_Failed_GenericReason_IsRetryable(t *testing.T) {
	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobVideo, Payload: map[string]any{"task_id": "sora:abc123"}}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipVO}}
	video := &fakeVideo{status: domain.VideoTaskStatus{State: domain.VideoTaskFailed, Reason: "upstream returned a 503"}}
	w := New(Deps{Clips: clips, Batches: &fakeBatches{}, Jobs: &fakeJobs{}, Video: video}, discardLogger())

	_, err := w.handleVideo(context.Background(), job)
	if !errors.Is(err, domain.ErrUpstreamTimeout) {
		t.Fatalf("expected a retryable upstream classification, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Fatalf("a generic upstream video failure should be retried: %v", err)
	}
}

func TestHandleVideo_Failed_MalformedRequestReason_IsPermanent(t *testing.T) {
	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobVideo, Payload: map[string]any{"task_id": "sora:abc123"}}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipVO}}
	video := &fakeVideo{status: domain.VideoTaskStatus{State: domain.VideoTaskFailed, Reason: "malformed prompt: unsupported character set"}}
	w := New(Deps{Clips: clips, Batches: &fakeBatches{}, Jobs: &fakeJobs{}, Video: video}, discardLogger())

	_, err := w.handleVideo(context.Background(), job)
	if !errors.Is(err, domain.ErrProviderPermanent) {
		t.Fatalf("expected a permanent-failure classification, got %v", err)
	}
	if domain.IsRetryable(err) {
		t.Fatalf("a malformed-request video failure should not be retried: %v", err)
	}
}

func TestHandleVideo_Completed_FetchesWatermarkAndAdvances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write([]byte("fake-mp4-bytes"))
	}))
	defer srv.Close()

	clipID := "clip-1"
	job := domain.Job{ID: "job-1", BatchID: "batch-1", ClipID: &clipID, Type: domain.JobVideo, Payload: map[string]any{"task_id": "sora:abc123"}}
	clips := &fakeClips{clip: domain.Clip{ID: clipID, Status: domain.ClipVO}}
	video := &fakeVideo{status: domain.VideoTaskStatus{State: domain.VideoTaskCompleted, URL: srv.URL}}
	watermark := &fakeWatermark{cleanedURL: srv.URL}
	storage := &fakeStorage{}
	jobs := &fakeJobs{}

	w := New(Deps{Clips: clips, Batches: &fakeBatches{}, Jobs: jobs, Video: video, Watermark: watermark, Storage: storage}, discardLogger())

	provider, err := w.handleVideo(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider != string(domain.VideoServiceSora) {
		t.Fatalf("expected sora as the provider tag, got %q", provider)
	}
	if len(storage.putCalls) != 1 {
		t.Fatalf("expected one storage put, got %v", storage.putCalls)
	}
	if clips.advanceCalls[len(clips.advanceCalls)-1] != domain.ClipRendering {
		t.Fatalf("expected the clip to advance to rendering, got %v", clips.advanceCalls)
	}
	if len(jobs.enqueueCalls) != 1 || jobs.enqueueCalls[0] != domain.JobAssemble {
		t.Fatalf("expected assemble to be enqueued next, got %v", jobs.enqueueCalls)
	}
}
