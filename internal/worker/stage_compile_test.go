package worker

import (
	"context"
	"testing"

	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/domain"
)

func TestHandleCompile_NeedsResearch_DefersToResearchStage(t *testing.T) {
	job := domain.Job{ID: "job-1", BatchID: "batch-1", Type: domain.JobCompile}
	batches := &fakeBatches{batch: domain.Batch{ID: "batch-1", Status: domain.BatchQueued, NeedsResearch: true}}
	clips := &fakeClips{clip: domain.Clip{ID: "clip-1", Status: domain.ClipPlanned}}
	script := &fakeScript{}
	jobs := &fakeJobs{}
	w := New(Deps{Batches: batches, Clips: clips, Script: script, Jobs: jobs}, discardLogger())

	_, err := w.handleCompile(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batches.batch.Status != domain.BatchResearching {
		t.Fatalf("expected the batch to move to researching, got %v", batches.batch.Status)
	}
	if len(jobs.enqueueCalls) != 1 || jobs.enqueueCalls[0] != domain.JobResearch {
		t.Fatalf("expected a research job to be enqueued, got %v", jobs.enqueueCalls)
	}
	if script.result.Spoken != "" {
		t.Fatalf("must not generate a script before research completes")
	}
}

func TestHandleCompile_GeneratesScriptPerClip(t *testing.T) {
	job := domain.Job{ID: "job-1", BatchID: "batch-1", Type: domain.JobCompile}
	batches := &fakeBatches{batch: domain.Batch{ID: "batch-1", Status: domain.BatchQueued, Mode: domain.ModeHookTest}}
	clips := &fakeClips{clip: domain.Clip{ID: "clip-1", Status: domain.ClipPlanned}}
	script := &fakeScript{result: domain.ScriptResult{Spoken: "hook line", VisualPrompt: "a skater"}}
	jobs := &fakeJobs{}
	w := New(Deps{Batches: batches, Clips: clips, Script: script, Jobs: jobs, Cfg: config.Config{TargetDurationSeconds: 15}}, discardLogger())

	provider, err := w.handleCompile(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider != "script" {
		t.Fatalf("expected provider tag %q, got %q", "script", provider)
	}
	if batches.batch.Status != domain.BatchRunning {
		t.Fatalf("expected the batch to move to running, got %v", batches.batch.Status)
	}
	if clips.clip.ScriptSpoken != "hook line" {
		t.Fatalf("expected the clip to carry the generated script, got %q", clips.clip.ScriptSpoken)
	}
	if len(jobs.enqueueCalls) != 1 || jobs.enqueueCalls[0] != domain.JobTTS {
		t.Fatalf("expected a tts job to be enqueued, got %v", jobs.enqueueCalls)
	}
}

func TestHandleCompile_TerminalBatch_NoOp(t *testing.T) {
	job := domain.Job{ID: "job-1", BatchID: "batch-1", Type: domain.JobCompile}
	batches := &fakeBatches{batch: domain.Batch{ID: "batch-1", Status: domain.BatchCancelled}}
	jobs := &fakeJobs{}
	w := New(Deps{Batches: batches, Jobs: jobs}, discardLogger())

	_, err := w.handleCompile(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs.enqueueCalls) != 0 {
		t.Fatalf("a cancelled batch must not enqueue further work, got %v", jobs.enqueueCalls)
	}
}

func TestHandleCompile_SkipsAlreadyTerminalClips(t *testing.T) {
	job := domain.Job{ID: "job-1", BatchID: "batch-1", Type: domain.JobCompile}
	batches := &fakeBatches{batch: domain.Batch{ID: "batch-1", Status: domain.BatchRunning}}
	clips := &fakeClips{clip: domain.Clip{ID: "clip-1", Status: domain.ClipFailed}}
	script := &fakeScript{result: domain.ScriptResult{Spoken: "hook line"}}
	jobs := &fakeJobs{}
	w := New(Deps{Batches: batches, Clips: clips, Script: script, Jobs: jobs}, discardLogger())

	_, err := w.handleCompile(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs.enqueueCalls) != 0 {
		t.Fatalf("a failed clip must not be re-enqueued into tts, got %v", jobs.enqueueCalls)
	}
}
