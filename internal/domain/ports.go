package domain

import "time"

//go:generate mockery --name=BatchRepository --with-expecter --filename=batch_repository_mock.go
//go:generate mockery --name=ClipRepository --with-expecter --filename=clip_repository_mock.go
//go:generate mockery --name=JobRepository --with-expecter --filename=job_repository_mock.go
//go:generate mockery --name=CreditRepository --with-expecter --filename=credit_repository_mock.go

// NewBatchParams is the input to CreateBatchWithClips.
type NewBatchParams struct {
	UserID             string
	IntentText         string
	PresetKey          string
	Mode               Mode
	BatchSize          int
	OutputType         OutputType
	QualityMode        QualityMode
	VideoService       VideoService
	EstimatedCostCents int64
	NeedsResearch      bool
}

// BatchRepository is responsible for managing batches.
type BatchRepository interface {
	// CreateBatchWithClips atomically debits the user, inserts the batch
	// row, inserts BatchSize clip rows (planned), and inserts one root
	// job (compile or image_compile). Fails with ErrInsufficientCredits
	// before any write (spec §4.1).
	CreateBatchWithClips(ctx Context, p NewBatchParams) (Batch, []Clip, error)
	Get(ctx Context, id string) (Batch, error)
	List(ctx Context, userID string, offset, limit int) ([]Batch, error)
	// UpdateStatus performs a guarded, non-regressing status transition.
	UpdateStatus(ctx Context, id string, status BatchStatus, errMsg string) error
	SetTrendAnalysis(ctx Context, id string, trendAnalysis string) error
	MarkRefunded(ctx Context, id string) error
	IsRefunded(ctx Context, id string) (bool, error)
	// CheckComplete transitions the batch to done/failed once every clip
	// is terminal; race-safe under N concurrent callers (spec §4.1).
	CheckComplete(ctx Context, id string) (BatchStatus, bool, error)
	ListStale(ctx Context, olderThan time.Time, limit int) ([]Batch, error)
	ListAncientFailed(ctx Context, olderThan time.Time, limit int) ([]Batch, error)
	Delete(ctx Context, id string) error
	Ping(ctx Context) error
}

// ClipRepository is responsible for managing clips.
type ClipRepository interface {
	Get(ctx Context, id string) (Clip, error)
	ListByBatch(ctx Context, batchID string) ([]Clip, error)
	// Advance is a single-row update guarded by the clip's current status
	// to prevent regression (spec §4.1).
	Advance(ctx Context, id string, from, to ClipStatus, patch ClipPatch) error
	// Fail marks a clip failed unless it is already terminal (ready or failed).
	Fail(ctx Context, id string, reason string) error
	SetWinner(ctx Context, id string, winner bool) error
	SetKilled(ctx Context, id string, killed bool) error
	ListRetentionEligible(ctx Context, olderThan time.Time, limit int) ([]Clip, error)
	SoftDelete(ctx Context, id string) error
}

// ClipPatch carries the fields a stage handler writes when advancing a
// clip; nil fields are left unmodified.
type ClipPatch struct {
	ScriptSpoken *string
	OnScreenText *[]OnScreenTextEntry
	SoraPrompt   *string
	ImagePrompt  *string
	VoiceURL     *string
	RawVideoURL  *string
	FinalURL     *string
	ImageURL     *string
	Provider     *string
	Error        *string
}

// JobRepository is responsible for managing jobs.
type JobRepository interface {
	// ClaimNext returns the oldest queued job and transitions it to
	// running, attempts += 1. Must be serializable under concurrent
	// callers: two callers may never observe the same job (spec §4.1).
	ClaimNext(ctx Context) (Job, bool, error)
	// Enqueue inserts a new queued job, rejecting if a non-terminal job
	// already exists for (batch_id, clip_id, type) (spec §4.1).
	Enqueue(ctx Context, batchID string, clipID *string, jobType JobType, payload map[string]any) (string, error)
	Get(ctx Context, id string) (Job, error)
	// FinishDone marks a job done.
	FinishDone(ctx Context, id string) error
	// FinishFailed marks a job permanently failed.
	FinishFailed(ctx Context, id string, errMsg string) error
	// Requeue resets a job to queued with the error attached, for a
	// future Worker to retry from scratch (spec §4.2 step 5).
	Requeue(ctx Context, id string, errMsg string) error
	// SavePayload merges fields into a running job's payload without
	// changing its status (used by the async video stage to persist a
	// provider task ID across Worker invocations).
	SavePayload(ctx Context, id string, payload map[string]any) error
	ListByBatchAndType(ctx Context, batchID string, jobType JobType) ([]Job, error)
	DeleteByBatch(ctx Context, batchID string) error
	ListStuckRunning(ctx Context, olderThan time.Time, limit int) ([]Job, error)
	ListTerminalFailed(ctx Context, limit int) ([]Job, error)
	ListOldDone(ctx Context, olderThan time.Time, limit int) ([]Job, error)
	DeleteTerminal(ctx Context, ids []string) error
	Ping(ctx Context) error
}

// CreditRepository is the per-user prepaid balance and its transactional
// primitives (spec §3 Credit ledger).
type CreditRepository interface {
	Balance(ctx Context, userID string) (int64, error)
	// Debit fails with ErrInsufficientCredits if the result would be
	// negative; never observed at rest below zero.
	Debit(ctx Context, userID string, cents int64, reason string) error
	Credit(ctx Context, userID string, cents int64, reason string) error
	// RefundBatch sums price(clip) for every clip in the batch that is
	// not ready, credits the user, and is idempotent across retries
	// (spec §3, §4.1, §4.2.3, property 4).
	RefundBatch(ctx Context, batchID string) (int64, error)
	Ping(ctx Context) error
}

// ServiceLogRepository is an append-only, non-authoritative telemetry
// sink. Insertion failures must never propagate as job failures (spec §3).
type ServiceLogRepository interface {
	Append(ctx Context, e ServiceLogEntry) error
}

// Provider adapter contracts (spec §4.4). The core treats every return
// value as opaque bytes plus well-typed metadata; it never inspects
// adapter-private fields.

// ScriptOverlay is one caption cue as produced by the script provider,
// before timing validation clamps it (spec §6).
type ScriptOverlay struct {
	TSeconds float64
	Text     string
}

// ScriptResult is the ScriptAdapter's output for one variant.
type ScriptResult struct {
	Spoken       string
	Overlays     []ScriptOverlay
	VisualPrompt string
}

// ScriptAdapter generates the spoken script, on-screen overlays, and
// visual prompt for one variant of a batch.
type ScriptAdapter interface {
	Generate(ctx Context, intent, presetKey string, mode Mode, i, n int, targetDurationSeconds float64, researchCtx string) (ScriptResult, error)
	// GenerateImagePrompt produces a detailed image prompt instead of a
	// spoken script, for the image pipeline's image_compile stage.
	GenerateImagePrompt(ctx Context, intent, presetKey string, i, n int, researchCtx string) (string, error)
}

// VoiceResult is the VoiceAdapter's synthesis output.
type VoiceResult struct {
	AudioBytes           []byte
	EstimatedDurationSec float64
}

// VoiceAdapter synthesizes spoken audio from a script.
type VoiceAdapter interface {
	Synthesize(ctx Context, spoken string) (VoiceResult, error)
}

// VideoTaskState is the async status of a submitted text-to-video task.
type VideoTaskState string

const (
	VideoTaskPending    VideoTaskState = "pending"
	VideoTaskProcessing VideoTaskState = "processing"
	VideoTaskCompleted  VideoTaskState = "completed"
	VideoTaskFailed     VideoTaskState = "failed"
)

// VideoTaskStatus is the result of polling a submitted video task.
type VideoTaskStatus struct {
	State  VideoTaskState
	URL    string // set when State == completed
	Reason string // set when State == failed
}

// VideoAdapter is async by contract: submit returns a task ID
// immediately, status polls it (spec §4.4, §9).
type VideoAdapter interface {
	Submit(ctx Context, prompt string, durationSeconds float64, aspect, generationMode string, refImages []string) (string, error)
	Status(ctx Context, taskID string) (VideoTaskStatus, error)
}

// WatermarkRemover removes a provider watermark from a rendered video.
type WatermarkRemover interface {
	Remove(ctx Context, url string) (string, error)
}

// OverlayConfig is the preset-resolved compositor configuration (spec
// §4.2.1: "Resolves the preset to an overlay configuration").
type OverlayConfig struct {
	CaptionStyle      string
	ZoomCadenceSec    float64
	ZoomRangeMin      float64
	ZoomRangeMax      float64
	ProgressBar       bool
}

// ComposeAdapter combines raw video, voiceover, and overlays into the
// final deliverable; internally polls the compositor, honouring the
// caller's overall timeout.
type ComposeAdapter interface {
	Compose(ctx Context, videoURL, audioURL string, overlays []OnScreenTextEntry, cfg OverlayConfig, targetDurationSeconds float64) (string, error)
}

// ImageAdapter generates a still image from a prompt.
type ImageAdapter interface {
	Generate(ctx Context, prompt, imageType, aspect string) (string, error)
}

// ResearchVideo is one scraped competitor video surfaced by search.
type ResearchVideo struct {
	URL       string
	Caption   string
	Views     int64
	Category  string
}

// ResearchAdapter scrapes and analyzes trend data when a batch's
// needs_research hint is set.
type ResearchAdapter interface {
	Search(ctx Context, query string, minViews int64, category string) ([]ResearchVideo, error)
	Analyze(ctx Context, videos []ResearchVideo, query string) (string, error)
}

// Storage is the out-of-scope object-storage collaborator (spec §1), kept
// as a narrow interface so the pipeline is runnable end-to-end without a
// concrete cloud SDK dependency (SPEC_FULL.md Non-goals).
type Storage interface {
	// Put uploads bytes under bucket/key and returns a durable URL.
	// Upserts are allowed: retried handlers write the same deterministic
	// key and must not fail on overwrite (spec §5).
	Put(ctx Context, bucket, key string, data []byte, contentType string) (string, error)
	// Delete removes a blob best-effort; callers treat errors as
	// non-fatal (spec §4.3 step 4/5).
	Delete(ctx Context, bucket, key string) error
}
