// Package domain defines core entities, ports, and domain-specific errors
// for the batch/job control plane.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels). See spec §7 for the full retry/no-retry
// classification; IsRetryable in retry.go maps these to policy.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrContentPolicy       = errors.New("content policy")
	ErrProviderPermanent   = errors.New("provider permanent error")
	ErrAuth                = errors.New("auth error")
	ErrInternal            = errors.New("internal error")
)

// OutputType enumerates the two kinds of artifact a batch produces.
type OutputType string

const (
	OutputVideo OutputType = "video"
	OutputImage OutputType = "image"
)

// Mode enumerates the creative-variation strategy requested for a batch.
type Mode string

const (
	ModeHookTest   Mode = "hook_test"
	ModeAngleTest  Mode = "angle_test"
	ModeFormatTest Mode = "format_test"
)

// QualityMode enumerates the cost/quality tier. Per spec §9 Open Question,
// only {fast, good, better} is authoritative; the alternate
// {economy, balanced, premium} naming from the source is not reintroduced.
type QualityMode string

const (
	QualityFast   QualityMode = "fast"
	QualityGood   QualityMode = "good"
	QualityBetter QualityMode = "better"
)

// VideoService enumerates the supported text-to-video backends.
type VideoService string

const (
	VideoServiceSora  VideoService = "sora"
	VideoServiceKling VideoService = "kling"
)

// BatchStatus captures the lifecycle state of a batch.
type BatchStatus string

const (
	BatchQueued      BatchStatus = "queued"
	BatchResearching BatchStatus = "researching"
	BatchRunning     BatchStatus = "running"
	BatchDone        BatchStatus = "done"
	BatchFailed      BatchStatus = "failed"
	BatchCancelled   BatchStatus = "cancelled"
)

// IsTerminal reports whether a batch status is final (spec §3: terminal
// states are final, no state may regress).
func (s BatchStatus) IsTerminal() bool {
	return s == BatchDone || s == BatchFailed || s == BatchCancelled
}

// Batch is one user request that fans out into N variant clips.
type Batch struct {
	ID                 string
	UserID             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	IntentText         string
	PresetKey          string
	Mode               Mode
	OutputType         OutputType
	BatchSize          int
	QualityMode        QualityMode
	VideoService       VideoService
	EstimatedCostCents int64
	UserChargeCents    int64
	Status             BatchStatus
	Error              string
	// NeedsResearch is carried through unchanged from the out-of-scope
	// intent-parsing LLM; when true the compile/image_compile handler
	// enqueues a research job before the per-variant loop (SPEC_FULL.md).
	NeedsResearch bool
	// TrendAnalysis is the opaque JSON the research stage writes back.
	TrendAnalysis string
	RefundedAt    *time.Time
}

// ClipStatus captures the lifecycle state of one variant.
type ClipStatus string

const (
	ClipPlanned    ClipStatus = "planned"
	ClipScripting  ClipStatus = "scripting"
	ClipVO         ClipStatus = "vo"
	ClipRendering  ClipStatus = "rendering"
	ClipAssembling ClipStatus = "assembling"
	ClipGenerating ClipStatus = "generating" // image pipeline only
	ClipReady      ClipStatus = "ready"
	ClipFailed     ClipStatus = "failed"
)

// IsTerminal reports whether a clip status is final.
func (s ClipStatus) IsTerminal() bool {
	return s == ClipReady || s == ClipFailed
}

// OnScreenTextEntry is one overlay caption keyed to a timestamp.
type OnScreenTextEntry struct {
	TSeconds float64 `json:"t_seconds"`
	Text     string  `json:"text"`
}

// Clip is one independent output variant within a batch.
type Clip struct {
	ID           string
	BatchID      string
	VariantID    string // "V01".."VN"
	PresetKey    string
	Status       ClipStatus
	ScriptSpoken string
	OnScreenText []OnScreenTextEntry
	SoraPrompt   string
	VoiceURL     string
	RawVideoURL  string
	FinalURL     string
	ImageURL     string
	ImagePrompt  string
	Winner       bool
	Killed       bool
	Provider     string
	VideoService VideoService
	Error        string
	DeletedAt    *time.Time
	PriceCents   int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// JobType enumerates the stage a job drives.
type JobType string

const (
	JobCompile      JobType = "compile"
	JobTTS          JobType = "tts"
	JobVideo        JobType = "video"
	JobAssemble     JobType = "assemble"
	JobImageCompile JobType = "image_compile"
	JobImage        JobType = "image"
	JobResearch     JobType = "research"
)

// JobStatus captures the lifecycle state of a job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is one unit of work driving a clip (or a whole batch, for
// batch-scoped stages like compile/image_compile/research) from one
// pipeline stage to the next.
type Job struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	BatchID   string
	ClipID    *string
	Type      JobType
	Status    JobStatus
	Attempts  int
	Payload   map[string]any
	Error     string
}

// MaxAttempts is the retry ceiling from spec §4.2 step 2.
const MaxAttempts = 3

// JobTimeout is the per-job wall-clock budget from spec §4.2 step 3.
const JobTimeout = 55 * time.Second

// ServiceLogEntry is one append-only, non-authoritative telemetry row.
type ServiceLogEntry struct {
	ID         string
	CreatedAt  time.Time
	JobID      string
	BatchID    string
	ClipID     string
	JobType    JobType
	Provider   string
	DurationMS int64
	Outcome    string // "done" | "failed" | "requeued" | "pending"
	Error      string
}

// Context aliases context.Context for readability across layers, matching
// the teacher's domain.Context convention.
type Context = context.Context
