package worker

import (
	"fmt"
	"time"

	"github.com/clipforge/clipforge/internal/domain"
)

// Hand-rolled fakes stand in for the teacher's mockery-generated mocks
// (go:generate mockery directives on the domain interfaces): this
// workspace has no way to run the mockery codegen step, so each port is
// implemented directly against its interface with small call recorders
// instead.

type fakeBatches struct {
	batch domain.Batch
	err   error

	updateStatusCalls []domain.BatchStatus
	updateStatusErr   error

	trendAnalysis    string
	setTrendErr      error

	checkCompleteStatus  domain.BatchStatus
	checkCompleteChanged bool
	checkCompleteErr     error
	checkCompleteCalls   int
}

func (f *fakeBatches) CreateBatchWithClips(domain.Context, domain.NewBatchParams) (domain.Batch, []domain.Clip, error) {
	return domain.Batch{}, nil, fmt.Errorf("not implemented")
}
func (f *fakeBatches) Get(domain.Context, string) (domain.Batch, error) { return f.batch, f.err }
func (f *fakeBatches) List(domain.Context, string, int, int) ([]domain.Batch, error) {
	return nil, nil
}
func (f *fakeBatches) UpdateStatus(_ domain.Context, _ string, status domain.BatchStatus, _ string) error {
	f.updateStatusCalls = append(f.updateStatusCalls, status)
	f.batch.Status = status
	return f.updateStatusErr
}
func (f *fakeBatches) SetTrendAnalysis(_ domain.Context, _ string, analysis string) error {
	f.trendAnalysis = analysis
	f.batch.TrendAnalysis = analysis
	return f.setTrendErr
}
func (f *fakeBatches) MarkRefunded(domain.Context, string) error          { return nil }
func (f *fakeBatches) IsRefunded(domain.Context, string) (bool, error)    { return false, nil }
func (f *fakeBatches) CheckComplete(domain.Context, string) (domain.BatchStatus, bool, error) {
	f.checkCompleteCalls++
	return f.checkCompleteStatus, f.checkCompleteChanged, f.checkCompleteErr
}
func (f *fakeBatches) ListStale(domain.Context, time.Time, int) ([]domain.Batch, error) {
	return nil, nil
}
func (f *fakeBatches) ListAncientFailed(domain.Context, time.Time, int) ([]domain.Batch, error) {
	return nil, nil
}
func (f *fakeBatches) Delete(domain.Context, string) error { return nil }
func (f *fakeBatches) Ping(domain.Context) error           { return nil }

type fakeClips struct {
	clip domain.Clip
	err  error

	advanceCalls []domain.ClipStatus
	advanceErr   error

	failCalls  []string
	failReason string

	retentionEligible []domain.Clip
}

func (f *fakeClips) Get(domain.Context, string) (domain.Clip, error) { return f.clip, f.err }
func (f *fakeClips) ListByBatch(domain.Context, string) ([]domain.Clip, error) {
	return []domain.Clip{f.clip}, nil
}
func (f *fakeClips) Advance(_ domain.Context, _ string, _ domain.ClipStatus, to domain.ClipStatus, patch domain.ClipPatch) error {
	f.advanceCalls = append(f.advanceCalls, to)
	if f.advanceErr != nil {
		return f.advanceErr
	}
	f.clip.Status = to
	applyPatch(&f.clip, patch)
	return nil
}
func (f *fakeClips) Fail(_ domain.Context, id string, reason string) error {
	f.failCalls = append(f.failCalls, id)
	f.failReason = reason
	f.clip.Status = domain.ClipFailed
	return nil
}
func (f *fakeClips) SetWinner(domain.Context, string, bool) error { return nil }
func (f *fakeClips) SetKilled(domain.Context, string, bool) error { return nil }
func (f *fakeClips) ListRetentionEligible(domain.Context, time.Time, int) ([]domain.Clip, error) {
	return f.retentionEligible, nil
}
func (f *fakeClips) SoftDelete(domain.Context, string) error { return nil }

func applyPatch(c *domain.Clip, patch domain.ClipPatch) {
	if patch.ScriptSpoken != nil {
		c.ScriptSpoken = *patch.ScriptSpoken
	}
	if patch.OnScreenText != nil {
		c.OnScreenText = *patch.OnScreenText
	}
	if patch.SoraPrompt != nil {
		c.SoraPrompt = *patch.SoraPrompt
	}
	if patch.ImagePrompt != nil {
		c.ImagePrompt = *patch.ImagePrompt
	}
	if patch.VoiceURL != nil {
		c.VoiceURL = *patch.VoiceURL
	}
	if patch.RawVideoURL != nil {
		c.RawVideoURL = *patch.RawVideoURL
	}
	if patch.FinalURL != nil {
		c.FinalURL = *patch.FinalURL
	}
	if patch.ImageURL != nil {
		c.ImageURL = *patch.ImageURL
	}
	if patch.Provider != nil {
		c.Provider = *patch.Provider
	}
	if patch.Error != nil {
		c.Error = *patch.Error
	}
}

type fakeJobs struct {
	claimJob domain.Job
	claimOK  bool
	claimErr error

	enqueueCalls []domain.JobType
	enqueueErr   error

	finishDoneCalls   int
	finishFailedCalls []string
	requeueCalls      []string
	savePayloadCalls  []map[string]any
}

func (f *fakeJobs) ClaimNext(domain.Context) (domain.Job, bool, error) {
	return f.claimJob, f.claimOK, f.claimErr
}
func (f *fakeJobs) Enqueue(_ domain.Context, _ string, _ *string, jobType domain.JobType, _ map[string]any) (string, error) {
	f.enqueueCalls = append(f.enqueueCalls, jobType)
	if f.enqueueErr != nil {
		return "", f.enqueueErr
	}
	return "job-" + string(jobType), nil
}
func (f *fakeJobs) Get(domain.Context, string) (domain.Job, error) { return domain.Job{}, nil }
func (f *fakeJobs) FinishDone(domain.Context, string) error {
	f.finishDoneCalls++
	return nil
}
func (f *fakeJobs) FinishFailed(_ domain.Context, id string, errMsg string) error {
	f.finishFailedCalls = append(f.finishFailedCalls, errMsg)
	return nil
}
func (f *fakeJobs) Requeue(_ domain.Context, id string, errMsg string) error {
	f.requeueCalls = append(f.requeueCalls, errMsg)
	return nil
}
func (f *fakeJobs) SavePayload(_ domain.Context, _ string, payload map[string]any) error {
	f.savePayloadCalls = append(f.savePayloadCalls, payload)
	return nil
}
func (f *fakeJobs) ListByBatchAndType(domain.Context, string, domain.JobType) ([]domain.Job, error) {
	return nil, nil
}
func (f *fakeJobs) DeleteByBatch(domain.Context, string) error { return nil }
func (f *fakeJobs) ListStuckRunning(domain.Context, time.Time, int) ([]domain.Job, error) {
	return nil, nil
}
func (f *fakeJobs) ListTerminalFailed(domain.Context, int) ([]domain.Job, error) { return nil, nil }
func (f *fakeJobs) ListOldDone(domain.Context, time.Time, int) ([]domain.Job, error) {
	return nil, nil
}
func (f *fakeJobs) DeleteTerminal(domain.Context, []string) error { return nil }
func (f *fakeJobs) Ping(domain.Context) error                    { return nil }

type fakeCredits struct {
	refundCalls []string
	refundCents int64
	refundErr   error
}

func (f *fakeCredits) Balance(domain.Context, string) (int64, error)             { return 0, nil }
func (f *fakeCredits) Debit(domain.Context, string, int64, string) error         { return nil }
func (f *fakeCredits) Credit(domain.Context, string, int64, string) error        { return nil }
func (f *fakeCredits) RefundBatch(_ domain.Context, batchID string) (int64, error) {
	f.refundCalls = append(f.refundCalls, batchID)
	return f.refundCents, f.refundErr
}
func (f *fakeCredits) Ping(domain.Context) error { return nil }

type fakeServiceLog struct {
	entries []domain.ServiceLogEntry
	err     error
}

func (f *fakeServiceLog) Append(_ domain.Context, e domain.ServiceLogEntry) error {
	f.entries = append(f.entries, e)
	return f.err
}

type fakeScript struct {
	result domain.ScriptResult
	err    error

	imagePrompt    string
	imagePromptErr error
}

func (f *fakeScript) Generate(domain.Context, string, string, domain.Mode, int, int, float64, string) (domain.ScriptResult, error) {
	return f.result, f.err
}
func (f *fakeScript) GenerateImagePrompt(domain.Context, string, string, int, int, string) (string, error) {
	return f.imagePrompt, f.imagePromptErr
}

type fakeVoice struct {
	result domain.VoiceResult
	err    error
}

func (f *fakeVoice) Synthesize(domain.Context, string) (domain.VoiceResult, error) {
	return f.result, f.err
}

type fakeVideo struct {
	submitTaskID string
	submitErr    error
	submitCalls  int

	status    domain.VideoTaskStatus
	statusErr error
}

func (f *fakeVideo) Submit(domain.Context, string, float64, string, string, []string) (string, error) {
	f.submitCalls++
	return f.submitTaskID, f.submitErr
}
func (f *fakeVideo) Status(domain.Context, string) (domain.VideoTaskStatus, error) {
	return f.status, f.statusErr
}

type fakeWatermark struct {
	cleanedURL string
	err        error
}

func (f *fakeWatermark) Remove(domain.Context, string) (string, error) {
	return f.cleanedURL, f.err
}

type fakeCompose struct {
	url string
	err error
}

func (f *fakeCompose) Compose(domain.Context, string, string, []domain.OnScreenTextEntry, domain.OverlayConfig, float64) (string, error) {
	return f.url, f.err
}

type fakeImage struct {
	url string
	err error
}

func (f *fakeImage) Generate(domain.Context, string, string, string) (string, error) {
	return f.url, f.err
}

type fakeResearch struct {
	videos     []domain.ResearchVideo
	searchErr  error
	analysis   string
	analyzeErr error
}

func (f *fakeResearch) Search(domain.Context, string, int64, string) ([]domain.ResearchVideo, error) {
	return f.videos, f.searchErr
}
func (f *fakeResearch) Analyze(domain.Context, []domain.ResearchVideo, string) (string, error) {
	return f.analysis, f.analyzeErr
}

type fakeStorage struct {
	putURL string
	putErr error

	putCalls []string
}

func (f *fakeStorage) Put(_ domain.Context, bucket string, key string, _ []byte, _ string) (string, error) {
	f.putCalls = append(f.putCalls, bucket+"/"+key)
	if f.putErr != nil {
		return "", f.putErr
	}
	if f.putURL != "" {
		return f.putURL, nil
	}
	return "https://storage.test/" + bucket + "/" + key, nil
}
func (f *fakeStorage) Delete(domain.Context, string, string) error { return nil }

var (
	_ domain.BatchRepository    = (*fakeBatches)(nil)
	_ domain.ClipRepository     = (*fakeClips)(nil)
	_ domain.JobRepository      = (*fakeJobs)(nil)
	_ domain.CreditRepository   = (*fakeCredits)(nil)
	_ domain.ServiceLogRepository = (*fakeServiceLog)(nil)
	_ domain.ScriptAdapter      = (*fakeScript)(nil)
	_ domain.VoiceAdapter       = (*fakeVoice)(nil)
	_ domain.VideoAdapter       = (*fakeVideo)(nil)
	_ domain.WatermarkRemover   = (*fakeWatermark)(nil)
	_ domain.ComposeAdapter     = (*fakeCompose)(nil)
	_ domain.ImageAdapter       = (*fakeImage)(nil)
	_ domain.ResearchAdapter    = (*fakeResearch)(nil)
	_ domain.Storage            = (*fakeStorage)(nil)
)
