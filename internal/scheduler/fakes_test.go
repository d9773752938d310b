package scheduler

import (
	"fmt"
	"time"

	"github.com/clipforge/clipforge/internal/domain"
)

// Hand-rolled fakes stand in for the teacher's mockery-generated mocks: this
// workspace has no way to run the mockery codegen step, so each port used by
// the janitor sweep is implemented directly against its interface.

type fakeBatches struct {
	batches       map[string]domain.Batch
	stale         []domain.Batch
	ancientFailed []domain.Batch

	updateStatusCalls map[string]domain.BatchStatus
	deleteCalls       []string

	checkCompleteStatus  domain.BatchStatus
	checkCompleteChanged bool
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{batches: map[string]domain.Batch{}, updateStatusCalls: map[string]domain.BatchStatus{}}
}

func (f *fakeBatches) CreateBatchWithClips(domain.Context, domain.NewBatchParams) (domain.Batch, []domain.Clip, error) {
	return domain.Batch{}, nil, fmt.Errorf("not implemented")
}
func (f *fakeBatches) Get(_ domain.Context, id string) (domain.Batch, error) {
	b, ok := f.batches[id]
	if !ok {
		return domain.Batch{}, domain.ErrNotFound
	}
	return b, nil
}
func (f *fakeBatches) List(domain.Context, string, int, int) ([]domain.Batch, error) { return nil, nil }
func (f *fakeBatches) UpdateStatus(_ domain.Context, id string, status domain.BatchStatus, _ string) error {
	f.updateStatusCalls[id] = status
	if b, ok := f.batches[id]; ok {
		b.Status = status
		f.batches[id] = b
	}
	return nil
}
func (f *fakeBatches) SetTrendAnalysis(domain.Context, string, string) error { return nil }
func (f *fakeBatches) MarkRefunded(domain.Context, string) error            { return nil }
func (f *fakeBatches) IsRefunded(domain.Context, string) (bool, error)      { return false, nil }
func (f *fakeBatches) CheckComplete(domain.Context, string) (domain.BatchStatus, bool, error) {
	return f.checkCompleteStatus, f.checkCompleteChanged, nil
}
func (f *fakeBatches) ListStale(domain.Context, time.Time, int) ([]domain.Batch, error) {
	return f.stale, nil
}
func (f *fakeBatches) ListAncientFailed(domain.Context, time.Time, int) ([]domain.Batch, error) {
	return f.ancientFailed, nil
}
func (f *fakeBatches) Delete(_ domain.Context, id string) error {
	f.deleteCalls = append(f.deleteCalls, id)
	return nil
}
func (f *fakeBatches) Ping(domain.Context) error { return nil }

type fakeClips struct {
	byBatch           map[string][]domain.Clip
	retentionEligible []domain.Clip

	failCalls      []string
	softDeleteCalls []string
}

func (f *fakeClips) Get(domain.Context, string) (domain.Clip, error) { return domain.Clip{}, nil }
func (f *fakeClips) ListByBatch(_ domain.Context, batchID string) ([]domain.Clip, error) {
	return f.byBatch[batchID], nil
}
func (f *fakeClips) Advance(domain.Context, string, domain.ClipStatus, domain.ClipStatus, domain.ClipPatch) error {
	return nil
}
func (f *fakeClips) Fail(_ domain.Context, id string, _ string) error {
	f.failCalls = append(f.failCalls, id)
	return nil
}
func (f *fakeClips) SetWinner(domain.Context, string, bool) error { return nil }
func (f *fakeClips) SetKilled(domain.Context, string, bool) error { return nil }
func (f *fakeClips) ListRetentionEligible(domain.Context, time.Time, int) ([]domain.Clip, error) {
	return f.retentionEligible, nil
}
func (f *fakeClips) SoftDelete(_ domain.Context, id string) error {
	f.softDeleteCalls = append(f.softDeleteCalls, id)
	return nil
}

type fakeJobs struct {
	stuckRunning   []domain.Job
	terminalFailed []domain.Job
	oldDone        []domain.Job

	requeueCalls       []string
	deleteByBatchCalls []string
	deleteTerminalIDs  []string
}

func (f *fakeJobs) ClaimNext(domain.Context) (domain.Job, bool, error) { return domain.Job{}, false, nil }
func (f *fakeJobs) Enqueue(domain.Context, string, *string, domain.JobType, map[string]any) (string, error) {
	return "job-x", nil
}
func (f *fakeJobs) Get(domain.Context, string) (domain.Job, error) { return domain.Job{}, nil }
func (f *fakeJobs) FinishDone(domain.Context, string) error        { return nil }
func (f *fakeJobs) FinishFailed(domain.Context, string, string) error { return nil }
func (f *fakeJobs) Requeue(_ domain.Context, id string, _ string) error {
	f.requeueCalls = append(f.requeueCalls, id)
	return nil
}
func (f *fakeJobs) SavePayload(domain.Context, string, map[string]any) error { return nil }
func (f *fakeJobs) ListByBatchAndType(domain.Context, string, domain.JobType) ([]domain.Job, error) {
	return nil, nil
}
func (f *fakeJobs) DeleteByBatch(_ domain.Context, batchID string) error {
	f.deleteByBatchCalls = append(f.deleteByBatchCalls, batchID)
	return nil
}
func (f *fakeJobs) ListStuckRunning(domain.Context, time.Time, int) ([]domain.Job, error) {
	return f.stuckRunning, nil
}
func (f *fakeJobs) ListTerminalFailed(domain.Context, int) ([]domain.Job, error) {
	return f.terminalFailed, nil
}
func (f *fakeJobs) ListOldDone(domain.Context, time.Time, int) ([]domain.Job, error) {
	return f.oldDone, nil
}
func (f *fakeJobs) DeleteTerminal(_ domain.Context, ids []string) error {
	f.deleteTerminalIDs = append(f.deleteTerminalIDs, ids...)
	return nil
}
func (f *fakeJobs) Ping(domain.Context) error { return nil }

type fakeCredits struct {
	refundCalls []string
	refundCents int64
}

func (f *fakeCredits) Balance(domain.Context, string) (int64, error)      { return 0, nil }
func (f *fakeCredits) Debit(domain.Context, string, int64, string) error  { return nil }
func (f *fakeCredits) Credit(domain.Context, string, int64, string) error { return nil }
func (f *fakeCredits) RefundBatch(_ domain.Context, batchID string) (int64, error) {
	f.refundCalls = append(f.refundCalls, batchID)
	return f.refundCents, nil
}
func (f *fakeCredits) Ping(domain.Context) error { return nil }

type fakeStorage struct {
	deleteCalls []string
}

func (f *fakeStorage) Put(domain.Context, string, string, []byte, string) (string, error) {
	return "", nil
}
func (f *fakeStorage) Delete(_ domain.Context, bucket, key string) error {
	f.deleteCalls = append(f.deleteCalls, bucket+"/"+key)
	return nil
}

var (
	_ domain.BatchRepository  = (*fakeBatches)(nil)
	_ domain.ClipRepository   = (*fakeClips)(nil)
	_ domain.JobRepository    = (*fakeJobs)(nil)
	_ domain.CreditRepository = (*fakeCredits)(nil)
	_ domain.Storage          = (*fakeStorage)(nil)
)
