package redpanda

import (
	"errors"
	"testing"

	"github.com/clipforge/clipforge/internal/domain"
)

type fakeServiceLogRepo struct {
	appended []domain.ServiceLogEntry
	err      error
}

func (f *fakeServiceLogRepo) Append(_ domain.Context, e domain.ServiceLogEntry) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, e)
	return nil
}

var _ domain.ServiceLogRepository = (*fakeServiceLogRepo)(nil)

func TestMirroredServiceLog_WritesThroughOnSuccess(t *testing.T) {
	repo := &fakeServiceLogRepo{}
	m := MirroredServiceLog{Repo: repo, Pub: nil}
	entry := domain.ServiceLogEntry{JobID: "job-1", BatchID: "batch-1", Outcome: "done"}
	if err := m.Append(nil, entry); err != nil { //nolint:staticcheck
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.appended) != 1 || repo.appended[0].JobID != "job-1" {
		t.Fatalf("expected entry written through to repo, got %v", repo.appended)
	}
}

func TestMirroredServiceLog_NilPublisherDoesNotPanic(t *testing.T) {
	repo := &fakeServiceLogRepo{}
	m := MirroredServiceLog{Repo: repo, Pub: nil}
	if err := m.Append(nil, domain.ServiceLogEntry{JobID: "job-2"}); err != nil { //nolint:staticcheck
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMirroredServiceLog_RepoErrorSkipsMirror(t *testing.T) {
	wantErr := errors.New("db down")
	repo := &fakeServiceLogRepo{err: wantErr}
	m := MirroredServiceLog{Repo: repo, Pub: nil}
	err := m.Append(nil, domain.ServiceLogEntry{JobID: "job-3"}) //nolint:staticcheck
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected repo error to propagate, got %v", err)
	}
	if len(repo.appended) != 0 {
		t.Fatalf("expected nothing appended on repo error")
	}
}

func TestPublisher_NilSafe(t *testing.T) {
	var p *Publisher
	p.Publish(nil, domain.ServiceLogEntry{JobID: "job-4"}) //nolint:staticcheck
	p.Close()
}

func TestNewPublisher_NoBrokers(t *testing.T) {
	if _, err := NewPublisher(nil, "", nil); err == nil {
		t.Fatal("expected error when no seed brokers are provided")
	}
}
