// Package storage provides an in-memory implementation of domain.Storage.
// SPEC_FULL.md's Non-goals explicitly exclude a real S3/GCS SDK — there is
// no object-storage client in the teacher's or pack's go.mod to ground one
// on — so this dev implementation is what makes the pipeline runnable
// end-to-end without a cloud dependency.
package storage

import (
	"fmt"
	"sync"

	"github.com/clipforge/clipforge/internal/domain"
)

type blob struct {
	data        []byte
	contentType string
}

// Memory is a process-local, in-memory object store keyed by bucket/key.
// Put upserts are idempotent by contract (spec §5): a retried handler
// writing the same deterministic key simply overwrites the prior bytes.
type Memory struct {
	mu     sync.RWMutex
	blobs  map[string]blob
	urlFor string
}

// New constructs an in-memory Storage adapter. urlBase is prefixed onto
// bucket/key to form the durable URL handlers persist on clip rows.
func New(urlBase string) *Memory {
	return &Memory{blobs: make(map[string]blob), urlFor: urlBase}
}

// Put stores data under bucket/key and returns a durable URL.
func (m *Memory) Put(_ domain.Context, bucket, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[bucket+"/"+key] = blob{data: data, contentType: contentType}
	return fmt.Sprintf("%s/%s/%s", m.urlFor, bucket, key), nil
}

// Get returns the bytes previously stored under bucket/key, for tests.
func (m *Memory) Get(_ domain.Context, bucket, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[bucket+"/"+key]
	if !ok {
		return nil, "", fmt.Errorf("op=storage.Get: %w", domain.ErrNotFound)
	}
	return b.data, b.contentType, nil
}

// Delete removes a blob best-effort; a missing blob is not an error since
// callers treat storage cleanup failures as non-fatal (spec §4.3 step 4/5).
func (m *Memory) Delete(_ domain.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, bucket+"/"+key)
	return nil
}

var _ domain.Storage = (*Memory)(nil)
