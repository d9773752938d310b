package postgres

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/domain"
)

// ServiceLogRepo is the append-only telemetry sink backing ServiceLogRepository.
type ServiceLogRepo struct{ Pool PgxPool }

// NewServiceLogRepo constructs a ServiceLogRepo with the given pool.
func NewServiceLogRepo(p PgxPool) *ServiceLogRepo { return &ServiceLogRepo{Pool: p} }

// Append inserts one telemetry row. Insertion failures are wrapped, not
// swallowed here — it is the caller's responsibility (internal/worker) to
// treat them as non-fatal per spec §3.
func (r *ServiceLogRepo) Append(ctx domain.Context, e domain.ServiceLogEntry) error {
	ctx, end := span(ctx, "repo.servicelog", "servicelog.Append", "INSERT", "service_log")
	defer end()
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO service_log (id, created_at, job_id, batch_id, clip_id, job_type, provider, duration_ms, outcome, error)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err := r.Pool.Exec(ctx, q, id, e.CreatedAt, e.JobID, e.BatchID, e.ClipID, e.JobType, e.Provider, e.DurationMS, e.Outcome, e.Error)
	if err != nil {
		return fmt.Errorf("op=servicelog.append: %w", err)
	}
	return nil
}

var _ domain.ServiceLogRepository = (*ServiceLogRepo)(nil)
