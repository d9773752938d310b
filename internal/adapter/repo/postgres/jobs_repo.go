// Package postgres provides PostgreSQL database adapters.
//
// It implements repository interfaces for data persistence.
// The package provides type-safe database operations with
// connection pooling and transaction support.
package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clipforge/clipforge/internal/domain"
)

// JobRepo persists and loads jobs from PostgreSQL using a minimal pgx pool.
type JobRepo struct{ Pool PgxPool }

// NewJobRepo constructs a JobRepo with the given pool.
func NewJobRepo(p PgxPool) *JobRepo { return &JobRepo{Pool: p} }

func span(ctx domain.Context, tracerName, spanName, op, table string) (domain.Context, func()) {
	tracer := otel.Tracer(tracerName)
	ctx, sp := tracer.Start(ctx, spanName)
	sp.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", table),
	)
	return ctx, func() { sp.End() }
}

// ClaimNext returns the oldest queued job and transitions it to running.
// The SELECT ... FOR UPDATE SKIP LOCKED clause lets N worker processes call
// this concurrently without ever claiming the same row (spec §4.1, §4.2).
func (r *JobRepo) ClaimNext(ctx domain.Context) (domain.Job, bool, error) {
	ctx, end := span(ctx, "repo.jobs", "jobs.ClaimNext", "UPDATE", "jobs")
	defer end()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.Job{}, false, fmt.Errorf("op=job.claim_next.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	q := `SELECT id, batch_id, clip_id, type, status, attempts, payload, COALESCE(error,''), created_at, updated_at
	      FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`
	row := tx.QueryRow(ctx, q, domain.JobQueued)
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, false, nil
		}
		return domain.Job{}, false, fmt.Errorf("op=job.claim_next.select: %w", err)
	}

	now := time.Now().UTC()
	j.Attempts++
	if _, err := tx.Exec(ctx, `UPDATE jobs SET status=$2, attempts=$3, updated_at=$4 WHERE id=$1`,
		j.ID, domain.JobRunning, j.Attempts, now); err != nil {
		return domain.Job{}, false, fmt.Errorf("op=job.claim_next.update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Job{}, false, fmt.Errorf("op=job.claim_next.commit: %w", err)
	}
	committed = true

	j.Status = domain.JobRunning
	j.UpdatedAt = now
	return j, true, nil
}

// Enqueue inserts a new queued job, rejecting if a non-terminal job of the
// same (batch_id, clip_id, type) already exists (spec §4.1: at most one
// non-terminal job per stage).
func (r *JobRepo) Enqueue(ctx domain.Context, batchID string, clipID *string, jobType domain.JobType, payload map[string]any) (string, error) {
	ctx, end := span(ctx, "repo.jobs", "jobs.Enqueue", "INSERT", "jobs")
	defer end()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=job.enqueue.marshal: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	q := `INSERT INTO jobs (id, batch_id, clip_id, type, status, attempts, payload, error, created_at, updated_at)
	      SELECT $1,$2,$3,$4,$5,0,$6,'',$7,$7
	      WHERE NOT EXISTS (
	        SELECT 1 FROM jobs
	        WHERE batch_id=$2 AND clip_id IS NOT DISTINCT FROM $3 AND type=$4 AND status IN ($5,$8)
	      )`
	tag, err := r.Pool.Exec(ctx, q, id, batchID, clipID, jobType, domain.JobQueued, payloadJSON, now, domain.JobRunning)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("op=job.enqueue: %w", domain.ErrConflict)
		}
		return "", fmt.Errorf("op=job.enqueue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("op=job.enqueue: %w", domain.ErrConflict)
	}
	return id, nil
}

// Get loads a job by id.
func (r *JobRepo) Get(ctx domain.Context, id string) (domain.Job, error) {
	ctx, end := span(ctx, "repo.jobs", "jobs.Get", "SELECT", "jobs")
	defer end()
	q := `SELECT id, batch_id, clip_id, type, status, attempts, payload, COALESCE(error,''), created_at, updated_at FROM jobs WHERE id=$1`
	j, err := scanJob(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Job{}, fmt.Errorf("op=job.get: %w", domain.ErrNotFound)
		}
		return domain.Job{}, fmt.Errorf("op=job.get: %w", err)
	}
	return j, nil
}

// FinishDone marks a job done.
func (r *JobRepo) FinishDone(ctx domain.Context, id string) error {
	ctx, end := span(ctx, "repo.jobs", "jobs.FinishDone", "UPDATE", "jobs")
	defer end()
	_, err := r.Pool.Exec(ctx, `UPDATE jobs SET status=$2, error='', updated_at=$3 WHERE id=$1`,
		id, domain.JobDone, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.finish_done: %w", err)
	}
	return nil
}

// FinishFailed marks a job permanently failed.
func (r *JobRepo) FinishFailed(ctx domain.Context, id string, errMsg string) error {
	ctx, end := span(ctx, "repo.jobs", "jobs.FinishFailed", "UPDATE", "jobs")
	defer end()
	_, err := r.Pool.Exec(ctx, `UPDATE jobs SET status=$2, error=$3, updated_at=$4 WHERE id=$1`,
		id, domain.JobFailed, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.finish_failed: %w", err)
	}
	return nil
}

// Requeue resets a job to queued with the error attached, for a future
// ClaimNext caller to retry (spec §4.2 step 5).
func (r *JobRepo) Requeue(ctx domain.Context, id string, errMsg string) error {
	ctx, end := span(ctx, "repo.jobs", "jobs.Requeue", "UPDATE", "jobs")
	defer end()
	_, err := r.Pool.Exec(ctx, `UPDATE jobs SET status=$2, error=$3, updated_at=$4 WHERE id=$1`,
		id, domain.JobQueued, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.requeue: %w", err)
	}
	return nil
}

// SavePayload merges fields into a running job's payload without changing
// its status.
func (r *JobRepo) SavePayload(ctx domain.Context, id string, payload map[string]any) error {
	ctx, end := span(ctx, "repo.jobs", "jobs.SavePayload", "UPDATE", "jobs")
	defer end()
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("op=job.save_payload.marshal: %w", err)
	}
	_, err = r.Pool.Exec(ctx, `UPDATE jobs SET payload=payload || $2::jsonb, updated_at=$3 WHERE id=$1`, id, payloadJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=job.save_payload: %w", err)
	}
	return nil
}

// ListByBatchAndType returns all jobs of a given type for a batch, newest first.
func (r *JobRepo) ListByBatchAndType(ctx domain.Context, batchID string, jobType domain.JobType) ([]domain.Job, error) {
	ctx, end := span(ctx, "repo.jobs", "jobs.ListByBatchAndType", "SELECT", "jobs")
	defer end()
	q := `SELECT id, batch_id, clip_id, type, status, attempts, payload, COALESCE(error,''), created_at, updated_at
	      FROM jobs WHERE batch_id=$1 AND type=$2 ORDER BY created_at DESC`
	return r.queryJobs(ctx, q, batchID, jobType)
}

// DeleteByBatch removes every job belonging to a batch (spec §4.3 step 3: timeout stale batches).
func (r *JobRepo) DeleteByBatch(ctx domain.Context, batchID string) error {
	ctx, end := span(ctx, "repo.jobs", "jobs.DeleteByBatch", "DELETE", "jobs")
	defer end()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM jobs WHERE batch_id=$1`, batchID); err != nil {
		return fmt.Errorf("op=job.delete_by_batch: %w", err)
	}
	return nil
}

// ListStuckRunning returns running jobs whose updated_at predates the
// sweep's cutoff (spec §4.3 step 1: unstick stuck running jobs).
func (r *JobRepo) ListStuckRunning(ctx domain.Context, olderThan time.Time, limit int) ([]domain.Job, error) {
	ctx, end := span(ctx, "repo.jobs", "jobs.ListStuckRunning", "SELECT", "jobs")
	defer end()
	q := `SELECT id, batch_id, clip_id, type, status, attempts, payload, COALESCE(error,''), created_at, updated_at
	      FROM jobs WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3`
	return r.queryJobs(ctx, q, domain.JobRunning, olderThan, limit)
}

// ListTerminalFailed returns jobs that have exhausted retries (spec §4.3 step 2: harvest failed jobs).
func (r *JobRepo) ListTerminalFailed(ctx domain.Context, limit int) ([]domain.Job, error) {
	ctx, end := span(ctx, "repo.jobs", "jobs.ListTerminalFailed", "SELECT", "jobs")
	defer end()
	q := `SELECT id, batch_id, clip_id, type, status, attempts, payload, COALESCE(error,''), created_at, updated_at
	      FROM jobs WHERE status=$1 ORDER BY updated_at ASC LIMIT $2`
	return r.queryJobs(ctx, q, domain.JobFailed, limit)
}

// ListOldDone returns done jobs older than the retention cutoff (spec §4.3 step 6: purge old done jobs).
func (r *JobRepo) ListOldDone(ctx domain.Context, olderThan time.Time, limit int) ([]domain.Job, error) {
	ctx, end := span(ctx, "repo.jobs", "jobs.ListOldDone", "SELECT", "jobs")
	defer end()
	q := `SELECT id, batch_id, clip_id, type, status, attempts, payload, COALESCE(error,''), created_at, updated_at
	      FROM jobs WHERE status=$1 AND updated_at < $2 ORDER BY updated_at ASC LIMIT $3`
	return r.queryJobs(ctx, q, domain.JobDone, olderThan, limit)
}

// DeleteTerminal deletes the given job ids outright.
func (r *JobRepo) DeleteTerminal(ctx domain.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, end := span(ctx, "repo.jobs", "jobs.DeleteTerminal", "DELETE", "jobs")
	defer end()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM jobs WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("op=job.delete_terminal: %w", err)
	}
	return nil
}

// Ping verifies connectivity for readiness checks.
func (r *JobRepo) Ping(ctx domain.Context) error {
	row := r.Pool.QueryRow(ctx, `SELECT 1`)
	var one int
	if err := row.Scan(&one); err != nil {
		return fmt.Errorf("op=job.ping: %w", err)
	}
	return nil
}

func (r *JobRepo) queryJobs(ctx domain.Context, q string, args ...any) ([]domain.Job, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=job.query: %w", err)
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, fmt.Errorf("op=job.query_scan: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=job.query_rows: %w", err)
	}
	return jobs, nil
}

// rowScanner abstracts pgx.Row / pgx.Rows so scanJob can serve both.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (domain.Job, error) {
	return scanJobRows(row)
}

func scanJobRows(row rowScanner) (domain.Job, error) {
	var j domain.Job
	var clipID *string
	var payloadJSON []byte
	if err := row.Scan(&j.ID, &j.BatchID, &clipID, &j.Type, &j.Status, &j.Attempts, &payloadJSON, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return domain.Job{}, err
	}
	j.ClipID = clipID
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &j.Payload); err != nil {
			return domain.Job{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return j, nil
}

var _ domain.JobRepository = (*JobRepo)(nil)
