package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clipforge/clipforge/internal/domain"
)

// BatchRepo persists and loads batches from PostgreSQL.
type BatchRepo struct{ Pool PgxPool }

// NewBatchRepo constructs a BatchRepo with the given pool.
func NewBatchRepo(p PgxPool) *BatchRepo { return &BatchRepo{Pool: p} }

// CreateBatchWithClips atomically debits the user, inserts the batch row,
// inserts BatchSize clip rows, and inserts the root compile/image_compile
// job, all within one read-committed transaction that locks the user's
// balance row FOR UPDATE, so a mid-way crash
// never leaves a charged user without a queued batch (spec §4.1).
func (r *BatchRepo) CreateBatchWithClips(ctx domain.Context, p domain.NewBatchParams) (domain.Batch, []domain.Clip, error) {
	ctx, end := span(ctx, "repo.batches", "batches.CreateBatchWithClips", "INSERT", "batches")
	defer end()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.Batch{}, nil, fmt.Errorf("op=batch.create.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var balance int64
	row := tx.QueryRow(ctx, `SELECT balance_cents FROM credit_balances WHERE user_id=$1 FOR UPDATE`, p.UserID)
	if err := row.Scan(&balance); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Batch{}, nil, fmt.Errorf("op=batch.create.balance: %w", domain.ErrInsufficientCredits)
		}
		return domain.Batch{}, nil, fmt.Errorf("op=batch.create.balance: %w", err)
	}
	if balance < p.EstimatedCostCents {
		return domain.Batch{}, nil, fmt.Errorf("op=batch.create.balance: %w", domain.ErrInsufficientCredits)
	}
	if _, err := tx.Exec(ctx, `UPDATE credit_balances SET balance_cents = balance_cents - $2, updated_at=$3 WHERE user_id=$1`,
		p.UserID, p.EstimatedCostCents, time.Now().UTC()); err != nil {
		return domain.Batch{}, nil, fmt.Errorf("op=batch.create.debit: %w", err)
	}

	now := time.Now().UTC()
	b := domain.Batch{
		ID:                 uuid.New().String(),
		UserID:             p.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
		IntentText:         p.IntentText,
		PresetKey:          p.PresetKey,
		Mode:               p.Mode,
		OutputType:         p.OutputType,
		BatchSize:          p.BatchSize,
		QualityMode:        p.QualityMode,
		VideoService:       p.VideoService,
		EstimatedCostCents: p.EstimatedCostCents,
		UserChargeCents:    p.EstimatedCostCents,
		Status:             domain.BatchQueued,
		NeedsResearch:      p.NeedsResearch,
	}
	_, err = tx.Exec(ctx, `INSERT INTO batches
		(id, user_id, created_at, updated_at, intent_text, preset_key, mode, output_type, batch_size,
		 quality_mode, video_service, estimated_cost_cents, user_charge_cents, status, error, needs_research, trend_analysis, refunded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,'',$15,'',NULL)`,
		b.ID, b.UserID, b.CreatedAt, b.UpdatedAt, b.IntentText, b.PresetKey, b.Mode, b.OutputType, b.BatchSize,
		b.QualityMode, b.VideoService, b.EstimatedCostCents, b.UserChargeCents, b.Status, b.NeedsResearch)
	if err != nil {
		return domain.Batch{}, nil, fmt.Errorf("op=batch.create.insert_batch: %w", err)
	}

	clips := make([]domain.Clip, 0, p.BatchSize)
	priceCents := p.EstimatedCostCents / int64(p.BatchSize)
	for i := 1; i <= p.BatchSize; i++ {
		c := domain.Clip{
			ID:           uuid.New().String(),
			BatchID:      b.ID,
			VariantID:    fmt.Sprintf("V%02d", i),
			PresetKey:    p.PresetKey,
			Status:       domain.ClipPlanned,
			VideoService: p.VideoService,
			PriceCents:   priceCents,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, err = tx.Exec(ctx, `INSERT INTO clips
			(id, batch_id, variant_id, preset_key, status, script_spoken, on_screen_text, sora_prompt,
			 voice_url, raw_video_url, final_url, image_url, image_prompt, winner, killed, provider,
			 video_service, error, deleted_at, price_cents, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,'','[]','','','','','','',false,false,'',$6,'',NULL,$7,$8,$8)`,
			c.ID, c.BatchID, c.VariantID, c.PresetKey, c.Status, c.VideoService, c.PriceCents, c.CreatedAt)
		if err != nil {
			return domain.Batch{}, nil, fmt.Errorf("op=batch.create.insert_clip: %w", err)
		}
		clips = append(clips, c)
	}

	rootType := domain.JobCompile
	if p.OutputType == domain.OutputImage {
		rootType = domain.JobImageCompile
	}
	if _, err := tx.Exec(ctx, `INSERT INTO jobs (id, batch_id, clip_id, type, status, attempts, payload, error, created_at, updated_at)
		VALUES ($1,$2,NULL,$3,$4,0,'{}','',$5,$5)`,
		uuid.New().String(), b.ID, rootType, domain.JobQueued, now); err != nil {
		return domain.Batch{}, nil, fmt.Errorf("op=batch.create.insert_root_job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Batch{}, nil, fmt.Errorf("op=batch.create.commit: %w", err)
	}
	committed = true
	return b, clips, nil
}

// Get loads a batch by id.
func (r *BatchRepo) Get(ctx domain.Context, id string) (domain.Batch, error) {
	ctx, end := span(ctx, "repo.batches", "batches.Get", "SELECT", "batches")
	defer end()
	q := `SELECT id, user_id, created_at, updated_at, intent_text, preset_key, mode, output_type, batch_size,
	      quality_mode, video_service, estimated_cost_cents, user_charge_cents, status, COALESCE(error,''),
	      needs_research, COALESCE(trend_analysis,''), refunded_at FROM batches WHERE id=$1`
	b, err := scanBatch(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Batch{}, fmt.Errorf("op=batch.get: %w", domain.ErrNotFound)
		}
		return domain.Batch{}, fmt.Errorf("op=batch.get: %w", err)
	}
	return b, nil
}

// List returns a page of a user's batches, newest first.
func (r *BatchRepo) List(ctx domain.Context, userID string, offset, limit int) ([]domain.Batch, error) {
	ctx, end := span(ctx, "repo.batches", "batches.List", "SELECT", "batches")
	defer end()
	q := `SELECT id, user_id, created_at, updated_at, intent_text, preset_key, mode, output_type, batch_size,
	      quality_mode, video_service, estimated_cost_cents, user_charge_cents, status, COALESCE(error,''),
	      needs_research, COALESCE(trend_analysis,''), refunded_at FROM batches WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.Pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("op=batch.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Batch
	for rows.Next() {
		b, err := scanBatchRows(rows)
		if err != nil {
			return nil, fmt.Errorf("op=batch.list_scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateStatus performs a guarded, non-regressing status transition: once a
// batch reaches a terminal status it never changes again (spec §3).
func (r *BatchRepo) UpdateStatus(ctx domain.Context, id string, status domain.BatchStatus, errMsg string) error {
	ctx, end := span(ctx, "repo.batches", "batches.UpdateStatus", "UPDATE", "batches")
	defer end()
	q := `UPDATE batches SET status=$2, error=$3, updated_at=$4
	      WHERE id=$1 AND status NOT IN ($5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, id, status, errMsg, time.Now().UTC(), domain.BatchDone, domain.BatchFailed, domain.BatchCancelled)
	if err != nil {
		return fmt.Errorf("op=batch.update_status: %w", err)
	}
	return nil
}

// SetTrendAnalysis writes the research stage's analysis back onto the batch.
func (r *BatchRepo) SetTrendAnalysis(ctx domain.Context, id string, trendAnalysis string) error {
	ctx, end := span(ctx, "repo.batches", "batches.SetTrendAnalysis", "UPDATE", "batches")
	defer end()
	_, err := r.Pool.Exec(ctx, `UPDATE batches SET trend_analysis=$2, updated_at=$3 WHERE id=$1`, id, trendAnalysis, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=batch.set_trend_analysis: %w", err)
	}
	return nil
}

// MarkRefunded flags a batch as refunded so RefundBatch is never double-applied.
func (r *BatchRepo) MarkRefunded(ctx domain.Context, id string) error {
	ctx, end := span(ctx, "repo.batches", "batches.MarkRefunded", "UPDATE", "batches")
	defer end()
	_, err := r.Pool.Exec(ctx, `UPDATE batches SET refunded_at=$2 WHERE id=$1 AND refunded_at IS NULL`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=batch.mark_refunded: %w", err)
	}
	return nil
}

// IsRefunded reports whether RefundBatch has already run for this batch.
func (r *BatchRepo) IsRefunded(ctx domain.Context, id string) (bool, error) {
	ctx, end := span(ctx, "repo.batches", "batches.IsRefunded", "SELECT", "batches")
	defer end()
	var refundedAt *time.Time
	row := r.Pool.QueryRow(ctx, `SELECT refunded_at FROM batches WHERE id=$1`, id)
	if err := row.Scan(&refundedAt); err != nil {
		if err == pgx.ErrNoRows {
			return false, fmt.Errorf("op=batch.is_refunded: %w", domain.ErrNotFound)
		}
		return false, fmt.Errorf("op=batch.is_refunded: %w", err)
	}
	return refundedAt != nil, nil
}

// CheckComplete transitions the batch to done (if any clip is ready) or
// failed (if every clip failed) once every clip has reached a terminal
// status. It is safe to call from many concurrent stage handlers: the
// UPDATE is guarded against already-terminal batches, so only the call
// that makes the transition gets true back, and the COUNT(*) WHERE NOT
// terminal predicate makes the read race-safe (spec §4.1).
func (r *BatchRepo) CheckComplete(ctx domain.Context, id string) (domain.BatchStatus, bool, error) {
	ctx, end := span(ctx, "repo.batches", "batches.CheckComplete", "SELECT", "clips")
	defer end()

	var pending, ready int64
	row := r.Pool.QueryRow(ctx, `SELECT
		COUNT(*) FILTER (WHERE status NOT IN ($2,$3)),
		COUNT(*) FILTER (WHERE status=$2)
		FROM clips WHERE batch_id=$1`, id, domain.ClipReady, domain.ClipFailed)
	if err := row.Scan(&pending, &ready); err != nil {
		return "", false, fmt.Errorf("op=batch.check_complete.count: %w", err)
	}
	if pending > 0 {
		return "", false, nil
	}
	final := domain.BatchFailed
	if ready > 0 {
		final = domain.BatchDone
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE batches SET status=$2, error='', updated_at=$3
	      WHERE id=$1 AND status NOT IN ($4,$5,$6)`,
		id, final, time.Now().UTC(), domain.BatchDone, domain.BatchFailed, domain.BatchCancelled)
	if err != nil {
		return "", false, fmt.Errorf("op=batch.check_complete.update: %w", err)
	}
	return final, tag.RowsAffected() > 0, nil
}

// ListStale returns non-terminal batches past the incomplete-batch
// threshold (spec §4.3 step 3: timeout stale batches).
func (r *BatchRepo) ListStale(ctx domain.Context, olderThan time.Time, limit int) ([]domain.Batch, error) {
	ctx, end := span(ctx, "repo.batches", "batches.ListStale", "SELECT", "batches")
	defer end()
	q := `SELECT id, user_id, created_at, updated_at, intent_text, preset_key, mode, output_type, batch_size,
	      quality_mode, video_service, estimated_cost_cents, user_charge_cents, status, COALESCE(error,''),
	      needs_research, COALESCE(trend_analysis,''), refunded_at
	      FROM batches WHERE status NOT IN ($2,$3,$4) AND updated_at < $5 ORDER BY updated_at ASC LIMIT $6`
	return r.queryBatches(ctx, q, domain.BatchDone, domain.BatchFailed, domain.BatchCancelled, olderThan, limit)
}

// ListAncientFailed returns failed/cancelled batches past the purge
// threshold (spec §4.3 step 4: purge ancient failed batches).
func (r *BatchRepo) ListAncientFailed(ctx domain.Context, olderThan time.Time, limit int) ([]domain.Batch, error) {
	ctx, end := span(ctx, "repo.batches", "batches.ListAncientFailed", "SELECT", "batches")
	defer end()
	q := `SELECT id, user_id, created_at, updated_at, intent_text, preset_key, mode, output_type, batch_size,
	      quality_mode, video_service, estimated_cost_cents, user_charge_cents, status, COALESCE(error,''),
	      needs_research, COALESCE(trend_analysis,''), refunded_at
	      FROM batches WHERE status IN ($2,$3) AND updated_at < $4 ORDER BY updated_at ASC LIMIT $5`
	return r.queryBatches(ctx, q, domain.BatchFailed, domain.BatchCancelled, olderThan, limit)
}

// Delete removes a batch row outright; its clips and jobs go with it through the ON DELETE CASCADE foreign keys.
func (r *BatchRepo) Delete(ctx domain.Context, id string) error {
	ctx, end := span(ctx, "repo.batches", "batches.Delete", "DELETE", "batches")
	defer end()
	if _, err := r.Pool.Exec(ctx, `DELETE FROM batches WHERE id=$1`, id); err != nil {
		return fmt.Errorf("op=batch.delete: %w", err)
	}
	return nil
}

// Ping verifies connectivity for readiness checks.
func (r *BatchRepo) Ping(ctx domain.Context) error {
	var one int
	if err := r.Pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("op=batch.ping: %w", err)
	}
	return nil
}

func (r *BatchRepo) queryBatches(ctx domain.Context, q string, args ...any) ([]domain.Batch, error) {
	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=batch.query: %w", err)
	}
	defer rows.Close()
	var out []domain.Batch
	for rows.Next() {
		b, err := scanBatchRows(rows)
		if err != nil {
			return nil, fmt.Errorf("op=batch.query_scan: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBatch(row rowScanner) (domain.Batch, error)     { return scanBatchRows(row) }
func scanBatchRows(row rowScanner) (domain.Batch, error) {
	var b domain.Batch
	if err := row.Scan(&b.ID, &b.UserID, &b.CreatedAt, &b.UpdatedAt, &b.IntentText, &b.PresetKey, &b.Mode,
		&b.OutputType, &b.BatchSize, &b.QualityMode, &b.VideoService, &b.EstimatedCostCents, &b.UserChargeCents,
		&b.Status, &b.Error, &b.NeedsResearch, &b.TrendAnalysis, &b.RefundedAt); err != nil {
		return domain.Batch{}, err
	}
	return b, nil
}

var _ domain.BatchRepository = (*BatchRepo)(nil)
