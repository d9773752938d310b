package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clipforge/clipforge/internal/domain"
)

// CreditRepo is the per-user prepaid balance ledger (spec §3).
type CreditRepo struct{ Pool PgxPool }

// NewCreditRepo constructs a CreditRepo with the given pool.
func NewCreditRepo(p PgxPool) *CreditRepo { return &CreditRepo{Pool: p} }

// Balance returns a user's current balance in cents.
func (r *CreditRepo) Balance(ctx domain.Context, userID string) (int64, error) {
	ctx, end := span(ctx, "repo.credits", "credits.Balance", "SELECT", "credit_balances")
	defer end()
	var balance int64
	err := r.Pool.QueryRow(ctx, `SELECT balance_cents FROM credit_balances WHERE user_id=$1`, userID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("op=credit.balance: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("op=credit.balance: %w", err)
	}
	return balance, nil
}

// Debit subtracts cents from a user's balance within a transaction that
// never lets the balance go negative (spec §3 invariant).
func (r *CreditRepo) Debit(ctx domain.Context, userID string, cents int64, reason string) error {
	ctx, end := span(ctx, "repo.credits", "credits.Debit", "UPDATE", "credit_balances")
	defer end()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=credit.debit.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var balance int64
	if err := tx.QueryRow(ctx, `SELECT balance_cents FROM credit_balances WHERE user_id=$1 FOR UPDATE`, userID).Scan(&balance); err != nil {
		if err == pgx.ErrNoRows {
			return fmt.Errorf("op=credit.debit.select: %w", domain.ErrInsufficientCredits)
		}
		return fmt.Errorf("op=credit.debit.select: %w", err)
	}
	if balance < cents {
		return fmt.Errorf("op=credit.debit: %w", domain.ErrInsufficientCredits)
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE credit_balances SET balance_cents = balance_cents - $2, updated_at=$3 WHERE user_id=$1`,
		userID, cents, now); err != nil {
		return fmt.Errorf("op=credit.debit.update: %w", err)
	}
	if err := r.insertHistory(ctx, tx, userID, -cents, reason, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=credit.debit.commit: %w", err)
	}
	committed = true
	return nil
}

// Credit adds cents to a user's balance, creating the row if absent.
func (r *CreditRepo) Credit(ctx domain.Context, userID string, cents int64, reason string) error {
	ctx, end := span(ctx, "repo.credits", "credits.Credit", "UPDATE", "credit_balances")
	defer end()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=credit.credit.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	now := time.Now().UTC()
	q := `INSERT INTO credit_balances (user_id, balance_cents, created_at, updated_at)
	      VALUES ($1,$2,$3,$3)
	      ON CONFLICT (user_id) DO UPDATE SET balance_cents = credit_balances.balance_cents + $2, updated_at=$3`
	if _, err := tx.Exec(ctx, q, userID, cents, now); err != nil {
		return fmt.Errorf("op=credit.credit.upsert: %w", err)
	}
	if err := r.insertHistory(ctx, tx, userID, cents, reason, now); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=credit.credit.commit: %w", err)
	}
	committed = true
	return nil
}

// RefundBatch sums price_cents for every non-ready clip in the batch,
// credits the user, and records the refund on the batch row so a retried
// caller never double-refunds (spec §3, §4.1, §4.2.3, property 4).
func (r *CreditRepo) RefundBatch(ctx domain.Context, batchID string) (int64, error) {
	ctx, end := span(ctx, "repo.credits", "credits.RefundBatch", "UPDATE", "credit_balances")
	defer end()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return 0, fmt.Errorf("op=credit.refund_batch.begin_tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var userID string
	var refundedAt *time.Time
	if err := tx.QueryRow(ctx, `SELECT user_id, refunded_at FROM batches WHERE id=$1 FOR UPDATE`, batchID).Scan(&userID, &refundedAt); err != nil {
		if err == pgx.ErrNoRows {
			return 0, fmt.Errorf("op=credit.refund_batch.select_batch: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("op=credit.refund_batch.select_batch: %w", err)
	}
	if refundedAt != nil {
		return 0, nil
	}

	var refundCents int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(price_cents),0) FROM clips WHERE batch_id=$1 AND status != $2`,
		batchID, domain.ClipReady).Scan(&refundCents); err != nil {
		return 0, fmt.Errorf("op=credit.refund_batch.sum: %w", err)
	}

	now := time.Now().UTC()
	if refundCents > 0 {
		q := `INSERT INTO credit_balances (user_id, balance_cents, created_at, updated_at)
		      VALUES ($1,$2,$3,$3)
		      ON CONFLICT (user_id) DO UPDATE SET balance_cents = credit_balances.balance_cents + $2, updated_at=$3`
		if _, err := tx.Exec(ctx, q, userID, refundCents, now); err != nil {
			return 0, fmt.Errorf("op=credit.refund_batch.credit: %w", err)
		}
		if err := r.insertHistory(ctx, tx, userID, refundCents, "batch_refund:"+batchID, now); err != nil {
			return 0, err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE batches SET refunded_at=$2, user_charge_cents = user_charge_cents - $3 WHERE id=$1`,
		batchID, now, refundCents); err != nil {
		return 0, fmt.Errorf("op=credit.refund_batch.mark: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("op=credit.refund_batch.commit: %w", err)
	}
	committed = true
	return refundCents, nil
}

// Ping verifies connectivity for readiness checks.
func (r *CreditRepo) Ping(ctx domain.Context) error {
	var one int
	if err := r.Pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("op=credit.ping: %w", err)
	}
	return nil
}

// insertHistory appends an audit row to credit_history. tx is a pgx.Tx,
// accepted as pgx.Tx directly (not the narrower PgxPool) since it is only
// ever called mid-transaction.
func (r *CreditRepo) insertHistory(ctx domain.Context, tx pgx.Tx, userID string, deltaCents int64, reason string, at time.Time) error {
	_, err := tx.Exec(ctx, `INSERT INTO credit_history (id, user_id, delta_cents, reason, created_at) VALUES ($1,$2,$3,$4,$5)`,
		uuid.New().String(), userID, deltaCents, reason, at)
	if err != nil {
		return fmt.Errorf("op=credit.history.insert: %w", err)
	}
	return nil
}

var _ domain.CreditRepository = (*CreditRepo)(nil)
