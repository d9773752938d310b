package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/0001_init.sql
var initSchema string

// Migrate applies the schema idempotently. Every statement in
// migrations/0001_init.sql uses IF NOT EXISTS, so re-running it on an
// already-migrated database is a no-op.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, initSchema); err != nil {
		return fmt.Errorf("op=postgres.migrate: %w", err)
	}
	return nil
}
