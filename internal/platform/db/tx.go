package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txOptions runs writes at read committed. Consistency comes from the
// FOR UPDATE lock every mutation takes on the parent report row, not from
// snapshot isolation: a transaction that blocked on that lock must see the
// winner's committed state once it acquires it, so it can fall through to
// the lifecycle re-check or the unique index. Under repeatable read the
// blocked transaction would abort with a serialization failure (40001)
// instead of reaching those guards.
var txOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTx executes a function within a transaction. Every write the engine
// performs goes through here so an entry mutation and the totals it implies
// commit or roll back together.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, txOptions)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
