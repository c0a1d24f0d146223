package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// finalizeTimeout bounds commit and rollback, which run on a context that
// ignores caller cancellation.
const finalizeTimeout = 10 * time.Second

// ErrNotFoundForUpdate is returned when an UPDATE matches no row.
var ErrNotFoundForUpdate = errors.New("no row to update")

// WriteFailure reports the operation that failed. The transaction was rolled
// back and nothing from the batch is visible.
type WriteFailure struct {
	Index int
	Op    WriteOperation
	Err   error
}

func (e *WriteFailure) Error() string {
	if e.Op.Kind == "" {
		return fmt.Sprintf("write %d: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("write %d (%s %s mls=%s): %v", e.Index, e.Op.Kind, e.Op.Table, e.Op.Key, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

// FatalRollbackFailure is returned when a failed batch could not be rolled
// back. The state of the transaction is unknown and must not be retried
// automatically. It wraps both the original failure and the rollback error,
// so errors.As for *WriteFailure also matches; check for this type first.
type FatalRollbackFailure struct {
	Cause       error
	RollbackErr error
}

func (e *FatalRollbackFailure) Error() string {
	return fmt.Sprintf("rollback failed after %v: %v", e.Cause, e.RollbackErr)
}

func (e *FatalRollbackFailure) Unwrap() []error { return []error{e.Cause, e.RollbackErr} }

// applyBatch runs batch inside a single transaction on c. Cancellation of ctx
// is honoured up to the commit; commit and rollback themselves always run.
func applyBatch(ctx context.Context, c dbConn, d dialect, batch Batch) error {
	if len(batch) == 0 {
		return nil
	}
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	tx, err := c.begin(finalCtx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	for i := range batch {
		op := batch[i]
		if err := ctx.Err(); err != nil {
			return rollback(finalCtx, tx, &WriteFailure{Index: i, Op: op, Err: err})
		}

		query, args := op.toSQL()
		n, err := tx.exec(ctx, d.rebind(query), args...)
		if err != nil {
			return rollback(finalCtx, tx, &WriteFailure{Index: i, Op: op, Err: err})
		}
		if op.Kind == OpUpdate && n == 0 {
			return rollback(finalCtx, tx, &WriteFailure{Index: i, Op: op, Err: ErrNotFoundForUpdate})
		}
	}

	// Failures past the last operation carry Index len(batch).
	if err := ctx.Err(); err != nil {
		return rollback(finalCtx, tx, &WriteFailure{Index: len(batch), Err: fmt.Errorf("before commit: %w", err)})
	}

	if err := tx.commit(finalCtx); err != nil {
		return &WriteFailure{Index: len(batch), Err: fmt.Errorf("committing transaction: %w", err)}
	}
	return nil
}

// rollback undoes tx after cause. A rollback error on a transaction the
// driver or server already discarded is not fatal: nothing was committed.
func rollback(ctx context.Context, tx dbTx, cause error) error {
	if err := tx.rollback(ctx); err != nil {
		if tx.discarded(err) {
			return cause
		}
		return &FatalRollbackFailure{Cause: cause, RollbackErr: err}
	}
	return cause
}
