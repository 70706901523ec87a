package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"gorm.io/gorm"
)

// DefaultAttempts bounds how often a transactional closure runs before giving up.
const DefaultAttempts = 3

// RetryPolicy controls RunInTx. IsTransient decides which failures restart the
// whole closure; anything else is returned to the caller unchanged.
type RetryPolicy struct {
	Attempts       int
	AttemptTimeout time.Duration
	IsTransient    func(error) bool
	OnRetry        func(attempt int, err error)
}

// DefaultRetryPolicy retries serialization failures, deadlocks and attempt timeouts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:    DefaultAttempts,
		IsTransient: IsTransient,
	}
}

// ErrAttemptTimeout marks an attempt that hit RetryPolicy.AttemptTimeout.
var ErrAttemptTimeout = errors.New("transaction attempt timed out")

// RunInTx executes fn inside a snapshot-isolated transaction and replays the
// entire closure when it fails with a transient error. Exhausting the budget
// yields a TRANSIENT_STORAGE error wrapping the last failure.
func RunInTx(ctx context.Context, conn *gorm.DB, policy RetryPolicy, fn func(tx *gorm.DB) error) error {
	if conn == nil {
		return fmt.Errorf("db connection required")
	}
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	classify := policy.IsTransient
	if classify == nil {
		classify = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = runAttempt(ctx, conn, policy.AttemptTimeout, fn)
		if lastErr == nil {
			return nil
		}
		if !classify(lastErr) {
			return lastErr
		}
		if policy.OnRetry != nil && attempt < attempts {
			policy.OnRetry(attempt, lastErr)
		}
	}

	return pkgerrors.Wrap(pkgerrors.CodeTransientStorage, lastErr,
		fmt.Sprintf("transaction failed after %d attempts", attempts)).
		WithReason(pkgerrors.ReasonRetryExhausted)
}

func runAttempt(ctx context.Context, conn *gorm.DB, timeout time.Duration, fn func(tx *gorm.DB) error) error {
	attemptCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	err := conn.WithContext(attemptCtx).Transaction(fn, txOptions(conn)...)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrAttemptTimeout, err)
	}
	return err
}

// txOptions picks REPEATABLE READ (snapshot isolation) on Postgres. SQLite
// transactions are already serializable.
func txOptions(conn *gorm.DB) []*sql.TxOptions {
	if conn.Dialector != nil && conn.Dialector.Name() == "postgres" {
		return []*sql.TxOptions{{Isolation: sql.LevelRepeatableRead}}
	}
	return nil
}
