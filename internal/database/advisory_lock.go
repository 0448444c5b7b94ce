package database

import (
	"context"
	"fmt"
)

// WithAdvisoryLock runs fn only if this process holds the pg advisory lock for
// key. The lock is session-scoped, so the connection is pinned for the whole
// call. When another instance holds the lock the call returns (false, nil)
// without running fn.
func (db *DB) WithAdvisoryLock(ctx context.Context, key int64, fn func(ctx context.Context) error) (bool, error) {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var acquired bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired); err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		return false, nil
	}
	defer func() {
		var unlocked bool
		_ = conn.QueryRow(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, key).Scan(&unlocked)
	}()

	return true, fn(ctx)
}
