// Package concurrency implements the advisory-lock + revision-control
// primitives that mediate user interactions against background tasks
// (spec §4.3): one session, one critical section, "user wins" on conflict.
package concurrency

import (
	"context"
	"hash/fnv"
	"time"

	"gorm.io/gorm"
)

// lockKeyMod keeps the derived lock key within PostgreSQL's signed
// 32-bit integer range, mirroring the original `hash(...) mod (2**31-1)`.
const lockKeyMod = int64(1<<31 - 1)

// LockKey derives a stable, bounded advisory-lock key from a session id.
// Collisions across sessions are acceptable — they only serialize
// unrelated work, never corrupt it.
func LockKey(sessionID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	return int64(h.Sum64()%uint64(lockKeyMod)) + 1
}

// Controller owns lock acquisition/release for a single database handle.
type Controller struct {
	db           *gorm.DB
	timeout      time.Duration
	pollInterval time.Duration
}

// New builds a Controller. timeout/pollInterval default to 5s/100ms
// (spec §4.3) when zero.
func New(db *gorm.DB, timeout, pollInterval time.Duration) *Controller {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Controller{db: db, timeout: timeout, pollInterval: pollInterval}
}

// AcquireLock attempts pg_try_advisory_lock, then polls at pollInterval
// until it succeeds or the deadline passes. Returns false (not an error)
// on timeout, per spec §4.3's "returns a failure code without throwing".
func (c *Controller) AcquireLock(ctx context.Context, sessionID string) (bool, error) {
	key := LockKey(sessionID)

	acquired, err := c.tryLock(ctx, key)
	if err != nil {
		return false, err
	}
	if acquired {
		return true, nil
	}

	deadline := time.Now().Add(c.timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
			acquired, err := c.tryLock(ctx, key)
			if err != nil {
				return false, err
			}
			if acquired {
				return true, nil
			}
		}
	}
	return false, nil
}

// ReleaseLock releases the advisory lock for sessionID. Safe to call even
// if the lock was never acquired by this process.
func (c *Controller) ReleaseLock(ctx context.Context, sessionID string) error {
	key := LockKey(sessionID)
	return c.db.WithContext(ctx).Exec("SELECT pg_advisory_unlock(?)", key).Error
}

func (c *Controller) tryLock(ctx context.Context, key int64) (bool, error) {
	var acquired bool
	err := c.db.WithContext(ctx).Raw("SELECT pg_try_advisory_lock(?)", key).Scan(&acquired).Error
	return acquired, err
}
