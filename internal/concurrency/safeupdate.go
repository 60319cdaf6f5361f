package concurrency

import (
	"context"

	"github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
)

// UpdateFunc computes a session's next state from its current row. It
// MUST be pure — SafeUpdate calls it once, while holding the session lock
// — and MUST NOT perform side effects outside the state it returns.
type UpdateFunc func(session *models.Session) state.Bag

// SafeUpdate is the only supported way to mutate session state outside
// the runtime's own tick loop (spec §4.3, §9 feature supplement): it
// acquires the session's advisory lock, loads the row, applies fn, and
// commits through ApplyWithRevision, releasing the lock on every exit
// path including error.
func (c *Controller) SafeUpdate(ctx context.Context, sessionID string, fn UpdateFunc, userInitiated bool) UpdateResult {
	acquired, err := c.AcquireLock(ctx, sessionID)
	if err != nil {
		return UpdateResult{OK: false, Error: err.Error()}
	}
	if !acquired {
		return UpdateResult{OK: false, Error: "Could not acquire session lock"}
	}
	defer func() { _ = c.ReleaseLock(ctx, sessionID) }()

	var sess models.Session
	if err := c.db.WithContext(ctx).Where("id = ?", sessionID).First(&sess).Error; err != nil {
		return UpdateResult{OK: false, Error: "Session not found"}
	}

	newState := fn(&sess)
	expected := sess.Revision
	return c.ApplyWithRevision(ctx, sessionID, &expected, newState, "", userInitiated)
}

// MustActive returns apperr.Conflict if session is in a terminal state.
func MustActive(session *models.Session) error {
	if session.Status != models.SessionActive {
		return apperr.Conflict("session is in a terminal state")
	}
	return nil
}
