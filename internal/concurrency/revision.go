package concurrency

import (
	"context"
	"time"

	"github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/logging"
	"github.com/siddhantprateek/reefline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrConcurrentModification is the sentinel message surfaced to callers
// when a non-user-initiated update loses a revision race (spec §4.3, P5).
const ErrConcurrentModification = "Concurrent modification detected"

// UpdateResult is the outcome of ApplyWithRevision.
type UpdateResult struct {
	OK      bool
	Session *models.Session
	Error   string
}

// ApplyWithRevision compares expectedRevision against the session's
// stored revision under the caller's already-held advisory lock:
//   - equal                          → apply, bump revision, commit.
//   - unequal && userInitiated       → apply anyway (user wins), warn.
//   - unequal && !userInitiated      → refuse, leave session untouched.
func (c *Controller) ApplyWithRevision(
	ctx context.Context,
	sessionID string,
	expectedRevision *int,
	newState state.Bag,
	currentNodeID string,
	userInitiated bool,
) UpdateResult {
	var sess models.Session
	if err := c.db.WithContext(ctx).Where("id = ?", sessionID).First(&sess).Error; err != nil {
		return UpdateResult{OK: false, Error: "Session not found"}
	}

	if expectedRevision != nil && sess.Revision != *expectedRevision {
		if userInitiated {
			logging.WithFields(logrus.Fields{
				"session_id":        sessionID,
				"expected_revision": *expectedRevision,
				"current_revision":  sess.Revision,
			}).Warn("user interaction overriding background update")
		} else {
			logging.WithFields(logrus.Fields{
				"session_id":        sessionID,
				"expected_revision": *expectedRevision,
				"current_revision":  sess.Revision,
			}).Info("background task skipped due to concurrent user activity")
			return UpdateResult{OK: false, Session: &sess, Error: ErrConcurrentModification}
		}
	}

	sess.State = models.JSONMap(newState)
	sess.LastActivityAt = time.Now().UTC()
	if currentNodeID != "" {
		sess.CurrentNodeID = currentNodeID
	}
	sess.Revision++

	if err := c.db.WithContext(ctx).Save(&sess).Error; err != nil {
		return UpdateResult{OK: false, Error: "Update error: " + err.Error()}
	}

	return UpdateResult{OK: true, Session: &sess}
}

// WithTx returns a Controller bound to tx instead of the base db handle,
// so ApplyWithRevision participates in the caller's transaction.
func (c *Controller) WithTx(tx *gorm.DB) *Controller {
	return &Controller{db: tx, timeout: c.timeout, pollInterval: c.pollInterval}
}
