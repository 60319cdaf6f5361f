// Package events implements the durable half of Event Dispatch (spec
// §4.8): a transactional outbox written inside the originating change's
// transaction, drained by a polling dispatcher, plus a thin LISTEN/NOTIFY
// bridge for the best-effort low-latency rail.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
	"gorm.io/gorm"
)

// noopEventTypes are session mutations that change only last_activity_at
// (spec §4.8, P8 scenario 7 — NOTIFY/outbox suppression on no-op update).
// Outbox writes never see these: callers only invoke Emit for an actual
// domain event, so this set exists purely as the documented contract
// flow/session services rely on before calling Emit at all.
var noopEventTypes = map[string]bool{}

// Outbox is the gorm-backed EventOutbox repository. It satisfies both
// flow.OutboxWriter and session.OutboxWriter without either package
// importing this one, avoiding an import cycle.
type Outbox struct {
	destination string
}

// NewOutbox builds an Outbox. destination is the default channel/queue
// name carried on every row (spec §4.8 rail 2); empty falls back to
// "flow_events".
func NewOutbox(destination string) *Outbox {
	if destination == "" {
		destination = "flow_events"
	}
	return &Outbox{destination: destination}
}

// Emit inserts one EventOutbox row inside tx, the same transaction as the
// mutation that produced the event (spec §4.8's "written in the same
// transaction" invariant, and P8's per-session ordering guarantee).
func (o *Outbox) Emit(tx *gorm.DB, eventType string, payload map[string]interface{}) error {
	if noopEventTypes[eventType] {
		return nil
	}
	row := models.EventOutbox{
		ID:          uuid.NewString(),
		EventType:   eventType,
		Payload:     models.JSONMap(payload),
		Destination: o.destination,
		Priority:    "normal",
		CreatedAt:   time.Now().UTC(),
		Attempts:    0,
	}
	if err := tx.Create(&row).Error; err != nil {
		return apperr.Internal("writing outbox row", err)
	}
	return nil
}

// ClaimPending selects up to limit undelivered rows, oldest first (spec
// §4.8's "polls pending rows (oldest first)"). Multi-worker deployments
// would need a SELECT ... FOR UPDATE SKIP LOCKED claim here; this
// single-worker dispatcher just reads them directly.
func ClaimPending(db *gorm.DB, limit int) ([]models.EventOutbox, error) {
	var rows []models.EventOutbox
	err := db.Where("delivered_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Internal("claiming pending outbox rows", err)
	}
	return rows, nil
}

// MarkDelivered sets delivered_at on a successfully-delivered row.
func MarkDelivered(db *gorm.DB, id string) error {
	err := db.Model(&models.EventOutbox{}).Where("id = ?", id).
		Update("delivered_at", time.Now().UTC()).Error
	if err != nil {
		return apperr.Internal("marking outbox row delivered", err)
	}
	return nil
}

// MarkFailed increments attempts and records the error, leaving the row
// pending for a later delivery attempt (at-least-once semantics).
func MarkFailed(db *gorm.DB, id string, deliveryErr error) error {
	msg := deliveryErr.Error()
	err := db.Model(&models.EventOutbox{}).Where("id = ?", id).Updates(map[string]interface{}{
		"attempts":   gorm.Expr("attempts + 1"),
		"last_error": msg,
	}).Error
	if err != nil {
		return apperr.Internal("marking outbox row failed", err)
	}
	return nil
}

// PurgeDelivered truncates delivered rows older than olderThan, an
// implementation-defined retention (cmd/worker passes 7 days).
func PurgeDelivered(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res := db.Where("delivered_at IS NOT NULL AND delivered_at < ?", cutoff).Delete(&models.EventOutbox{})
	if res.Error != nil {
		return 0, apperr.Internal("purging delivered outbox rows", res.Error)
	}
	return res.RowsAffected, nil
}
