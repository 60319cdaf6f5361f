package events

import (
	"context"
	"math"
	"time"

	"github.com/siddhantprateek/reefline/internal/queue"
	"github.com/siddhantprateek/reefline/pkg/logging"
	"github.com/siddhantprateek/reefline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// deliverJobType is the queue.Queue job type the Dispatcher enqueues one
// outbox row under. A downstream consumer drains this job type the same
// way it would drain any other queue.Queue handler.
const deliverJobType = "event_outbox_delivery"

// maxBackoff bounds the exponential retry delay spec §6 asks for
// ("exponential backoff up to an implementation-chosen cap").
const maxBackoff = 5 * time.Minute

// deliveryPayload is what the Dispatcher enqueues onto queue.Queue for
// each outbox row; a downstream handler decodes this to perform the
// actual delivery.
type deliveryPayload struct {
	OutboxID    string                 `json:"outbox_id"`
	EventType   string                 `json:"event_type"`
	Destination string                 `json:"destination"`
	Payload     map[string]interface{} `json:"payload"`
}

// Dispatcher polls EventOutbox for undelivered rows and hands each to a
// queue.Queue for at-least-once delivery (spec §4.8 rail 2). It assumes
// a single worker; multi-worker deployments need a claim mechanism
// (row-level skip-locked select) this implementation does not provide.
type Dispatcher struct {
	db       *gorm.DB
	q        queue.Queue
	interval time.Duration
	batch    int
	quit     chan struct{}
}

// NewDispatcher builds a Dispatcher. pollInterval defaults to 500ms,
// batch to 50, when zero.
func NewDispatcher(db *gorm.DB, q queue.Queue, pollInterval time.Duration, batch int) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if batch <= 0 {
		batch = 50
	}
	return &Dispatcher{db: db, q: q, interval: pollInterval, batch: batch, quit: make(chan struct{})}
}

// RegisterDeliveryHandler wires the actual delivery logic (e.g. a fan-out
// to subscribers) behind the queue job the Dispatcher enqueues. Callers
// that don't need in-process delivery (e.g. the queue just bridges to an
// external broker) may skip this and let the queue's own transport carry
// the payload.
func (d *Dispatcher) RegisterDeliveryHandler(handler func(ctx context.Context, payload []byte) error) {
	d.q.RegisterHandler(deliverJobType, handler)
}

// Run polls until the context is cancelled or Stop is called.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.quit:
			return
		case <-ticker.C:
			if err := d.drainOnce(ctx); err != nil {
				logging.WithFields(logrus.Fields{"error": err}).Error("outbox dispatch cycle failed")
			}
		}
	}
}

// Stop halts Run's poll loop.
func (d *Dispatcher) Stop() { close(d.quit) }

// drainOnce claims up to batch pending rows (oldest first) and enqueues
// each, respecting a per-row exponential backoff keyed off its attempt
// count so a chronically-failing row doesn't starve the queue (spec §6).
func (d *Dispatcher) drainOnce(ctx context.Context) error {
	rows, err := ClaimPending(d.db, d.batch)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if !backoffElapsed(row) {
			continue
		}

		_, enqueueErr := d.q.Enqueue(ctx, deliverJobType, deliveryPayload{
			OutboxID:    row.ID,
			EventType:   row.EventType,
			Destination: row.Destination,
			Payload:     map[string]interface{}(row.Payload),
		})

		if enqueueErr != nil {
			logging.WithFields(logrus.Fields{"outbox_id": row.ID, "error": enqueueErr}).
				Warn("outbox row enqueue failed, will retry")
			if markErr := MarkFailed(d.db, row.ID, enqueueErr); markErr != nil {
				return markErr
			}
			continue
		}
		if markErr := MarkDelivered(d.db, row.ID); markErr != nil {
			return markErr
		}
	}
	return nil
}

// backoffElapsed reports whether enough time has passed since row's last
// attempt (approximated by created_at, since the model doesn't carry a
// distinct last-attempt timestamp) for another delivery try.
func backoffElapsed(row models.EventOutbox) bool {
	if row.Attempts == 0 {
		return true
	}
	return time.Since(row.CreatedAt) >= backoffDelay(row.Attempts)
}

// backoffDelay computes the exponential delay for a given attempt count,
// capped at maxBackoff.
func backoffDelay(attempts int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempts))) * time.Second
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
