package events

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/siddhantprateek/reefline/pkg/logging"
	"github.com/sirupsen/logrus"
)

// Notification is one decoded payload received on the LISTEN channel
// (spec §4.8 rail 1's JSON object: event_type, session_id, flow_id, ...).
type Notification struct {
	EventType string                 `json:"event_type"`
	Raw       map[string]interface{} `json:"-"`
}

// Listener holds a dedicated pgx connection subscribed to a Postgres
// NOTIFY channel. A dedicated connection is required: LISTEN state is
// per-connection and cannot share gorm's pool.
type Listener struct {
	conn    *pgx.Conn
	channel string
}

// NewListener opens a fresh connection (bypassing the GORM pool, per
// pgx's LISTEN/NOTIFY model) and issues LISTEN on channel.
func NewListener(ctx context.Context, dsn, channel string) (*Listener, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN \""+channel+"\""); err != nil {
		_ = conn.Close(ctx)
		return nil, err
	}
	return &Listener{conn: conn, channel: channel}, nil
}

// Run blocks, invoking handler for each notification received, until ctx
// is cancelled. Malformed payloads are logged and skipped; this rail is
// best-effort (spec §4.8) so a bad payload must not stall the loop.
func (l *Listener) Run(ctx context.Context, handler func(Notification)) error {
	for {
		notif, err := l.conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(notif.Payload), &raw); err != nil {
			logging.WithFields(logrus.Fields{"error": err, "payload": notif.Payload}).
				Warn("dropping malformed flow_events notification")
			continue
		}
		eventType, _ := raw["event_type"].(string)
		handler(Notification{EventType: eventType, Raw: raw})
	}
}

// Close releases the dedicated connection.
func (l *Listener) Close(ctx context.Context) error {
	return l.conn.Close(ctx)
}
