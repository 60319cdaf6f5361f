// Package database owns the GORM/PostgreSQL connection lifecycle: dialing
// with retry, schema migration, and installing the session-mutation NOTIFY
// trigger that backs Event Dispatch's low-latency rail (spec §4.8).
package database

import (
	"fmt"
	"time"

	"github.com/siddhantprateek/reefline/pkg/config"
	"github.com/siddhantprateek/reefline/pkg/logging"
	"github.com/siddhantprateek/reefline/pkg/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to PostgreSQL using cfg, retrying with linear backoff
// since the database and the service often start concurrently under
// docker-compose/k8s.
func Open(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	var db *gorm.DB
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}
		logging.WithFields(logrus.Fields{"attempt": attempt, "error": err}).Warn("database connection attempt failed")
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to database after 5 attempts: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.Log.Info("connected to postgres")
	return db, nil
}

// AutoMigrate creates/updates the tables backing every model in the
// domain (spec §3's Flow/Session/ExecutionStep/EventOutbox families).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Flow{},
		&models.Node{},
		&models.Connection{},
		&models.Session{},
		&models.ConversationHistory{},
		&models.ExecutionStep{},
		&models.TraceAccessAudit{},
		&models.EventOutbox{},
	)
}

// Close releases the pool's underlying connections.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// notifyTriggerSQL implements spec §4.8 rail 1: a trigger function on
// conversation_sessions that NOTIFYs the flow_events channel with a JSON
// payload, and the suppression rule for updates that touch only
// last_activity_at (spec §4.8 scenario 7, P8).
const notifyTriggerSQL = `
CREATE OR REPLACE FUNCTION reefline_notify_session_event() RETURNS trigger AS $$
DECLARE
  evt_type text;
  payload json;
BEGIN
  IF TG_OP = 'INSERT' THEN
    evt_type := 'session_started';
  ELSIF TG_OP = 'DELETE' THEN
    evt_type := 'session_deleted';
  ELSIF OLD.status IS DISTINCT FROM NEW.status THEN
    evt_type := 'session_status_changed';
  ELSIF OLD.current_node_id IS DISTINCT FROM NEW.current_node_id THEN
    evt_type := 'node_changed';
  ELSIF OLD.state IS DISTINCT FROM NEW.state OR OLD.revision IS DISTINCT FROM NEW.revision THEN
    evt_type := 'session_updated';
  ELSE
    RETURN COALESCE(NEW, OLD);
  END IF;

  IF TG_OP = 'DELETE' THEN
    payload := json_build_object(
      'event_type', evt_type,
      'session_id', OLD.id,
      'flow_id', OLD.flow_id,
      'timestamp', extract(epoch FROM now())
    );
  ELSE
    payload := json_build_object(
      'event_type', evt_type,
      'session_id', NEW.id,
      'flow_id', NEW.flow_id,
      'user_id', NEW.user_id,
      'current_node', NEW.current_node_id,
      'revision', NEW.revision,
      'status', NEW.status,
      'timestamp', extract(epoch FROM now())
    );
  END IF;

  PERFORM pg_notify('flow_events', payload::text);
  RETURN COALESCE(NEW, OLD);
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS reefline_session_notify ON conversation_sessions;
CREATE TRIGGER reefline_session_notify
  AFTER INSERT OR UPDATE OR DELETE ON conversation_sessions
  FOR EACH ROW EXECUTE FUNCTION reefline_notify_session_event();
`

// InstallTriggers installs the session NOTIFY trigger. Idempotent: safe to
// run on every boot.
func InstallTriggers(db *gorm.DB) error {
	if err := db.Exec(notifyTriggerSQL).Error; err != nil {
		return fmt.Errorf("installing session notify trigger: %w", err)
	}
	logging.Log.Info("installed session notify trigger")
	return nil
}
