package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/siddhantprateek/reefline/internal/events"
	"github.com/siddhantprateek/reefline/internal/queue"
	"github.com/siddhantprateek/reefline/internal/trace"
	"github.com/siddhantprateek/reefline/pkg/config"
	"github.com/siddhantprateek/reefline/pkg/database"
	"github.com/siddhantprateek/reefline/pkg/logging"
	"github.com/siddhantprateek/reefline/pkg/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logging.Log.Warn("no .env file found")
	}

	cfg := config.Load()
	logging.Init(cfg.AppEnv)

	telemetryConfig := telemetry.GetConfigFromEnv()
	telemetryConfig.ServiceName = "reefline-worker"
	shutdownTelemetry := telemetry.Initialize(telemetryConfig)
	defer shutdownTelemetry()

	db, err := database.Open(cfg)
	if err != nil {
		logging.WithFields(logrus.Fields{"error": err}).Fatal("failed to open database")
	}
	defer func() { _ = database.Close(db) }()

	var q queue.Queue
	if cfg.RedisHost != "" {
		addr := cfg.RedisHost + ":" + cfg.RedisPort
		q = queue.NewRedisQueue(addr, cfg.RedisPassword)
		logging.WithFields(logrus.Fields{"addr": addr}).Info("using redis job queue")
	} else {
		q = queue.NewInMemoryQueue(100)
		logging.Log.Info("using in-memory job queue")
	}
	if err := q.Start(); err != nil {
		logging.WithFields(logrus.Fields{"error": err}).Fatal("failed to start job queue")
	}
	defer q.Stop()

	dispatcher := events.NewDispatcher(db, q, cfg.OutboxPollInterval, 50)
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	go dispatcher.Run(dispatcherCtx)

	stopCleanup := make(chan struct{})
	go runCleanupLoop(db, cfg.CleanupInterval, stopCleanup)

	logging.Log.Info("reefline worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logging.Log.Info("gracefully shutting down worker")
	close(stopCleanup)
	dispatcher.Stop()
	cancelDispatcher()
	logging.Log.Info("worker stopped")
}

// outboxRetention is how long a delivered EventOutbox row is kept before
// PurgeDelivered reclaims it.
const outboxRetention = 7 * 24 * time.Hour

// runCleanupLoop periodically purges retention-expired traces, audit
// logs, and delivered outbox rows (spec §4.7, §4.8). A single background
// worker is sufficient; the deletes are already batched and self-paced.
func runCleanupLoop(db *gorm.DB, interval time.Duration, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n, err := trace.CleanupTraces(db); err != nil {
				logging.WithFields(logrus.Fields{"error": err}).Error("trace cleanup failed")
			} else if n > 0 {
				logging.WithFields(logrus.Fields{"rows": n}).Info("purged expired execution steps")
			}
			if n, err := trace.CleanupAuditLogs(db); err != nil {
				logging.WithFields(logrus.Fields{"error": err}).Error("audit log cleanup failed")
			} else if n > 0 {
				logging.WithFields(logrus.Fields{"rows": n}).Info("purged expired trace access audits")
			}
			if n, err := events.PurgeDelivered(db, outboxRetention); err != nil {
				logging.WithFields(logrus.Fields{"error": err}).Error("outbox purge failed")
			} else if n > 0 {
				logging.WithFields(logrus.Fields{"rows": n}).Info("purged delivered outbox rows")
			}
		}
	}
}
