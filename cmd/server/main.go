package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/siddhantprateek/reefline/internal/action"
	"github.com/siddhantprateek/reefline/internal/concurrency"
	"github.com/siddhantprateek/reefline/internal/events"
	"github.com/siddhantprateek/reefline/internal/flow"
	"github.com/siddhantprateek/reefline/internal/httpapi"
	"github.com/siddhantprateek/reefline/internal/nodeproc"
	"github.com/siddhantprateek/reefline/internal/queue"
	"github.com/siddhantprateek/reefline/internal/runtime"
	"github.com/siddhantprateek/reefline/internal/session"
	"github.com/siddhantprateek/reefline/internal/trace"
	"github.com/siddhantprateek/reefline/pkg/config"
	"github.com/siddhantprateek/reefline/pkg/crypto"
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
	shutdownTelemetry := telemetry.Initialize(telemetryConfig)
	defer shutdownTelemetry()

	db, err := database.Open(cfg)
	if err != nil {
		logging.WithFields(logrus.Fields{"error": err}).Fatal("failed to open database")
	}
	defer func() { _ = database.Close(db) }()

	if err := database.AutoMigrate(db); err != nil {
		logging.WithFields(logrus.Fields{"error": err}).Fatal("failed to run migrations")
	}
	if err := database.InstallTriggers(db); err != nil {
		logging.WithFields(logrus.Fields{"error": err}).Fatal("failed to install session notify trigger")
	}

	if cfg.EncryptionKey != "" {
		if err := crypto.Init(); err != nil {
			logging.WithFields(logrus.Fields{"error": err}).Fatal("failed to initialize encryption")
		}
		logging.Log.Info("encryption subsystem initialized (AES-256-GCM)")
	}

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

	outbox := events.NewOutbox(cfg.OutboxDestination)
	dispatcher := events.NewDispatcher(db, q, cfg.OutboxPollInterval, 50)
	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	go dispatcher.Run(dispatcherCtx)
	defer cancelDispatcher()

	ctrl := concurrency.New(db, cfg.LockTimeout, cfg.LockPollInterval)
	flowRepo := flow.NewRepository(db)
	sessionService := session.NewService(db, ctrl, outbox)
	engine := action.NewEngine(nil)
	registry := nodeproc.NewRegistry(engine)
	tracer := trace.New(db)
	rt := runtime.New(db, flowRepo, sessionService, ctrl, registry, tracer)

	app := fiber.New(fiber.Config{
		AppName: "Reefline Flow Runtime",
	})
	app.Use(otelfiber.Middleware())
	app.Use(cors.New())
	app.Use(logger.New())
	app.Use(recover.New())

	httpapi.Setup(app, rt, sessionService)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logging.Log.Info("gracefully shutting down server")
		dispatcher.Stop()
		_ = app.Shutdown()
	}()

	logging.WithFields(logrus.Fields{"port": cfg.Port}).Info("starting reefline server")
	if err := app.Listen(":" + cfg.Port); err != nil {
		logging.WithFields(logrus.Fields{"error": err}).Fatal("server stopped unexpectedly")
	}
}
