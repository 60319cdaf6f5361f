package main

import (
	"fmt"
	"log"

	"github.com/siddhantprateek/reefline/internal/trace"
	"github.com/siddhantprateek/reefline/pkg/config"
	"github.com/siddhantprateek/reefline/pkg/database"
)

func main() {
	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	stats, err := trace.GetStorageStats(db)
	if err != nil {
		log.Fatalf("Could not get storage stats: %v", err)
	}

	fmt.Println("Event outbox")
	fmt.Printf("  Pending:   %d\n", stats.OutboxPendingCount)
	fmt.Println("Trace storage")
	fmt.Printf("  Execution steps: %d\n", stats.ExecutionStepCount)
	fmt.Printf("  Audit log rows:  %d\n", stats.AuditLogCount)
}
