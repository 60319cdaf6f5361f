// Package dbtest opens an in-memory SQLite database migrated with the
// production schema, standing in for Postgres in unit tests that need a
// real *gorm.DB but not a live server (spec §8 seed scenarios that touch
// concurrency, snapshot, and clone behavior).
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/siddhantprateek/reefline/pkg/database"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open returns a fresh, migrated, in-memory database for one test. Each
// call gets its own isolated SQLite instance via a unique shared-cache
// name, so parallel tests never see each other's rows.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening in-memory test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting underlying sql.DB: %v", err)
	}
	// A single connection keeps every statement on the same in-memory
	// instance; SQLite's ":memory:" semantics are per-connection.
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}
