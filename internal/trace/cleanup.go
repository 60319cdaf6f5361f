package trace

import (
	"time"

	"github.com/siddhantprateek/reefline/pkg/apperr"
	"gorm.io/gorm"
)

const (
	cleanupBatchSize       = 1000
	cleanupBatchPause      = 100 * time.Millisecond
	defaultTraceRetention  = 30
	defaultAuditRetention  = 90
)

// CleanupTraces deletes flow_execution_steps older than each session's
// flow's retention_days (default 30), in batches of 1000 with a pause
// between batches, until a batch deletes fewer than 1000 rows (spec §4.7).
// Rows are selected by started_at age alone, whatever the session's
// status, and each statement deletes at most 1000 rows.
func CleanupTraces(db *gorm.DB) (int64, error) {
	return deleteInBatches(db, `
		DELETE FROM flow_execution_steps
		WHERE id IN (
			SELECT fes.id
			FROM flow_execution_steps fes
			JOIN conversation_sessions cs ON cs.id = fes.session_id
			JOIN flows fd ON fd.id = cs.flow_id
			WHERE fes.started_at < NOW() - (COALESCE(fd.retention_days, ?) || ' days')::interval
			LIMIT ?
		)`, defaultTraceRetention)
}

// CleanupAuditLogs deletes trace_access_audit rows older than
// defaultAuditRetention days, with the same batching contract.
func CleanupAuditLogs(db *gorm.DB) (int64, error) {
	return deleteInBatches(db, `
		DELETE FROM trace_access_audit
		WHERE id IN (
			SELECT id FROM trace_access_audit
			WHERE accessed_at < NOW() - (? || ' days')::interval
			LIMIT ?
		)`, defaultAuditRetention)
}

func deleteInBatches(db *gorm.DB, query string, retentionDays int) (int64, error) {
	var total int64
	for {
		res := db.Exec(query, retentionDays, cleanupBatchSize)
		if res.Error != nil {
			return total, apperr.Internal("batched retention delete", res.Error)
		}
		total += res.RowsAffected
		if res.RowsAffected < cleanupBatchSize {
			return total, nil
		}
		time.Sleep(cleanupBatchPause)
	}
}
