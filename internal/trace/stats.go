package trace

import (
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"gorm.io/gorm"
)

// StorageStats is a read-only snapshot of trace/audit table sizes, used
// by operational tooling to decide when cleanup is warranted.
type StorageStats struct {
	ExecutionStepCount int64
	AuditLogCount      int64
	OutboxPendingCount int64
}

func GetStorageStats(db *gorm.DB) (*StorageStats, error) {
	var stats StorageStats
	if err := db.Table("flow_execution_steps").Count(&stats.ExecutionStepCount).Error; err != nil {
		return nil, apperr.Internal("counting execution steps", err)
	}
	if err := db.Table("trace_access_audit").Count(&stats.AuditLogCount).Error; err != nil {
		return nil, apperr.Internal("counting audit logs", err)
	}
	if err := db.Table("event_outbox").Where("delivered_at IS NULL").Count(&stats.OutboxPendingCount).Error; err != nil {
		return nil, apperr.Internal("counting pending outbox rows", err)
	}
	return &stats, nil
}

// FlowTraceStats reports per-flow trace volume, for authors deciding
// retention/sample-rate settings.
type FlowTraceStats struct {
	FlowID       string
	StepCount    int64
	SessionCount int64
}

func GetFlowTraceStats(db *gorm.DB, flowID string) (*FlowTraceStats, error) {
	stats := &FlowTraceStats{FlowID: flowID}
	err := db.Table("flow_execution_steps fes").
		Joins("JOIN conversation_sessions cs ON cs.id = fes.session_id").
		Where("cs.flow_id = ?", flowID).
		Count(&stats.StepCount).Error
	if err != nil {
		return nil, apperr.Internal("counting flow trace steps", err)
	}
	err = db.Table("conversation_sessions").Where("flow_id = ?", flowID).Count(&stats.SessionCount).Error
	if err != nil {
		return nil, apperr.Internal("counting flow sessions", err)
	}
	return stats, nil
}
