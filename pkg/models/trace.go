package models

import "time"

// ExecutionStep is one append-only trace record of a node visited during
// a tick (spec §3, §4.7). state_before/state_after are PII-masked before
// being written here.
type ExecutionStep struct {
	ID                string    `json:"id" gorm:"primaryKey;type:uuid"`
	SessionID         string    `json:"session_id" gorm:"type:uuid;not null;uniqueIndex:idx_session_step"`
	StepNumber        int       `json:"step_number" gorm:"not null;uniqueIndex:idx_session_step"`
	NodeID            string    `json:"node_id"`
	NodeType          string    `json:"node_type"`
	StateBefore       JSONMap   `json:"state_before" gorm:"type:jsonb"`
	StateAfter        JSONMap   `json:"state_after" gorm:"type:jsonb"`
	ExecutionDetails  JSONMap   `json:"execution_details" gorm:"type:jsonb"`
	ConnectionType    string    `json:"connection_type"`
	NextNodeID        string    `json:"next_node_id"`
	StartedAt         time.Time `json:"started_at" gorm:"index"`
	CompletedAt       *time.Time `json:"completed_at"`
	DurationMs        *int64    `json:"duration_ms"`
	ErrorMessage      *string   `json:"error_message"`
	ErrorDetails      JSONMap   `json:"error_details" gorm:"type:jsonb"`
}

func (ExecutionStep) TableName() string { return "flow_execution_steps" }

// TraceAccessAudit records every read of a session's trace, for compliance.
type TraceAccessAudit struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	SessionID     string    `json:"session_id" gorm:"type:uuid;not null;index"`
	AccessedBy    string    `json:"accessed_by"`
	AccessType    string    `json:"access_type"`
	AccessedAt    time.Time `json:"accessed_at" gorm:"index"`
	IPAddress     *string   `json:"ip_address"`
	UserAgent     *string   `json:"user_agent"`
	DataAccessed  JSONMap   `json:"data_accessed" gorm:"type:jsonb"`
}

func (TraceAccessAudit) TableName() string { return "trace_access_audit" }
