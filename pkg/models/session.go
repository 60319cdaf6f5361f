package models

import "time"

// SessionStatus is the lifecycle state of a Session (spec §3).
type SessionStatus string

const (
	SessionActive    SessionStatus = "ACTIVE"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionAbandoned SessionStatus = "ABANDONED"
)

// TraceLevel gates how much detail the tracer keeps per step (spec §4.7,
// §9 open question 3 — advisory only).
type TraceLevel string

const (
	TraceLevelStandard TraceLevel = "standard"
	TraceLevelVerbose  TraceLevel = "verbose"
)

// Session is one runtime walk of a Flow for a user (spec §3).
type Session struct {
	ID             string        `json:"id" gorm:"primaryKey;type:uuid"`
	FlowID         string        `json:"flow_id" gorm:"type:uuid;not null;index"`
	SessionToken   string        `json:"session_token" gorm:"uniqueIndex;not null"`
	UserID         *string       `json:"user_id" gorm:"index"`
	CurrentNodeID  string        `json:"current_node_id"`
	State          JSONMap       `json:"state" gorm:"type:jsonb"`
	Info           JSONMap       `json:"info" gorm:"type:jsonb"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	EndedAt        *time.Time    `json:"ended_at"`
	Status         SessionStatus `json:"status" gorm:"not null;index"`
	Revision       int           `json:"revision" gorm:"not null;default:1"`
	TraceEnabled   bool          `json:"trace_enabled" gorm:"not null;default:false"`
	TraceLevel     TraceLevel    `json:"trace_level" gorm:"not null;default:standard"`
	StateHash      *string       `json:"state_hash"`
}

func (Session) TableName() string { return "conversation_sessions" }

// InteractionType classifies a ConversationHistory row (spec §3).
type InteractionType string

const (
	InteractionMessage InteractionType = "MESSAGE"
	InteractionInput   InteractionType = "INPUT"
	InteractionAction  InteractionType = "ACTION"
)

// ConversationHistory is an append-only record of everything exchanged
// during a session: bot emissions, user inputs, and system events.
type ConversationHistory struct {
	ID              string          `json:"id" gorm:"primaryKey;type:uuid"`
	SessionID       string          `json:"session_id" gorm:"type:uuid;not null;index"`
	NodeID          string          `json:"node_id"`
	InteractionType InteractionType `json:"interaction_type" gorm:"not null"`
	Content         JSONMap         `json:"content" gorm:"type:jsonb"`
	CreatedAt       time.Time       `json:"created_at" gorm:"index"`
}

func (ConversationHistory) TableName() string { return "conversation_history" }
