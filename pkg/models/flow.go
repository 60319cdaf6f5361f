package models

import "time"

// NodeType enumerates the kinds a Node can be (spec §3, §4.4).
type NodeType string

const (
	NodeTypeStart     NodeType = "start"
	NodeTypeMessage   NodeType = "message"
	NodeTypeQuestion  NodeType = "question"
	NodeTypeCondition NodeType = "condition"
	NodeTypeAction    NodeType = "action"
	NodeTypeWebhook   NodeType = "webhook"
	NodeTypeComposite NodeType = "composite"
	NodeTypeScript    NodeType = "script"
)

// ConnectionType is the internal enum a wire token (spec §6) maps to.
type ConnectionType string

const (
	ConnectionDefault  ConnectionType = "default"
	ConnectionSuccess  ConnectionType = "success"
	ConnectionFailure  ConnectionType = "failure"
	ConnectionOption0  ConnectionType = "option_0"
	ConnectionOption1  ConnectionType = "option_1"
)

// Flow is an authored, versioned conversation graph. flow_data is the
// denormalized snapshot kept in sync with the Node/Connection tables
// (spec §4.1); info/contract are opaque authoring metadata.
type Flow struct {
	ID              string  `json:"id" gorm:"primaryKey;type:uuid"`
	Name            string  `json:"name" gorm:"not null"`
	Version         string  `json:"version" gorm:"not null;default:1.0.0"`
	EntryNodeID     string  `json:"entry_node_id"`
	IsPublished     bool    `json:"is_published" gorm:"not null;default:false"`
	IsActive        bool    `json:"is_active" gorm:"not null;default:true"`
	FlowData        JSONMap `json:"flow_data" gorm:"type:jsonb"`
	Info            JSONMap `json:"info" gorm:"type:jsonb"`
	Contract        JSONMap `json:"contract" gorm:"type:jsonb"`
	RetentionDays   int     `json:"retention_days" gorm:"not null;default:30"`
	TraceEnabled    bool    `json:"trace_enabled" gorm:"not null;default:true"`
	TraceSampleRate int     `json:"trace_sample_rate" gorm:"not null;default:100"`

	PublishedAt *time.Time `json:"published_at"`
	PublishedBy *string    `json:"published_by"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Nodes       []Node       `json:"-" gorm:"foreignKey:FlowID;references:ID;constraint:OnDelete:CASCADE"`
	Connections []Connection `json:"-" gorm:"foreignKey:FlowID;references:ID;constraint:OnDelete:CASCADE"`
}

func (Flow) TableName() string { return "flows" }

// Node is one vertex of a Flow's graph (spec §3).
type Node struct {
	ID       string   `json:"id" gorm:"primaryKey;type:uuid"`
	FlowID   string   `json:"flow_id" gorm:"type:uuid;not null;uniqueIndex:idx_flow_node"`
	NodeID   string   `json:"node_id" gorm:"not null;uniqueIndex:idx_flow_node"`
	NodeType NodeType `json:"node_type" gorm:"not null"`
	Content  JSONMap  `json:"content" gorm:"type:jsonb"`
	Template *string  `json:"template"`
	Position JSONMap  `json:"position" gorm:"type:jsonb"`
	Info     JSONMap  `json:"info" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Node) TableName() string { return "flow_nodes" }

// Connection is one directed, typed edge of a Flow's graph (spec §3).
type Connection struct {
	ID             string         `json:"id" gorm:"primaryKey;type:uuid"`
	FlowID         string         `json:"flow_id" gorm:"type:uuid;not null;uniqueIndex:idx_flow_conn"`
	SourceNodeID   string         `json:"source_node_id" gorm:"not null;uniqueIndex:idx_flow_conn"`
	TargetNodeID   string         `json:"target_node_id" gorm:"not null;uniqueIndex:idx_flow_conn"`
	ConnectionType ConnectionType `json:"connection_type" gorm:"not null;uniqueIndex:idx_flow_conn"`
	Conditions     JSONMap        `json:"conditions" gorm:"type:jsonb"`
	Info           JSONMap        `json:"info" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Connection) TableName() string { return "flow_connections" }
