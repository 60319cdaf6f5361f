// Package trace implements the Execution Tracer (spec §4.7): sampled,
// PII-masked, per-step recording with audited reads and batched
// retention cleanup.
package trace

import (
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
	"gorm.io/gorm"
)

// ShouldTrace implements the sampling decision of spec §4.7: off if the
// flow disables tracing, on unconditionally at sample_rate>=100, else a
// deterministic hash of the session token gates it. FNV-1a is used in
// place of the source's MD5 digest — both are used here only for
// deterministic bucketing, not for any cryptographic property.
func ShouldTrace(flow *models.Flow, sessionToken string) bool {
	if !flow.TraceEnabled {
		return false
	}
	if flow.TraceSampleRate >= 100 {
		return true
	}
	if flow.TraceSampleRate <= 0 {
		return false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionToken))
	bucket := int(h.Sum32() % 100)
	return bucket < flow.TraceSampleRate
}

// Tracer records execution steps and audits trace reads.
type Tracer struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Tracer { return &Tracer{db: db} }

// RecordStep appends one ExecutionStep row, masking state_before/state_after
// and applying the per-kind execution_details shape (spec §4.7). tx is
// the caller's transaction so the trace append is atomic with the
// mutation that produced it (spec §5).
func (t *Tracer) RecordStep(tx *gorm.DB, sessionID, nodeID string, nodeType models.NodeType, stateBefore, stateAfter models.JSONMap, rawDetail map[string]interface{}, connType models.ConnectionType, nextNodeID *string, startedAt, completedAt time.Time, errMsg *string) error {
	var last models.ExecutionStep
	stepNumber := 1
	err := tx.Where("session_id = ?", sessionID).Order("step_number DESC").First(&last).Error
	if err == nil {
		stepNumber = last.StepNumber + 1
	} else if err != gorm.ErrRecordNotFound {
		return apperr.Internal("reading last step number", err)
	}

	durationMs := completedAt.Sub(startedAt).Milliseconds()
	nextNode := ""
	if nextNodeID != nil {
		nextNode = *nextNodeID
	}
	step := models.ExecutionStep{
		ID:               uuid.NewString(),
		SessionID:        sessionID,
		StepNumber:       stepNumber,
		NodeID:           nodeID,
		NodeType:         string(nodeType),
		StateBefore:      MaskState(stateBefore),
		StateAfter:       MaskState(stateAfter),
		ExecutionDetails: BuildDetails(nodeType, rawDetail),
		ConnectionType:   string(connType),
		NextNodeID:       nextNode,
		StartedAt:        startedAt,
		CompletedAt:      &completedAt,
		DurationMs:       &durationMs,
		ErrorMessage:     errMsg,
	}
	if err := tx.Create(&step).Error; err != nil {
		return apperr.Internal("recording execution step", err)
	}
	return nil
}

// RecordAccess appends a TraceAccessAudit row for a trace read.
func (t *Tracer) RecordAccess(tx *gorm.DB, sessionID, accessedBy, accessType string, ip, userAgent *string) error {
	audit := models.TraceAccessAudit{
		ID:           uuid.NewString(),
		SessionID:    sessionID,
		AccessedBy:   accessedBy,
		AccessType:   accessType,
		AccessedAt:   time.Now().UTC(),
		IPAddress:    ip,
		UserAgent:    userAgent,
		DataAccessed: models.JSONMap{},
	}
	if err := tx.Create(&audit).Error; err != nil {
		return apperr.Internal("recording trace access audit", err)
	}
	return nil
}
