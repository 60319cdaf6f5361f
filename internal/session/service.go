package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/siddhantprateek/reefline/internal/concurrency"
	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
	"gorm.io/gorm"
)

// OutboxWriter mirrors flow.OutboxWriter to avoid importing internal/events.
type OutboxWriter interface {
	Emit(tx *gorm.DB, eventType string, payload map[string]interface{}) error
}

// Service implements the Session Store operations (spec §4.2).
type Service struct {
	db     *gorm.DB
	repo   *Repository
	ctrl   *concurrency.Controller
	outbox OutboxWriter
}

func NewService(db *gorm.DB, ctrl *concurrency.Controller, outbox OutboxWriter) *Service {
	return &Service{db: db, repo: NewRepository(db), ctrl: ctrl, outbox: outbox}
}

// CreateSession generates a session token, sets revision=1, status=ACTIVE
// (spec §4.2). initialState is merged under the reserved roots by the
// caller (normally internal/runtime, which builds it per spec §4.6).
func (s *Service) CreateSession(flowID string, userID *string, initialState istate.Bag, entryNodeID string) (*models.Session, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, apperr.Internal("generating session token", err)
	}

	now := time.Now().UTC()
	sess := models.Session{
		ID:             uuid.NewString(),
		FlowID:         flowID,
		SessionToken:   token,
		UserID:         userID,
		CurrentNodeID:  entryNodeID,
		State:          models.JSONMap(initialState),
		Info:           models.JSONMap{},
		StartedAt:      now,
		LastActivityAt: now,
		Status:         models.SessionActive,
		Revision:       1,
		TraceLevel:     models.TraceLevelStandard,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&sess).Error; err != nil {
			return apperr.Integrity("creating session", err)
		}
		return s.emit(tx, "session_started", &sess, 0)
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Service) GetSessionByToken(token string) (*models.Session, error) {
	return s.repo.GetByToken(s.db, token)
}

func (s *Service) GetSessionByID(id string) (*models.Session, error) {
	return s.repo.GetByID(s.db, id)
}

// UpdateSessionState mutates a session's state (and optionally its
// current node) under the Concurrency Controller's revision-control rule
// (spec §4.3). Returns apperr.Conflict on a lost revision race for
// non-user-initiated callers, apperr.Conflict if the session is terminal.
func (s *Service) UpdateSessionState(sessionID string, newState istate.Bag, currentNodeID string, expectedRevision *int, userInitiated bool) (*models.Session, error) {
	current, err := s.repo.GetByID(s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if current.Status != models.SessionActive {
		return nil, apperr.Conflict("session is in a terminal state")
	}

	var result *models.Session
	err = s.db.Transaction(func(tx *gorm.DB) error {
		txCtrl := s.ctrl.WithTx(tx)
		res := txCtrl.ApplyWithRevision(context.Background(), sessionID, expectedRevision, newState, currentNodeID, userInitiated)
		if !res.OK {
			if res.Error == concurrency.ErrConcurrentModification {
				return apperr.Conflict(res.Error)
			}
			return apperr.Internal(res.Error, nil)
		}
		result = res.Session
		return s.emit(tx, "session_updated", result, current.Revision)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// EndSession transitions ACTIVE → terminal; idempotent on an
// already-terminal session (spec §4.2).
func (s *Service) EndSession(sessionID string, status models.SessionStatus) (*models.Session, error) {
	var result models.Session
	err := s.db.Transaction(func(tx *gorm.DB) error {
		sess, err := s.repo.GetByID(tx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != models.SessionActive {
			result = *sess
			return nil
		}
		now := time.Now().UTC()
		previousStatus := sess.Status
		sess.Status = status
		sess.EndedAt = &now
		if err := tx.Save(sess).Error; err != nil {
			return apperr.Internal("ending session", err)
		}
		result = *sess
		return s.emitStatusChange(tx, sess, previousStatus)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AddInteraction appends a timestamped ConversationHistory row.
func (s *Service) AddInteraction(tx *gorm.DB, sessionID, nodeID string, interactionType models.InteractionType, content istate.Bag) error {
	h := &models.ConversationHistory{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		NodeID:          nodeID,
		InteractionType: interactionType,
		Content:         models.JSONMap(content),
		CreatedAt:       time.Now().UTC(),
	}
	return s.repo.AddInteraction(tx, h)
}

func (s *Service) ListHistory(sessionID string) ([]models.ConversationHistory, error) {
	return s.repo.ListHistory(s.db, sessionID)
}

func (s *Service) DB() *gorm.DB { return s.db }

// SetCSRFToken stores the CSRF token issued to an anonymous session at
// Start, checked against X-CSRF-Token on subsequent interact calls
// (spec §6). It is info, not state: it carries no flow semantics and
// must never appear in a traced state_before/state_after.
func (s *Service) SetCSRFToken(sessionID, token string) error {
	sess, err := s.repo.GetByID(s.db, sessionID)
	if err != nil {
		return err
	}
	if sess.Info == nil {
		sess.Info = models.JSONMap{}
	}
	sess.Info["csrf_token"] = token
	if err := s.db.Model(sess).Update("info", sess.Info).Error; err != nil {
		return apperr.Internal("storing csrf token", err)
	}
	return nil
}

func (s *Service) emit(tx *gorm.DB, eventType string, sess *models.Session, previousRevision int) error {
	if s.outbox == nil {
		return nil
	}
	payload := map[string]interface{}{
		"event_type":        eventType,
		"session_id":        sess.ID,
		"flow_id":           sess.FlowID,
		"current_node":      sess.CurrentNodeID,
		"revision":          sess.Revision,
		"previous_revision": previousRevision,
		"timestamp":         time.Now().UTC().Unix(),
	}
	if sess.UserID != nil {
		payload["user_id"] = *sess.UserID
	}
	return s.outbox.Emit(tx, eventType, payload)
}

func (s *Service) emitStatusChange(tx *gorm.DB, sess *models.Session, previousStatus models.SessionStatus) error {
	if s.outbox == nil {
		return nil
	}
	payload := map[string]interface{}{
		"event_type":        "session_status_changed",
		"session_id":        sess.ID,
		"flow_id":           sess.FlowID,
		"status":            sess.Status,
		"previous_status":   previousStatus,
		"revision":          sess.Revision,
		"timestamp":         time.Now().UTC().Unix(),
	}
	if sess.UserID != nil {
		payload["user_id"] = *sess.UserID
	}
	return s.outbox.Emit(tx, "session_status_changed", payload)
}

func newSessionToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
