// Package session implements the Session Store (spec §4.2): session
// create/load/update plus append-only conversation history.
package session

import (
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

func (r *Repository) GetByToken(tx *gorm.DB, token string) (*models.Session, error) {
	var s models.Session
	if err := tx.Where("session_token = ?", token).First(&s).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("session not found")
		}
		return nil, apperr.Internal("fetching session", err)
	}
	return &s, nil
}

func (r *Repository) GetByID(tx *gorm.DB, id string) (*models.Session, error) {
	var s models.Session
	if err := tx.Where("id = ?", id).First(&s).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("session not found")
		}
		return nil, apperr.Internal("fetching session", err)
	}
	return &s, nil
}

func (r *Repository) AddInteraction(tx *gorm.DB, h *models.ConversationHistory) error {
	if err := tx.Create(h).Error; err != nil {
		return apperr.Internal("appending interaction", err)
	}
	return nil
}

func (r *Repository) ListHistory(tx *gorm.DB, sessionID string) ([]models.ConversationHistory, error) {
	var rows []models.ConversationHistory
	if err := tx.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, apperr.Internal("listing history", err)
	}
	return rows, nil
}
