package flow

import (
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
	"gorm.io/gorm"
)

// OutboxWriter is the minimal surface Service needs from the Event
// Dispatch component (spec §4.8) without importing internal/events
// directly, avoiding a package cycle.
type OutboxWriter interface {
	Emit(tx *gorm.DB, eventType string, payload map[string]interface{}) error
}

// Repository is the gorm-backed store behind Service.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository { return &Repository{db: db} }

func (r *Repository) GetFlow(tx *gorm.DB, id string) (*models.Flow, error) {
	var f models.Flow
	if err := tx.Where("id = ?", id).First(&f).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("flow not found")
		}
		return nil, apperr.Internal("fetching flow", err)
	}
	return &f, nil
}

func (r *Repository) GetFlowWithNodes(tx *gorm.DB, id string) (*models.Flow, error) {
	var f models.Flow
	if err := tx.Preload("Nodes").Preload("Connections").Where("id = ?", id).First(&f).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("flow not found")
		}
		return nil, apperr.Internal("fetching flow", err)
	}
	return &f, nil
}

func (r *Repository) GetNode(tx *gorm.DB, flowID, nodeID string) (*models.Node, error) {
	var n models.Node
	if err := tx.Where("flow_id = ? AND node_id = ?", flowID, nodeID).First(&n).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("node not found")
		}
		return nil, apperr.Internal("fetching node", err)
	}
	return &n, nil
}

func (r *Repository) FindPublished(tx *gorm.DB) ([]models.Flow, error) {
	var flows []models.Flow
	if err := tx.Where("is_published = ?", true).Find(&flows).Error; err != nil {
		return nil, apperr.Internal("listing published flows", err)
	}
	return flows, nil
}

// ListFilters narrows ListFlows results.
type ListFilters struct {
	IsPublished *bool
	IsActive    *bool
	NameLike    string
}

func (r *Repository) List(tx *gorm.DB, filters ListFilters, page, pageSize int) ([]models.Flow, int64, error) {
	q := tx.Model(&models.Flow{})
	if filters.IsPublished != nil {
		q = q.Where("is_published = ?", *filters.IsPublished)
	}
	if filters.IsActive != nil {
		q = q.Where("is_active = ?", *filters.IsActive)
	}
	if filters.NameLike != "" {
		q = q.Where("name ILIKE ?", "%"+filters.NameLike+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Internal("counting flows", err)
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	var flows []models.Flow
	if err := q.Order("created_at DESC").Limit(pageSize).Offset((page - 1) * pageSize).Find(&flows).Error; err != nil {
		return nil, 0, apperr.Internal("listing flows", err)
	}
	return flows, total, nil
}
