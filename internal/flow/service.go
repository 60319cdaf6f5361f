package flow

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
	"gorm.io/gorm"
)

// Service implements the Flow Store operations of spec §4.1.
type Service struct {
	db     *gorm.DB
	repo   *Repository
	outbox OutboxWriter
}

func NewService(db *gorm.DB, outbox OutboxWriter) *Service {
	return &Service{db: db, repo: NewRepository(db), outbox: outbox}
}

// CreateSpec is the input to CreateFlow.
type CreateSpec struct {
	Name            string
	Version         string
	EntryNodeID     string
	Info            models.JSONMap
	Contract        models.JSONMap
	RetentionDays   int
	TraceEnabled    bool
	TraceSampleRate int
	FlowData        models.JSONMap
}

// CreateFlow persists a Flow row; if spec.FlowData carries nodes/
// connections, they are materialized into the relational tables in the
// same transaction (spec §4.1).
func (s *Service) CreateFlow(spec CreateSpec) (*models.Flow, error) {
	var created models.Flow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		version := spec.Version
		if version == "" {
			version = "1.0.0"
		}
		retention := spec.RetentionDays
		if retention <= 0 {
			retention = 30
		}
		sampleRate := spec.TraceSampleRate
		if sampleRate <= 0 {
			sampleRate = 100
		}

		f := models.Flow{
			ID:              uuid.NewString(),
			Name:            spec.Name,
			Version:         version,
			EntryNodeID:     spec.EntryNodeID,
			IsActive:        true,
			Info:            orEmpty(spec.Info),
			Contract:        orEmpty(spec.Contract),
			RetentionDays:   retention,
			TraceEnabled:    spec.TraceEnabled,
			TraceSampleRate: sampleRate,
			FlowData:        orEmpty(spec.FlowData),
		}
		if err := tx.Create(&f).Error; err != nil {
			return apperr.Integrity("creating flow", err)
		}

		if len(spec.FlowData) > 0 {
			if err := MaterializeSnapshot(tx, f.ID, spec.FlowData); err != nil {
				return apperr.Integrity("materializing initial snapshot", err)
			}
			snap, err := BuildSnapshot(tx, f.ID, f.FlowData)
			if err != nil {
				return apperr.Internal("building snapshot", err)
			}
			f.FlowData = snap
			if err := tx.Save(&f).Error; err != nil {
				return apperr.Internal("saving snapshot", err)
			}
		}

		created = f
		return s.emit(tx, "flow_updated", &f, "")
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdatePatch is the set of non-graph fields UpdateFlow may change, plus
// an optional replacement flow_data blob (materialized per the feature
// supplement's inverse-projection rule).
type UpdatePatch struct {
	Name            *string
	Info            models.JSONMap
	Contract        models.JSONMap
	RetentionDays   *int
	TraceEnabled    *bool
	TraceSampleRate *int
	FlowData        models.JSONMap
}

// UpdateFlow updates non-graph fields and, if the relational tables have
// diverged from flow_data (or a replacement flow_data was posted),
// re-runs snapshot synchronization (spec §4.1).
func (s *Service) UpdateFlow(id string, patch UpdatePatch) (*models.Flow, error) {
	var updated models.Flow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		f, err := s.repo.GetFlow(tx, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			f.Name = *patch.Name
		}
		if patch.Info != nil {
			f.Info = patch.Info
		}
		if patch.Contract != nil {
			f.Contract = patch.Contract
		}
		if patch.RetentionDays != nil {
			f.RetentionDays = *patch.RetentionDays
		}
		if patch.TraceEnabled != nil {
			f.TraceEnabled = *patch.TraceEnabled
		}
		if patch.TraceSampleRate != nil {
			f.TraceSampleRate = *patch.TraceSampleRate
		}

		if patch.FlowData != nil {
			if err := MaterializeSnapshot(tx, f.ID, patch.FlowData); err != nil {
				return apperr.Integrity("materializing snapshot", err)
			}
		}

		snap, err := BuildSnapshot(tx, f.ID, f.FlowData)
		if err != nil {
			return apperr.Internal("building snapshot", err)
		}
		f.FlowData = snap

		if err := tx.Save(f).Error; err != nil {
			return apperr.Internal("saving flow", err)
		}
		updated = *f
		return s.emit(tx, "flow_updated", f, "")
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// AddNode inserts a Node, verifying it doesn't already exist, then
// rebuilds the snapshot and emits flow_updated (spec §4.1).
func (s *Service) AddNode(flowID string, node models.Node) (*models.Node, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		f, err := s.repo.GetFlow(tx, flowID)
		if err != nil {
			return err
		}
		var existing models.Node
		if err := tx.Where("flow_id = ? AND node_id = ?", flowID, node.NodeID).First(&existing).Error; err == nil {
			return apperr.Validation(fmt.Sprintf("node %q already exists in flow", node.NodeID))
		}

		node.ID = uuid.NewString()
		node.FlowID = flowID
		if node.Content == nil {
			node.Content = models.JSONMap{}
		}
		if node.Position == nil {
			node.Position = models.JSONMap{"x": 0, "y": 0}
		}
		if node.Info == nil {
			node.Info = models.JSONMap{}
		}
		if err := tx.Create(&node).Error; err != nil {
			return apperr.Integrity("adding node", err)
		}

		return s.resyncAndEmit(tx, f)
	})
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// UpdateNode updates an existing Node's mutable fields.
func (s *Service) UpdateNode(flowID, nodeID string, content, position, info models.JSONMap, template *string) (*models.Node, error) {
	var updated models.Node
	err := s.db.Transaction(func(tx *gorm.DB) error {
		f, err := s.repo.GetFlow(tx, flowID)
		if err != nil {
			return err
		}
		n, err := s.repo.GetNode(tx, flowID, nodeID)
		if err != nil {
			return err
		}
		if content != nil {
			n.Content = content
		}
		if position != nil {
			n.Position = position
		}
		if info != nil {
			n.Info = info
		}
		if template != nil {
			n.Template = template
		}
		if err := tx.Save(n).Error; err != nil {
			return apperr.Internal("updating node", err)
		}
		updated = *n
		return s.resyncAndEmit(tx, f)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteNode removes a Node. Connections referencing it are left for the
// caller to clean up explicitly (spec doesn't mandate cascading edge
// deletion on node removal); they are neither deleted nor reported here.
func (s *Service) DeleteNode(flowID, nodeID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		f, err := s.repo.GetFlow(tx, flowID)
		if err != nil {
			return err
		}
		if err := tx.Where("flow_id = ? AND node_id = ?", flowID, nodeID).Delete(&models.Node{}).Error; err != nil {
			return apperr.Internal("deleting node", err)
		}
		return s.resyncAndEmit(tx, f)
	})
}

// AddConnection inserts a Connection after verifying both endpoints exist
// as Nodes in the same flow (spec §3 invariant) and no duplicate
// same-type connection already exists from the source node (§9 open
// question 1 — rejected at publish time, not draft time, so this check
// only fires once the flow is published).
func (s *Service) AddConnection(flowID string, conn models.Connection) (*models.Connection, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		f, err := s.repo.GetFlow(tx, flowID)
		if err != nil {
			return err
		}
		if _, err := s.repo.GetNode(tx, flowID, conn.SourceNodeID); err != nil {
			return apperr.Validation("source node does not exist in flow")
		}
		if _, err := s.repo.GetNode(tx, flowID, conn.TargetNodeID); err != nil {
			return apperr.Validation("target node does not exist in flow")
		}

		if f.IsPublished {
			var count int64
			tx.Model(&models.Connection{}).
				Where("flow_id = ? AND source_node_id = ? AND connection_type = ?", flowID, conn.SourceNodeID, conn.ConnectionType).
				Count(&count)
			if count > 0 {
				return apperr.Validation("duplicate connection type from this node is not allowed on a published flow")
			}
		}

		conn.ID = uuid.NewString()
		conn.FlowID = flowID
		if conn.Conditions == nil {
			conn.Conditions = models.JSONMap{}
		}
		if conn.Info == nil {
			conn.Info = models.JSONMap{}
		}
		if err := tx.Create(&conn).Error; err != nil {
			return apperr.Integrity("adding connection", err)
		}
		return s.resyncAndEmit(tx, f)
	})
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

// DeleteConnection removes a Connection.
func (s *Service) DeleteConnection(flowID, connectionID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		f, err := s.repo.GetFlow(tx, flowID)
		if err != nil {
			return err
		}
		if err := tx.Where("flow_id = ? AND id = ?", flowID, connectionID).Delete(&models.Connection{}).Error; err != nil {
			return apperr.Internal("deleting connection", err)
		}
		return s.resyncAndEmit(tx, f)
	})
}

// PublishFlow marks a flow published, bumping its version (minor by
// default, or the caller-supplied newVersion). entry_node_id MUST
// reference an existing node (spec §3 invariant); duplicate same-type
// connections from one node are rejected here per §9 open question 1.
func (s *Service) PublishFlow(id, publisher string, newVersion string) (*models.Flow, error) {
	var updated models.Flow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		f, err := s.repo.GetFlow(tx, id)
		if err != nil {
			return err
		}
		if f.EntryNodeID == "" {
			return apperr.Validation("flow has no entry_node_id")
		}
		if _, err := s.repo.GetNode(tx, id, f.EntryNodeID); err != nil {
			return apperr.Validation("entry_node_id does not reference an existing node")
		}

		if err := rejectDuplicateConnections(tx, id); err != nil {
			return err
		}

		if newVersion != "" {
			f.Version = newVersion
		} else {
			f.Version = bumpMinor(f.Version)
		}

		now := time.Now().UTC()
		f.IsPublished = true
		f.PublishedAt = &now
		f.PublishedBy = &publisher

		if err := tx.Save(f).Error; err != nil {
			return apperr.Internal("publishing flow", err)
		}
		updated = *f
		return s.emit(tx, "flow_published", f, "")
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func rejectDuplicateConnections(tx *gorm.DB, flowID string) error {
	rows := []struct {
		SourceNodeID   string
		ConnectionType string
		Count          int64
	}{}
	err := tx.Model(&models.Connection{}).
		Select("source_node_id, connection_type, count(*) as count").
		Where("flow_id = ?", flowID).
		Group("source_node_id, connection_type").
		Having("count(*) > 1").
		Scan(&rows).Error
	if err != nil {
		return apperr.Internal("checking duplicate connections", err)
	}
	if len(rows) > 0 {
		return apperr.Validation(fmt.Sprintf("node %q has %d connections of type %q; duplicates are rejected at publish time", rows[0].SourceNodeID, rows[0].Count, rows[0].ConnectionType))
	}
	return nil
}

// CloneFlow creates a new flow shell then copies nodes and connections
// with fresh primary keys while preserving node_id strings, all in one
// transaction (spec §4.1, scenario 5).
func (s *Service) CloneFlow(sourceID, newName, newVersion string) (*models.Flow, error) {
	var cloned models.Flow
	err := s.db.Transaction(func(tx *gorm.DB) error {
		src, err := s.repo.GetFlowWithNodes(tx, sourceID)
		if err != nil {
			return err
		}

		dst := models.Flow{
			ID:              uuid.NewString(),
			Name:            newName,
			Version:         newVersion,
			EntryNodeID:     src.EntryNodeID,
			IsActive:        true,
			Info:            src.Info,
			Contract:        src.Contract,
			RetentionDays:   src.RetentionDays,
			TraceEnabled:    src.TraceEnabled,
			TraceSampleRate: src.TraceSampleRate,
			FlowData:        models.JSONMap{},
		}
		if err := tx.Create(&dst).Error; err != nil {
			return apperr.Integrity("creating cloned flow", err)
		}

		idMap := make(map[string]string, len(src.Nodes))
		for _, n := range src.Nodes {
			newNode := models.Node{
				ID:       uuid.NewString(),
				FlowID:   dst.ID,
				NodeID:   n.NodeID,
				NodeType: n.NodeType,
				Content:  n.Content,
				Template: n.Template,
				Position: n.Position,
				Info:     n.Info,
			}
			if err := tx.Create(&newNode).Error; err != nil {
				return apperr.Internal("cloning node", err)
			}
			idMap[n.NodeID] = newNode.ID
		}

		for _, c := range src.Connections {
			newConn := models.Connection{
				ID:             uuid.NewString(),
				FlowID:         dst.ID,
				SourceNodeID:   c.SourceNodeID,
				TargetNodeID:   c.TargetNodeID,
				ConnectionType: c.ConnectionType,
				Conditions:     c.Conditions,
				Info:           c.Info,
			}
			if err := tx.Create(&newConn).Error; err != nil {
				return apperr.Internal("cloning connection", err)
			}
		}

		snap, err := BuildSnapshot(tx, dst.ID, models.JSONMap{})
		if err != nil {
			return apperr.Internal("building cloned snapshot", err)
		}
		dst.FlowData = snap
		if err := tx.Save(&dst).Error; err != nil {
			return apperr.Internal("saving cloned flow snapshot", err)
		}

		cloned = dst
		return s.emit(tx, "flow_updated", &dst, "")
	})
	if err != nil {
		return nil, err
	}
	return &cloned, nil
}

func (s *Service) FindPublishedFlows() ([]models.Flow, error) {
	return s.repo.FindPublished(s.db)
}

func (s *Service) GetFlowWithNodes(id string) (*models.Flow, error) {
	return s.repo.GetFlowWithNodes(s.db, id)
}

func (s *Service) ListFlows(filters ListFilters, page, pageSize int) ([]models.Flow, int64, error) {
	return s.repo.List(s.db, filters, page, pageSize)
}

func (s *Service) resyncAndEmit(tx *gorm.DB, f *models.Flow) error {
	snap, err := BuildSnapshot(tx, f.ID, f.FlowData)
	if err != nil {
		return apperr.Internal("building snapshot", err)
	}
	f.FlowData = snap
	if err := tx.Save(f).Error; err != nil {
		return apperr.Internal("saving snapshot", err)
	}
	return s.emit(tx, "flow_updated", f, "")
}

func (s *Service) emit(tx *gorm.DB, eventType string, f *models.Flow, extra string) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Emit(tx, eventType, map[string]interface{}{
		"event_type": eventType,
		"flow_id":    f.ID,
		"version":    f.Version,
		"timestamp":  time.Now().UTC().Unix(),
	})
}

func orEmpty(m models.JSONMap) models.JSONMap {
	if m == nil {
		return models.JSONMap{}
	}
	return m
}

// bumpMinor advances the minor version component, falling back to
// "1.1.0" if the stored version string doesn't parse as semver (spec
// §4.1's PublishFlow behavior).
func bumpMinor(version string) string {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "1.1.0"
	}
	next := v.IncMinor()
	return next.String()
}
