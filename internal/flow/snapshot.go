package flow

import (
	"strings"

	"github.com/google/uuid"
	"github.com/siddhantprateek/reefline/pkg/models"
	"gorm.io/gorm"
)

// BuildSnapshot projects a flow's relational Node/Connection rows into a
// flow_data map (spec §4.1's projection algorithm). If the flow has no
// relational rows, the existing flow_data is preserved verbatim — drafts
// created via a snapshot-only workflow are left untouched (step 2).
func BuildSnapshot(tx *gorm.DB, flowID string, existing models.JSONMap) (models.JSONMap, error) {
	var nodeRows []models.Node
	if err := tx.Where("flow_id = ?", flowID).Find(&nodeRows).Error; err != nil {
		return nil, err
	}
	var connRows []models.Connection
	if err := tx.Where("flow_id = ?", flowID).Find(&connRows).Error; err != nil {
		return nil, err
	}

	if len(nodeRows) == 0 && len(connRows) == 0 {
		if existing == nil {
			return models.JSONMap{}, nil
		}
		return existing, nil
	}

	nodes := make([]interface{}, 0, len(nodeRows))
	for _, n := range nodeRows {
		position := n.Position
		if position == nil {
			position = models.JSONMap{"x": 0, "y": 0}
		}
		content := n.Content
		if content == nil {
			content = models.JSONMap{}
		}
		info := n.Info
		if info == nil {
			info = models.JSONMap{}
		}
		var template interface{}
		if n.Template != nil {
			template = *n.Template
		}
		nodes = append(nodes, map[string]interface{}{
			"id":       n.NodeID,
			"type":     strings.ToLower(string(n.NodeType)),
			"content":  content,
			"template": template,
			"position": position,
			"info":     info,
		})
	}

	connections := make([]interface{}, 0, len(connRows))
	for _, c := range connRows {
		conditions := c.Conditions
		if conditions == nil {
			conditions = models.JSONMap{}
		}
		info := c.Info
		if info == nil {
			info = models.JSONMap{}
		}
		connections = append(connections, map[string]interface{}{
			"source":     c.SourceNodeID,
			"target":     c.TargetNodeID,
			"type":       EnumToToken(c.ConnectionType),
			"conditions": conditions,
			"info":       info,
		})
	}

	out := models.JSONMap{}
	for k, v := range existing {
		if k == "nodes" || k == "connections" {
			continue
		}
		out[k] = v
	}
	out["nodes"] = nodes
	out["connections"] = connections
	return out, nil
}

// MaterializeSnapshot is the inverse of BuildSnapshot: it upserts the
// nodes/connections described by a posted flow_data blob into the
// relational tables, tolerating the synonym key names produced by
// various authoring-tool exports (spec feature supplement). Called by
// UpdateFlow when a caller posts a replacement flow_data directly instead
// of using the relational node/connection endpoints.
func MaterializeSnapshot(tx *gorm.DB, flowID string, snapshot models.JSONMap) error {
	nodes, _ := snapshot["nodes"].([]interface{})
	for _, raw := range nodes {
		node, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		nodeID := extractNodeID(node)
		if nodeID == "" {
			continue
		}

		var existing models.Node
		err := tx.Where("flow_id = ? AND node_id = ?", flowID, nodeID).First(&existing).Error

		nodeType := extractNodeType(node)
		content := extractNodeContent(node)
		template := extractNodeTemplate(node)
		info := extractNodeInfo(node)
		position := extractNodePosition(node)

		if err == gorm.ErrRecordNotFound {
			newNode := models.Node{
				ID:       uuid.NewString(),
				FlowID:   flowID,
				NodeID:   nodeID,
				NodeType: nodeType,
				Content:  content,
				Template: template,
				Position: position,
				Info:     info,
			}
			if err := tx.Create(&newNode).Error; err != nil {
				return err
			}
			continue
		} else if err != nil {
			return err
		}

		existing.NodeType = nodeType
		existing.Content = content
		existing.Template = template
		existing.Position = position
		existing.Info = info
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
	}

	connections, _ := snapshot["connections"].([]interface{})
	if connections == nil {
		connections, _ = snapshot["edges"].([]interface{})
	}
	for _, raw := range connections {
		conn, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		data, _ := conn["data"].(map[string]interface{})

		source := firstString(conn["source"], conn["source_node_id"])
		target := firstString(conn["target"], conn["target_node_id"])
		if source == "" || target == "" {
			continue
		}

		var rawType interface{}
		for _, v := range []interface{}{conn["connection_type"], safeGet(data, "connection_type"), conn["type"], safeGet(data, "type")} {
			if v != nil {
				rawType = v
				break
			}
		}
		ctype := TokenToEnum(toString(rawType))

		conditions := asJSONMap(firstNonNil(conn["conditions"], safeGet(data, "conditions")))
		info := asJSONMap(firstNonNil(conn["info"], safeGet(data, "info")))

		var existing models.Connection
		err := tx.Where(
			"flow_id = ? AND source_node_id = ? AND target_node_id = ? AND connection_type = ?",
			flowID, source, target, ctype,
		).First(&existing).Error

		if err == gorm.ErrRecordNotFound {
			newConn := models.Connection{
				ID:             uuid.NewString(),
				FlowID:         flowID,
				SourceNodeID:   source,
				TargetNodeID:   target,
				ConnectionType: ctype,
				Conditions:     conditions,
				Info:           info,
			}
			if err := tx.Create(&newConn).Error; err != nil {
				return err
			}
			continue
		} else if err != nil {
			return err
		}

		existing.Conditions = conditions
		existing.Info = info
		if err := tx.Save(&existing).Error; err != nil {
			return err
		}
	}

	return nil
}

func extractNodeID(node map[string]interface{}) string {
	for _, key := range []string{"id", "node_id", "node_key"} {
		if v, ok := node[key]; ok && v != nil {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	if data, ok := node["data"].(map[string]interface{}); ok {
		if v, ok := data["id"]; ok && v != nil {
			return toString(v)
		}
	}
	return ""
}

func extractNodeType(node map[string]interface{}) models.NodeType {
	raw := firstNonNil(node["node_type"], node["type"])
	rawStr := toString(raw)
	if rawStr == "" || strings.EqualFold(rawStr, "custom") {
		if data, ok := node["data"].(map[string]interface{}); ok {
			raw = firstNonNil(data["nodeType"], data["node_type"])
			rawStr = toString(raw)
		}
	}
	switch strings.ToUpper(rawStr) {
	case "START":
		return models.NodeTypeStart
	case "MESSAGE":
		return models.NodeTypeMessage
	case "QUESTION":
		return models.NodeTypeQuestion
	case "CONDITION":
		return models.NodeTypeCondition
	case "ACTION":
		return models.NodeTypeAction
	case "WEBHOOK":
		return models.NodeTypeWebhook
	case "COMPOSITE":
		return models.NodeTypeComposite
	case "SCRIPT":
		return models.NodeTypeScript
	default:
		return models.NodeTypeMessage
	}
}

func extractNodeContent(node map[string]interface{}) models.JSONMap {
	content := node["content"]
	if content == nil {
		if data, ok := node["data"].(map[string]interface{}); ok {
			content = data["content"]
		}
	}
	return asJSONMap(content)
}

func extractNodeTemplate(node map[string]interface{}) *string {
	t := node["template"]
	if t == nil {
		if data, ok := node["data"].(map[string]interface{}); ok {
			t = data["template"]
		}
	}
	if t == nil {
		return nil
	}
	s := toString(t)
	return &s
}

func extractNodeInfo(node map[string]interface{}) models.JSONMap {
	info := node["info"]
	if info == nil {
		if data, ok := node["data"].(map[string]interface{}); ok {
			info = firstNonNil(data["info"], data["meta_data"])
		}
	}
	return asJSONMap(info)
}

func extractNodePosition(node map[string]interface{}) models.JSONMap {
	pos := firstNonNil(node["position"], node["position_absolute"])
	if pos == nil {
		if data, ok := node["data"].(map[string]interface{}); ok {
			pos = data["position"]
		}
	}
	m := asJSONMap(pos)
	if _, ok := m["x"]; !ok {
		m["x"] = 0
	}
	if _, ok := m["y"]; !ok {
		m["y"] = 0
	}
	return m
}

func safeGet(m map[string]interface{}, key string) interface{} {
	if m == nil {
		return nil
	}
	return m[key]
}

func firstNonNil(values ...interface{}) interface{} {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstString(values ...interface{}) string {
	for _, v := range values {
		if s := toString(v); s != "" {
			return s
		}
	}
	return ""
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asJSONMap(v interface{}) models.JSONMap {
	if v == nil {
		return models.JSONMap{}
	}
	if m, ok := v.(map[string]interface{}); ok {
		return models.JSONMap(m)
	}
	if m, ok := v.(models.JSONMap); ok {
		return m
	}
	return models.JSONMap{}
}
