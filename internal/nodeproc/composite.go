package nodeproc

import "github.com/siddhantprateek/reefline/pkg/models"

// CompositeProcessor enters a sub-graph by node id (spec §4.4). The
// sub-graph's own nodes use ordinary connections to route back out; this
// processor only handles the entry hop, content.entry_node_id naming the
// first node of the referenced sub-graph.
type CompositeProcessor struct{}

func (CompositeProcessor) Process(pctx ProcessContext) (*StepResult, error) {
	result := newResult()
	result.ConnectionType = models.ConnectionDefault

	if entry, ok := pctx.Node.Content["entry_node_id"].(string); ok && entry != "" {
		result.NextNodeID = &entry
		result.Detail = map[string]interface{}{"entered_subgraph": entry}
		return result, nil
	}

	result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
	return result, nil
}
