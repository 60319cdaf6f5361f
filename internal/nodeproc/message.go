package nodeproc

import (
	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/models"
)

// MessageProcessor renders content.messages with template substitution,
// emits each via history, and transitions along default (spec §4.4).
type MessageProcessor struct{}

func (MessageProcessor) Process(pctx ProcessContext) (*StepResult, error) {
	result := newResult()

	rawMessages, _ := pctx.Node.Content["messages"].([]interface{})
	rendered := make([]map[string]interface{}, 0, len(rawMessages))
	for _, rm := range rawMessages {
		m, ok := rm.(map[string]interface{})
		if !ok {
			continue
		}
		out := map[string]interface{}{"type": m["type"]}
		if content, ok := m["content"].(string); ok {
			out["content"] = istate.Substitute(pctx.State, content)
		} else {
			out["content"] = m["content"]
		}
		if delay, ok := m["delay"]; ok {
			out["delay"] = delay
		}
		rendered = append(rendered, out)
	}

	result.MessagesEmitted = rendered
	result.ConnectionType = models.ConnectionDefault
	result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
	result.Detail = map[string]interface{}{
		"message_template": rawMessages,
		"rendered_message": rendered,
	}
	return result, nil
}
