package nodeproc

import (
	"github.com/siddhantprateek/reefline/internal/action"
	"github.com/siddhantprateek/reefline/pkg/models"
)

// ActionProcessor runs the node's action list through the Action & Aggregate
// Engine (spec §4.5) and always transitions along default; the runtime is
// responsible for reloading the session after an action node completes
// (the refresh-after-action contract), not this processor.
type ActionProcessor struct {
	Engine *action.Engine
}

func (p ActionProcessor) Process(pctx ProcessContext) (*StepResult, error) {
	result := newResult()

	rawActions, _ := pctx.Node.Content["actions"].([]interface{})
	actions := make([]map[string]interface{}, 0, len(rawActions))
	for _, a := range rawActions {
		if m, ok := a.(map[string]interface{}); ok {
			actions = append(actions, m)
		}
	}

	outcome := p.Engine.Execute(pctx.Ctx, pctx.State, actions)
	result.Success = outcome.Success
	result.VariablesWritten = outcome.Variables
	result.Errors = outcome.Errors
	result.ConnectionType = models.ConnectionDefault
	result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
	result.Detail = map[string]interface{}{
		"action_type":       "action",
		"actions_executed":  outcome.ActionsExecuted,
		"variables_changed": outcome.Variables,
	}
	return result, nil
}
