package nodeproc

import (
	"fmt"

	"github.com/siddhantprateek/reefline/pkg/models"
)

// ConditionProcessor evaluates content.conditions[i].if in order; the
// first truthy predicate selects connection token $i, none truthy
// selects default (spec §4.4). Connection tokens only cover indices 0
// and 1 (spec §6); a condition beyond that range falls back to default.
type ConditionProcessor struct{}

func (ConditionProcessor) Process(pctx ProcessContext) (*StepResult, error) {
	result := newResult()

	conditions, _ := pctx.Node.Content["conditions"].([]interface{})
	evaluated := make([]map[string]interface{}, 0, len(conditions))
	matchedIndex := -1

	for i, raw := range conditions {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		predicate, _ := entry["if"].(map[string]interface{})
		record := map[string]interface{}{"expression": predicate}

		ok2, err := EvaluatePredicate(pctx.State, predicate)
		if err != nil {
			record["error"] = err.Error()
			record["result"] = false
			evaluated = append(evaluated, record)
			result.Errors = append(result.Errors, fmt.Sprintf("condition %d: %v", i, err))
			continue
		}
		record["result"] = ok2
		evaluated = append(evaluated, record)

		if ok2 && matchedIndex == -1 {
			matchedIndex = i
		}
	}

	var connType models.ConnectionType
	switch matchedIndex {
	case 0:
		connType = models.ConnectionOption0
	case 1:
		connType = models.ConnectionOption1
	default:
		connType = models.ConnectionDefault
	}

	result.ConnectionType = connType
	result.NextNodeID = selectTarget(pctx.Connections, connType)
	result.Detail = map[string]interface{}{
		"conditions_evaluated":   evaluated,
		"matched_condition_index": matchedIndex,
		"connection_taken":       connType,
	}
	return result, nil
}
