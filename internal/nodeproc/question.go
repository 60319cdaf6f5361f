package nodeproc

import (
	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/models"
)

// QuestionProcessor renders a prompt and suspends the runtime until an
// answer is supplied; on resume it writes the answer into state and picks
// the outgoing connection (spec §4.4).
type QuestionProcessor struct{}

func (QuestionProcessor) Process(pctx ProcessContext) (*StepResult, error) {
	result := newResult()

	questionText, _ := pctx.Node.Content["question"].(string)
	rendered := istate.Substitute(pctx.State, questionText)
	inputType, _ := pctx.Node.Content["input_type"].(string)
	if inputType == "" {
		inputType = "text"
	}
	variable, _ := pctx.Node.Content["variable"].(string)
	options, _ := pctx.Node.Content["options"].([]interface{})

	detail := map[string]interface{}{
		"question_text":    questionText,
		"rendered_question": rendered,
		"input_type":       inputType,
	}
	if options != nil {
		detail["options"] = options
	}

	if pctx.Input == nil {
		result.ExpectsInput = true
		result.InputType = inputType
		result.Detail = detail
		return result, nil
	}

	detail["user_response"] = pctx.Input.Value

	if variable != "" {
		istate.Set(result.VariablesWritten, variable, pctx.Input.Value)
	}

	if inputType == "choice" {
		idx, ok := choiceIndex(pctx.Input.Value)
		var connType models.ConnectionType
		switch {
		case ok && idx == 0:
			connType = models.ConnectionOption0
		case ok && idx == 1:
			connType = models.ConnectionOption1
		default:
			connType = models.ConnectionDefault
		}
		result.ConnectionType = connType
		result.NextNodeID = selectTarget(pctx.Connections, connType)
		if result.NextNodeID == nil && connType != models.ConnectionDefault {
			result.ConnectionType = models.ConnectionDefault
			result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
		}
	} else {
		result.ConnectionType = models.ConnectionDefault
		result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
	}

	result.Detail = detail
	return result, nil
}

func choiceIndex(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
