// Package nodeproc implements one processor per node kind (spec §4.4):
// start, message, question, condition, action, webhook, script, composite.
// Each processor inspects a node's content against the current session
// state and reports what to write, what to emit, and which outgoing
// connection to take.
package nodeproc

import (
	"context"
	"time"

	"github.com/siddhantprateek/reefline/internal/action"
	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/models"
)

// UserInput carries a resumed question's answer into Process.
type UserInput struct {
	Value     interface{}
	InputType string
}

// ProcessContext is everything a processor needs to decide its outcome.
// State is a read-only snapshot; processors never mutate it in place.
type ProcessContext struct {
	Ctx         context.Context
	Node        *models.Node
	Session     *models.Session
	State       istate.Bag
	Connections []models.Connection
	Input       *UserInput
	HTTPTimeout time.Duration
}

// StepResult is the uniform outcome of one node's processing (spec §4.4).
type StepResult struct {
	Success          bool
	VariablesWritten istate.Bag
	MessagesEmitted  []map[string]interface{}
	ConnectionType   models.ConnectionType
	NextNodeID       *string
	Errors           []string
	ExpectsInput     bool
	InputType        string
	Detail           map[string]interface{}
}

// Processor implements one node kind's behavior.
type Processor interface {
	Process(pctx ProcessContext) (*StepResult, error)
}

// Registry maps a node kind to its processor.
type Registry map[models.NodeType]Processor

// NewRegistry wires every node kind's processor, sharing the action
// engine used by action and api_call-backed nodes.
func NewRegistry(engine *action.Engine) Registry {
	return Registry{
		models.NodeTypeStart:     StartProcessor{},
		models.NodeTypeMessage:   MessageProcessor{},
		models.NodeTypeQuestion:  QuestionProcessor{},
		models.NodeTypeCondition: ConditionProcessor{},
		models.NodeTypeAction:    ActionProcessor{Engine: engine},
		models.NodeTypeWebhook:   WebhookProcessor{},
		models.NodeTypeScript:    ScriptProcessor{},
		models.NodeTypeComposite: CompositeProcessor{},
	}
}

// selectTarget picks the first connection matching connType, in the
// order the caller supplied it (expected to be primary-key order, per
// spec §4.4's deterministic tie-break rule), and returns its target.
func selectTarget(conns []models.Connection, connType models.ConnectionType) *string {
	for _, c := range conns {
		if c.ConnectionType == connType {
			target := c.TargetNodeID
			return &target
		}
	}
	return nil
}

func newResult() *StepResult {
	return &StepResult{Success: true, VariablesWritten: istate.Bag{}}
}
