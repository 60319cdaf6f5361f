// Package action implements the Action & Aggregate Engine (spec §4.5): a
// small typed action language (set_variable, aggregate, api_call)
// executed against session state, accumulating writes into a
// pending-variables map that the caller deep-merges into the session.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	istate "github.com/siddhantprateek/reefline/internal/state"
)

// InternalHandler services an api_call with auth_type=internal —
// dispatched in-process instead of over HTTP.
type InternalHandler func(ctx context.Context, body, query map[string]interface{}) (map[string]interface{}, error)

// Engine executes a node's action list against a session state snapshot.
type Engine struct {
	httpClient *http.Client
	internal   map[string]InternalHandler
}

// NewEngine builds an Engine. internalHandlers services "internal"
// auth_type api_calls by name (e.g. ISBN lookups); a nil map disables
// internal dispatch entirely (every internal call then errors).
func NewEngine(internalHandlers map[string]InternalHandler) *Engine {
	return &Engine{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		internal:   internalHandlers,
	}
}

// Result is the outcome of running one node's action list.
type Result struct {
	Success         bool
	Variables       istate.Bag
	Errors          []string
	ActionsExecuted []map[string]interface{}
}

// Execute runs actions in order against bag (read-only snapshot),
// accumulating writes into Result.Variables. success is false iff any
// action's failure was not absorbed by a fallback_response (spec §4.5's
// error accumulation rule).
func (e *Engine) Execute(ctx context.Context, bag istate.Bag, actions []map[string]interface{}) *Result {
	result := &Result{Success: true, Variables: istate.Bag{}}

	// Reads see the original bag merged with variables written by earlier
	// actions in the same list, so a later action can reference an
	// earlier one's output.
	view := istate.Bag(istate.Clone(bag).(istate.Bag))

	for _, raw := range actions {
		actionType, _ := raw["type"].(string)
		switch actionType {
		case "set_variable":
			e.execSetVariable(raw, view, result)
		case "aggregate":
			e.execAggregate(raw, view, result)
		case "api_call":
			e.execAPICall(ctx, raw, view, result)
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("unknown action type %q", actionType))
			result.Success = false
		}
		istate.DeepMerge(view, result.Variables)
	}

	return result
}

func (e *Engine) execSetVariable(raw map[string]interface{}, view istate.Bag, result *Result) {
	variable, _ := raw["variable"].(string)
	if variable == "" {
		result.Errors = append(result.Errors, "set_variable missing 'variable'")
		result.Success = false
		return
	}
	value := raw["value"]
	if s, ok := value.(string); ok {
		value = istate.Substitute(view, s)
	}
	istate.Set(result.Variables, variable, value)
	result.ActionsExecuted = append(result.ActionsExecuted, map[string]interface{}{
		"type":     "set_variable",
		"variable": variable,
	})
}

func decode(raw map[string]interface{}, out interface{}) error {
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
