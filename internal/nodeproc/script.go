package nodeproc

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/models"
)

// ScriptProcessor runs content.code in a sandboxed goja VM (no network,
// no filesystem) with inputs resolved from state and outputs written
// back to state (spec §4.4). A "frontend" execution_context is not run
// here at all; it is handed to the client adapter unexecuted.
type ScriptProcessor struct{}

func (ScriptProcessor) Process(pctx ProcessContext) (*StepResult, error) {
	result := newResult()

	code, _ := pctx.Node.Content["code"].(string)
	language, _ := pctx.Node.Content["language"].(string)
	executionContext, _ := pctx.Node.Content["execution_context"].(string)
	if executionContext == "" {
		executionContext = "backend"
	}

	codePreview := code
	if len(codePreview) > 500 {
		codePreview = codePreview[:500]
	}

	if executionContext == "frontend" {
		result.MessagesEmitted = []map[string]interface{}{
			{"type": "script", "content": code, "language": language},
		}
		result.ConnectionType = models.ConnectionDefault
		result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
		result.Detail = map[string]interface{}{
			"language":     language,
			"code_preview": codePreview,
			"deferred_to":  "frontend",
		}
		return result, nil
	}

	inputSpec, _ := pctx.Node.Content["inputs"].(map[string]interface{})
	inputs := map[string]interface{}{}
	for name, rawPath := range inputSpec {
		path, ok := rawPath.(string)
		if !ok {
			continue
		}
		inputs[name] = istate.Get(pctx.State, path)
	}

	outputSpec, _ := pctx.Node.Content["outputs"].(map[string]interface{})

	timeoutMs, _ := pctx.Node.Content["timeout"].(float64)
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	consoleLogs := []string{}
	start := time.Now()
	outputs, runErr := runScript(code, inputs, timeoutMs, &consoleLogs)
	durationMs := time.Since(start).Milliseconds()

	if len(consoleLogs) > 100 {
		consoleLogs = consoleLogs[:100]
	}

	detail := map[string]interface{}{
		"language":          language,
		"code_preview":      codePreview,
		"inputs":            inputs,
		"console_logs":      consoleLogs,
		"execution_time_ms": durationMs,
	}

	if runErr != nil {
		detail["error"] = runErr.Error()
		result.Errors = append(result.Errors, runErr.Error())
		result.ConnectionType = models.ConnectionFailure
		result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionFailure)
		if result.NextNodeID == nil {
			result.ConnectionType = models.ConnectionDefault
			result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
		}
		result.Detail = detail
		return result, nil
	}

	for name, rawPath := range outputSpec {
		path, ok := rawPath.(string)
		if !ok {
			continue
		}
		if v, present := outputs[name]; present {
			istate.Set(result.VariablesWritten, path, v)
		}
	}

	detail["outputs"] = outputs
	result.Detail = detail
	result.ConnectionType = models.ConnectionDefault
	result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
	return result, nil
}

// runScript executes code in a fresh goja VM with a hard deadline. The
// script is expected to assign to a global "outputs" object; console.log
// calls are captured rather than written anywhere.
func runScript(code string, inputs map[string]interface{}, timeoutMs float64, logs *[]string) (map[string]interface{}, error) {
	vm := goja.New()

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		*logs = append(*logs, strings.Join(parts, " "))
		return goja.Undefined()
	})
	_ = vm.Set("console", console)
	_ = vm.Set("inputs", inputs)
	_ = vm.Set("outputs", map[string]interface{}{})

	deadline := time.Duration(timeoutMs) * time.Millisecond
	timer := time.AfterFunc(deadline, func() {
		vm.Interrupt("script execution timed out")
	})
	defer timer.Stop()

	_, err := vm.RunString(code)
	if err != nil {
		return nil, fmt.Errorf("script execution failed: %w", err)
	}

	outputsValue := vm.Get("outputs")
	if outputsValue == nil {
		return map[string]interface{}{}, nil
	}
	exported, ok := outputsValue.Export().(map[string]interface{})
	if !ok {
		return map[string]interface{}{}, nil
	}
	return exported, nil
}
