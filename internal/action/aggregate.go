package action

import (
	"fmt"

	istate "github.com/siddhantprateek/reefline/internal/state"
)

// execAggregate implements the aggregate action: reduce a list found at
// source (optionally projecting a field out of each element first) into
// a single value written to target.
func (e *Engine) execAggregate(raw map[string]interface{}, view istate.Bag, result *Result) {
	source, _ := raw["source"].(string)
	operation, _ := raw["operation"].(string)
	target, _ := raw["target"].(string)
	field, _ := raw["field"].(string)
	mergeStrategy, _ := raw["merge_strategy"].(string)
	if mergeStrategy == "" {
		mergeStrategy = "last"
	}

	rawList := istate.Get(view, source)
	items, ok := asList(rawList)
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("aggregate source %q is not a list", source))
		return
	}

	values := items
	if field != "" {
		projected := make([]interface{}, len(items))
		for i, item := range items {
			projected[i] = istate.Get(asBagOrEmpty(item), field)
		}
		values = projected
	}

	var out interface{}
	var err error
	switch operation {
	case "sum":
		out = aggregateSum(values)
	case "avg":
		out = aggregateAvg(values)
	case "min":
		out, err = aggregateExtreme(values, false)
	case "max":
		out, err = aggregateExtreme(values, true)
	case "count":
		out = len(items)
	case "collect":
		out = aggregateCollect(values)
	case "merge":
		out, err = aggregateMerge(values, mergeStrategy)
	default:
		err = fmt.Errorf("unknown aggregate operation %q", operation)
	}

	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		result.Success = false
		return
	}

	if target == "" {
		result.ActionsExecuted = append(result.ActionsExecuted, map[string]interface{}{
			"type":      "aggregate",
			"operation": operation,
			"skipped":   "no target",
		})
		return
	}

	istate.Set(result.Variables, target, out)
	result.ActionsExecuted = append(result.ActionsExecuted, map[string]interface{}{
		"type":      "aggregate",
		"operation": operation,
		"target":    target,
	})
}

func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case nil:
		return nil, false
	default:
		return nil, false
	}
}

func asBagOrEmpty(v interface{}) istate.Bag {
	if m, ok := v.(map[string]interface{}); ok {
		return istate.Bag(m)
	}
	if b, ok := v.(istate.Bag); ok {
		return b
	}
	return istate.Bag{}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// allIntegral reports whether every numeric input was an integral
// type, so sum can return an int64 rather than a float when that
// matches the source data's shape.
func allIntegral(values []interface{}) bool {
	for _, v := range values {
		switch v.(type) {
		case int, int32, int64:
			continue
		case float64:
			f := v.(float64)
			if f != float64(int64(f)) {
				return false
			}
			continue
		default:
			return false
		}
	}
	return true
}

func aggregateSum(values []interface{}) interface{} {
	var sum float64
	for _, v := range values {
		if f, ok := asFloat(v); ok {
			sum += f
		}
	}
	if allIntegral(values) {
		return int64(sum)
	}
	return sum
}

func aggregateAvg(values []interface{}) interface{} {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	n := 0
	for _, v := range values {
		if f, ok := asFloat(v); ok {
			sum += f
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func aggregateExtreme(values []interface{}, wantMax bool) (interface{}, error) {
	if len(values) == 0 {
		if wantMax {
			return nil, fmt.Errorf("max over an empty list has no value")
		}
		return nil, fmt.Errorf("min over an empty list has no value")
	}
	best := values[0]
	bestF, bestOK := asFloat(best)
	for _, v := range values[1:] {
		f, ok := asFloat(v)
		if !ok {
			continue
		}
		if !bestOK || (wantMax && f > bestF) || (!wantMax && f < bestF) {
			best, bestF, bestOK = v, f, true
		}
	}
	return best, nil
}

func aggregateCollect(values []interface{}) []interface{} {
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if list, ok := v.([]interface{}); ok {
			out = append(out, list...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func aggregateMerge(values []interface{}, strategy string) (istate.Bag, error) {
	merged := istate.Bag{}
	for _, v := range values {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		for k, newVal := range m {
			existing, has := merged[k]
			if !has {
				merged[k] = newVal
				continue
			}
			switch strategy {
			case "sum":
				ef, eok := asFloat(existing)
				nf, nok := asFloat(newVal)
				if eok && nok {
					merged[k] = ef + nf
				} else {
					merged[k] = newVal
				}
			case "max":
				ef, eok := asFloat(existing)
				nf, nok := asFloat(newVal)
				if eok && nok && nf > ef {
					merged[k] = newVal
				} else if !eok {
					merged[k] = newVal
				}
			case "last":
				merged[k] = newVal
			default:
				return nil, fmt.Errorf("unknown merge_strategy %q", strategy)
			}
		}
	}
	return merged, nil
}
