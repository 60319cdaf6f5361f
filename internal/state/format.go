package state

import (
	"encoding/json"
	"fmt"
)

// toJSONish renders a non-string, non-bool, non-nil value for template
// substitution: numbers print plainly, maps/lists fall back to JSON.
func toJSONish(v interface{}) string {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case int, int64, int32:
		return fmt.Sprintf("%d", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
