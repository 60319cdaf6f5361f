// Package state implements the session state bag: a hierarchical map
// under the reserved roots "user", "temp", and "context", with
// dotted-path navigation and a deep-merge helper.
package state

import "strings"

// Bag is the recursive value shape the session state is built from:
// nil, bool, float64/int, string, []interface{}, or map[string]interface{}.
// It mirrors what encoding/json produces so a session's state round-trips
// through the database JSON column without a custom marshaler.
type Bag = map[string]interface{}

// New returns an empty state bag with the three reserved roots present.
func New() Bag {
	return Bag{
		"user":    Bag{},
		"temp":    Bag{},
		"context": Bag{},
	}
}

// Get navigates a dotted path ("user.profile.name") and returns the value
// found there, or nil if any segment is missing or not a map.
func Get(bag Bag, path string) interface{} {
	if path == "" {
		return nil
	}
	segments := strings.Split(path, ".")
	var cur interface{} = bag
	for _, seg := range segments {
		m, ok := cur.(Bag)
		if !ok {
			if mm, ok2 := cur.(map[string]interface{}); ok2 {
				m = mm
			} else {
				return nil
			}
		}
		v, present := m[seg]
		if !present {
			return nil
		}
		cur = v
	}
	return cur
}

// Set writes value at the dotted path, auto-creating intermediate maps.
// It mutates bag in place and also returns it for chaining.
func Set(bag Bag, path string, value interface{}) Bag {
	if path == "" {
		return bag
	}
	segments := strings.Split(path, ".")
	cur := bag
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return bag
		}
		next, ok := cur[seg].(Bag)
		if !ok {
			if nextMap, ok2 := cur[seg].(map[string]interface{}); ok2 {
				next = nextMap
			} else {
				next = Bag{}
				cur[seg] = next
			}
		}
		cur = next
	}
	return bag
}

// DeepMerge merges patch into base: scalars and lists in patch replace the
// corresponding key in base; maps recurse. base is mutated and returned.
func DeepMerge(base, patch Bag) Bag {
	if base == nil {
		base = Bag{}
	}
	for k, pv := range patch {
		bv, exists := base[k]
		if !exists {
			base[k] = pv
			continue
		}
		pm, pIsMap := asBag(pv)
		bm, bIsMap := asBag(bv)
		if pIsMap && bIsMap {
			base[k] = DeepMerge(bm, pm)
			continue
		}
		base[k] = pv
	}
	return base
}

func asBag(v interface{}) (Bag, bool) {
	switch m := v.(type) {
	case Bag:
		return m, true
	default:
		return nil, false
	}
}

// Clone performs a deep copy of a state bag — maps and slices are
// recursively duplicated, scalars are passed through.
func Clone(v interface{}) interface{} {
	switch t := v.(type) {
	case Bag:
		out := make(Bag, len(t))
		for k, vv := range t {
			out[k] = Clone(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = Clone(vv)
		}
		return out
	default:
		return t
	}
}
