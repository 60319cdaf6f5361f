package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewHasReservedRoots(t *testing.T) {
	bag := New()
	assert.Contains(t, bag, "user")
	assert.Contains(t, bag, "temp")
	assert.Contains(t, bag, "context")
}

func TestGetDottedPath(t *testing.T) {
	bag := Bag{
		"user": Bag{
			"profile": Bag{
				"name": "ada",
			},
		},
	}
	assert.Equal(t, "ada", Get(bag, "user.profile.name"))
	assert.Nil(t, Get(bag, "user.profile.missing"))
	assert.Nil(t, Get(bag, "user.missing.name"))
	assert.Nil(t, Get(bag, ""))
}

func TestGetStopsAtNonMap(t *testing.T) {
	bag := Bag{"user": "not-a-map"}
	assert.Nil(t, Get(bag, "user.name"))
}

func TestSetCreatesIntermediateMaps(t *testing.T) {
	bag := New()
	Set(bag, "context.cart.total", 42.0)
	assert.Equal(t, 42.0, Get(bag, "context.cart.total"))
}

func TestSetOverwritesNonMapIntermediate(t *testing.T) {
	bag := Bag{"user": "scalar"}
	Set(bag, "user.name", "ada")
	assert.Equal(t, "ada", Get(bag, "user.name"))
}

func TestDeepMergeRecursesMaps(t *testing.T) {
	base := Bag{
		"user": Bag{"name": "ada", "age": 30.0},
	}
	patch := Bag{
		"user": Bag{"age": 31.0, "city": "nyc"},
	}
	merged := DeepMerge(base, patch)
	assert.Equal(t, "ada", Get(merged, "user.name"))
	assert.Equal(t, 31.0, Get(merged, "user.age"))
	assert.Equal(t, "nyc", Get(merged, "user.city"))
}

func TestDeepMergeReplacesScalarsAndLists(t *testing.T) {
	base := Bag{"tags": []interface{}{"a", "b"}, "count": 1.0}
	patch := Bag{"tags": []interface{}{"c"}, "count": 2.0}
	merged := DeepMerge(base, patch)
	assert.Equal(t, []interface{}{"c"}, merged["tags"])
	assert.Equal(t, 2.0, merged["count"])
}

func TestDeepMergeNilBase(t *testing.T) {
	merged := DeepMerge(nil, Bag{"a": 1.0})
	assert.Equal(t, 1.0, merged["a"])
}

func TestCloneDeepCopiesNestedStructures(t *testing.T) {
	original := Bag{
		"list": []interface{}{Bag{"k": "v"}},
	}
	cloned := Clone(original).(Bag)
	clonedList := cloned["list"].([]interface{})
	clonedMap := clonedList[0].(Bag)
	clonedMap["k"] = "changed"

	originalMap := original["list"].([]interface{})[0].(Bag)
	assert.Equal(t, "v", originalMap["k"])
}
