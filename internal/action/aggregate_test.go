package action

import (
	"context"
	"testing"

	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/stretchr/testify/assert"
)

func TestAggregateSumOverProjectedField(t *testing.T) {
	bag := istate.Bag{
		"temp": istate.Bag{
			"quiz": []interface{}{
				istate.Bag{"score": 5.0},
				istate.Bag{"score": 8.0},
				istate.Bag{"score": 7.0},
			},
		},
	}
	actions := []map[string]interface{}{
		{
			"type":      "aggregate",
			"source":    "temp.quiz",
			"field":     "score",
			"operation": "sum",
			"target":    "results.total",
		},
	}

	e := NewEngine(nil)
	result := e.Execute(context.Background(), bag, actions)

	assert.True(t, result.Success)
	assert.Equal(t, int64(20), istate.Get(result.Variables, "results.total"))
}

func TestAggregateMergeWithMaxStrategy(t *testing.T) {
	bag := istate.Bag{
		"temp": istate.Bag{
			"a": []interface{}{
				istate.Bag{"x": 3.0, "y": 5.0},
				istate.Bag{"x": 4.0, "y": 3.0},
				istate.Bag{"x": 2.0, "z": 9.0},
			},
		},
	}
	actions := []map[string]interface{}{
		{
			"type":           "aggregate",
			"source":         "temp.a",
			"operation":      "merge",
			"merge_strategy": "max",
			"target":         "user.peak",
		},
	}

	e := NewEngine(nil)
	result := e.Execute(context.Background(), bag, actions)

	assert.True(t, result.Success)
	peak := istate.Get(result.Variables, "user.peak").(istate.Bag)
	assert.Equal(t, 4.0, peak["x"])
	assert.Equal(t, 5.0, peak["y"])
	assert.Equal(t, 9.0, peak["z"])
}

func TestAggregateMaxOverEmptyListRecordsError(t *testing.T) {
	bag := istate.Bag{"temp": istate.Bag{"quiz": []interface{}{}}}
	actions := []map[string]interface{}{
		{
			"type":      "aggregate",
			"source":    "temp.quiz",
			"operation": "max",
			"target":    "results.best",
		},
	}

	e := NewEngine(nil)
	result := e.Execute(context.Background(), bag, actions)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
	assert.Nil(t, istate.Get(result.Variables, "results.best"))
}

func TestAggregateMissingSourceRecordsErrorWithoutHaltingLaterActions(t *testing.T) {
	bag := istate.Bag{"temp": istate.Bag{}}
	actions := []map[string]interface{}{
		{
			"type":      "aggregate",
			"source":    "temp.missing",
			"operation": "sum",
			"target":    "results.total",
		},
		{
			"type":     "set_variable",
			"variable": "user.seen",
			"value":    true,
		},
	}

	e := NewEngine(nil)
	result := e.Execute(context.Background(), bag, actions)

	assert.NotEmpty(t, result.Errors)
	assert.Equal(t, true, istate.Get(result.Variables, "user.seen"))
}

func TestAggregateCollectFlattensOneLevel(t *testing.T) {
	bag := istate.Bag{
		"temp": istate.Bag{
			"groups": []interface{}{
				[]interface{}{"a", "b"},
				[]interface{}{"c"},
			},
		},
	}
	actions := []map[string]interface{}{
		{
			"type":      "aggregate",
			"source":    "temp.groups",
			"operation": "collect",
			"target":    "results.all",
		},
	}

	e := NewEngine(nil)
	result := e.Execute(context.Background(), bag, actions)

	assert.True(t, result.Success)
	assert.Equal(t, []interface{}{"a", "b", "c"}, istate.Get(result.Variables, "results.all"))
}

func TestAggregateCountOverEmptyListIsZero(t *testing.T) {
	bag := istate.Bag{"temp": istate.Bag{"items": []interface{}{}}}
	actions := []map[string]interface{}{
		{
			"type":      "aggregate",
			"source":    "temp.items",
			"operation": "count",
			"target":    "results.count",
		},
	}

	e := NewEngine(nil)
	result := e.Execute(context.Background(), bag, actions)

	assert.True(t, result.Success)
	assert.Equal(t, 0, istate.Get(result.Variables, "results.count"))
}
