package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteReplacesKnownPaths(t *testing.T) {
	bag := Bag{"user": Bag{"name": "ada"}}
	got := Substitute(bag, "hello {{user.name}}!")
	assert.Equal(t, "hello ada!", got)
}

func TestSubstituteMissingPathRendersEmpty(t *testing.T) {
	bag := New()
	got := Substitute(bag, "hi {{user.missing}}")
	assert.Equal(t, "hi ", got)
}

func TestSubstituteNumberAndBool(t *testing.T) {
	bag := Bag{"context": Bag{"total": 42.0, "active": true, "ratio": 1.5}}
	assert.Equal(t, "total=42", Substitute(bag, "total={{context.total}}"))
	assert.Equal(t, "active=true", Substitute(bag, "active={{context.active}}"))
	assert.Equal(t, "ratio=1.5", Substitute(bag, "ratio={{context.ratio}}"))
}

func TestSubstituteMultipleTemplatesInOneString(t *testing.T) {
	bag := Bag{"user": Bag{"first": "ada", "last": "lovelace"}}
	got := Substitute(bag, "{{user.first}} {{user.last}}")
	assert.Equal(t, "ada lovelace", got)
}

func TestStripCollapsesUnresolvedWholeTemplateString(t *testing.T) {
	assert.Nil(t, Strip(New(), "{{user.token}}"))
}

func TestStripCollapsesUnresolvedPartialTemplateString(t *testing.T) {
	assert.Nil(t, Strip(New(), "Bearer {{user.token}}"))
}

func TestStripResolvesKnownTemplateInstead(t *testing.T) {
	bag := Bag{"user": Bag{"token": "abc123"}}
	assert.Equal(t, "Bearer abc123", Strip(bag, "Bearer {{user.token}}"))
}

func TestStripPassesThroughResolvedStrings(t *testing.T) {
	assert.Equal(t, "plain value", Strip(New(), "plain value"))
}

func TestStripRecursesIntoMapsAndLists(t *testing.T) {
	bag := Bag{"temp": Bag{"x": "resolved"}}
	in := Bag{
		"headers": Bag{"Authorization": "Bearer {{user.token}}"},
		"items":   []interface{}{"ok", "{{temp.x}}"},
		"count":   3.0,
	}
	out := Strip(bag, in).(Bag)
	headers := out["headers"].(Bag)
	assert.Nil(t, headers["Authorization"])
	items := out["items"].([]interface{})
	assert.Equal(t, "ok", items[0])
	assert.Equal(t, "resolved", items[1])
	assert.Equal(t, 3.0, out["count"])
}

func TestStripEmptyBraces(t *testing.T) {
	assert.Nil(t, Strip(New(), "{{}}"))
}

func TestHasUnresolvedTemplate(t *testing.T) {
	assert.True(t, HasUnresolvedTemplate("{{x}}"))
	assert.False(t, HasUnresolvedTemplate("plain"))
	assert.True(t, HasUnresolvedTemplate(Bag{"a": []interface{}{"{{y}}"}}))
	assert.False(t, HasUnresolvedTemplate(Bag{"a": "clean"}))
}

func TestTokenizeStrayBraces(t *testing.T) {
	got := Substitute(New(), "just a } stray brace")
	assert.Equal(t, "just a } stray brace", got)
}
