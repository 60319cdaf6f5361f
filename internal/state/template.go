package state

import "strings"

// token represents one {{path}} occurrence found by the shared tokenizer,
// plus the literal text that preceded it.
type token struct {
	literal string
	path    string // empty for the trailing literal-only token
}

// tokenize splits s into a sequence of literal/path tokens. The final
// token always carries the trailing literal with an empty path.
func tokenize(s string) []token {
	var out []token
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			out = append(out, token{literal: rest})
			return out
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			out = append(out, token{literal: rest})
			return out
		}
		end += start
		literal := rest[:start]
		path := strings.TrimSpace(rest[start+2 : end])
		out = append(out, token{literal: literal, path: path})
		rest = rest[end+2:]
	}
}

// Substitute replaces every {{path}} occurrence in s with the string
// representation of the value found at that dotted path in bag. Missing
// paths render as an empty string. Surrounding literal text is preserved.
func Substitute(bag Bag, s string) string {
	toks := tokenize(s)
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.literal)
		if t.path != "" {
			b.WriteString(stringify(Get(bag, t.path)))
		}
	}
	return b.String()
}

// Strip is the outbound-call variant of Substitute: used before dispatching
// an api_call's body and query params so an unresolved {{path}} placeholder
// never leaks to an external system. A string holding template tokens
// renders like Substitute would, unless at least one referenced path fails
// to resolve (Get returns nil) — then the whole string collapses to nil,
// whether the template was the entire string or embedded in surrounding
// text. Pure literal strings pass through unchanged, as do non-string
// scalars; maps and lists are traversed recursively.
func Strip(bag Bag, v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if !strings.Contains(t, "{{") || !strings.Contains(t, "}}") {
			return t
		}
		toks := tokenize(t)
		hasNamedToken := false
		for _, tk := range toks {
			if tk.path == "" {
				continue
			}
			hasNamedToken = true
			if Get(bag, tk.path) == nil {
				return nil
			}
		}
		if !hasNamedToken {
			// The only brace pair present was empty ("{{}}") and never
			// carried a path to resolve — nothing to keep.
			return nil
		}
		return Substitute(bag, t)
	case Bag:
		out := make(Bag, len(t))
		for k, vv := range t {
			out[k] = Strip(bag, vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = Strip(bag, vv)
		}
		return out
	default:
		return t
	}
}

// HasUnresolvedTemplate reports whether v (after recursing into maps and
// lists) still contains a raw {{...}} token in any string leaf. No
// production path calls it; only its own unit test exercises it.
func HasUnresolvedTemplate(v interface{}) bool {
	switch t := v.(type) {
	case string:
		return strings.Contains(t, "{{") && strings.Contains(t, "}}")
	case Bag:
		for _, vv := range t {
			if HasUnresolvedTemplate(vv) {
				return true
			}
		}
	case []interface{}:
		for _, vv := range t {
			if HasUnresolvedTemplate(vv) {
				return true
			}
		}
	}
	return false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return toJSONish(t)
	}
}
