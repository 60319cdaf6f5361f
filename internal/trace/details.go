package trace

import (
	"github.com/siddhantprateek/reefline/pkg/models"
)

const webhookBodyCap = 1024

var redactedHeaders = map[string]bool{
	"authorization": true,
	"x-api-key":     true,
	"cookie":        true,
	"x-auth-token":  true,
}

// BuildDetails normalizes a node processor's raw Detail map into the
// typed execution_details shape of spec §4.7, applying the per-kind caps
// and redaction rules. Unknown kinds pass the raw detail through as-is.
func BuildDetails(nodeType models.NodeType, raw map[string]interface{}) models.JSONMap {
	if raw == nil {
		return models.JSONMap{}
	}
	switch nodeType {
	case models.NodeTypeWebhook:
		return buildWebhookDetails(raw)
	case models.NodeTypeScript:
		return buildScriptDetails(raw)
	default:
		return models.JSONMap(raw)
	}
}

func buildWebhookDetails(raw map[string]interface{}) models.JSONMap {
	out := models.JSONMap{}
	for k, v := range raw {
		out[k] = v
	}

	out["url"] = maskURLCredentials(stringOrEmpty(raw["url"]))

	if headers, ok := raw["request_headers"].(map[string]string); ok {
		redacted := map[string]string{}
		for k, v := range headers {
			if redactedHeaders[lower(k)] {
				redacted[k] = "[REDACTED]"
			} else {
				redacted[k] = v
			}
		}
		out["request_headers"] = redacted
	}

	if body, ok := raw["response_body"].(string); ok {
		out["response_body"] = truncateBody(body)
	}

	return out
}

func buildScriptDetails(raw map[string]interface{}) models.JSONMap {
	out := models.JSONMap{}
	for k, v := range raw {
		out[k] = v
	}
	if preview, ok := raw["code_preview"].(string); ok && len(preview) > 500 {
		out["code_preview"] = preview[:500]
	}
	if logs, ok := raw["console_logs"].([]string); ok && len(logs) > 100 {
		out["console_logs"] = logs[:100]
	}
	return out
}

func truncateBody(body string) interface{} {
	if len(body) <= webhookBodyCap {
		return body
	}
	preview := body
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return map[string]interface{}{
		"_truncated":  true,
		"_size_bytes": len(body),
		"_preview":    preview,
	}
}

func stringOrEmpty(v interface{}) string {
	s, _ := v.(string)
	return s
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
