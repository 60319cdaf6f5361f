package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/crypto"
)

// apiCallConfig is the nested "config" object of an api_call action.
type apiCallConfig struct {
	Endpoint    string                 `json:"endpoint"`
	Method      string                 `json:"method"`
	AuthType    string                 `json:"auth_type"`
	Body        map[string]interface{} `json:"body"`
	QueryParams map[string]interface{} `json:"query_params"`
	Headers     map[string]string      `json:"headers"`
	// Credentials holds the external auth material at rest, encrypted with
	// pkg/crypto (spec §4.5): base64(nonce||ciphertext) over a JSON object
	// of header name -> value, e.g. {"Authorization": "Bearer sk-..."}.
	// Never stored or logged in cleartext; decrypted only for the duration
	// of the outbound call.
	Credentials      string                 `json:"credentials"`
	ResponseMapping  map[string]string      `json:"response_mapping"`
	FallbackResponse map[string]interface{} `json:"fallback_response"`
	TimeoutSeconds   float64                `json:"timeout_seconds"`
}

// resolveCredentials decrypts cfg.Credentials (when present) into a set of
// header name/value pairs to merge onto the outbound request, following the
// teacher's flows.resolveCredentials: decrypt, then JSON-unmarshal into a
// flat string map. Internal calls never carry encrypted credentials.
func resolveCredentials(cfg apiCallConfig) (map[string]string, error) {
	if cfg.AuthType == "internal" || cfg.Credentials == "" {
		return nil, nil
	}
	raw, err := crypto.Decrypt(cfg.Credentials)
	if err != nil {
		return nil, fmt.Errorf("decrypting credentials: %w", err)
	}
	var creds map[string]string
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("parsing decrypted credentials: %w", err)
	}
	return creds, nil
}

// execAPICall dispatches an api_call action to either an internal handler
// (auth_type=internal) or an external HTTP endpoint, maps the response
// fields named in response_mapping into variables, and falls back to
// fallback_response when the call fails and one was configured.
func (e *Engine) execAPICall(ctx context.Context, raw map[string]interface{}, view istate.Bag, result *Result) {
	configRaw, _ := raw["config"].(map[string]interface{})
	var cfg apiCallConfig
	if err := decode(configRaw, &cfg); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("api_call: invalid config: %v", err))
		result.Success = false
		return
	}
	if cfg.Method == "" {
		cfg.Method = "POST"
	}

	body := renderOutbound(view, cfg.Body)
	query := renderOutbound(view, cfg.QueryParams)

	var response map[string]interface{}
	var err error
	switch cfg.AuthType {
	case "internal":
		response, err = e.callInternal(ctx, cfg.Endpoint, body, query)
	default:
		creds, credErr := resolveCredentials(cfg)
		if credErr != nil {
			err = credErr
			break
		}
		if len(creds) > 0 {
			if cfg.Headers == nil {
				cfg.Headers = make(map[string]string, len(creds))
			}
			for k, v := range creds {
				cfg.Headers[k] = v
			}
		}
		response, err = e.callExternal(ctx, cfg, body, query)
	}

	if err != nil {
		if cfg.FallbackResponse != nil {
			response = cfg.FallbackResponse
		} else {
			result.Errors = append(result.Errors, fmt.Sprintf("api_call %s failed: %v", cfg.Endpoint, err))
			result.Success = false
			return
		}
	}

	for sourceField, target := range cfg.ResponseMapping {
		value := istate.Get(istate.Bag(response), sourceField)
		istate.Set(result.Variables, target, value)
	}

	result.ActionsExecuted = append(result.ActionsExecuted, map[string]interface{}{
		"type":     "api_call",
		"endpoint": cfg.Endpoint,
	})
}

func (e *Engine) callInternal(ctx context.Context, endpoint string, body, query map[string]interface{}) (map[string]interface{}, error) {
	handler, ok := e.internal[endpoint]
	if !ok {
		return nil, fmt.Errorf("no internal handler registered for %q", endpoint)
	}
	return handler(ctx, body, query)
}

func (e *Engine) callExternal(ctx context.Context, cfg apiCallConfig, body, query map[string]interface{}) (map[string]interface{}, error) {
	url := cfg.Endpoint
	if len(query) > 0 {
		parts := make([]string, 0, len(query))
		for k, v := range query {
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
		url += "?" + strings.Join(parts, "&")
	}

	timeout := 10 * time.Second
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds * float64(time.Second))
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if len(body) > 0 {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = strings.NewReader(string(b))
	}

	req, err := http.NewRequestWithContext(reqCtx, cfg.Method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api_call returned status %d", resp.StatusCode)
	}

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// renderOutbound resolves {{path}} templates against view for every
// string leaf of m, collapsing any field whose template fails to resolve
// to nil rather than leaking literal placeholder syntax (spec §4.5's
// template-stripping rule, P7).
func renderOutbound(view istate.Bag, m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out, _ := istate.Strip(view, istate.Bag(m)).(map[string]interface{})
	return out
}
