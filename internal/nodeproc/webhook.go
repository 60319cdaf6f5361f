package nodeproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/models"
)

// WebhookProcessor performs a templated HTTP call and branches on status
// (spec §4.4). Raw request/response details are returned on Detail for
// the tracer to redact and truncate (spec §4.7); this processor does not
// mask anything itself.
type WebhookProcessor struct{}

func (WebhookProcessor) Process(pctx ProcessContext) (*StepResult, error) {
	result := newResult()

	url, _ := pctx.Node.Content["url"].(string)
	url = istate.Substitute(pctx.State, url)
	method, _ := pctx.Node.Content["method"].(string)
	if method == "" {
		method = "POST"
	}

	headers := map[string]string{}
	if rawHeaders, ok := pctx.Node.Content["headers"].(map[string]interface{}); ok {
		for k, v := range rawHeaders {
			if s, ok := v.(string); ok {
				headers[k] = istate.Substitute(pctx.State, s)
			}
		}
	}

	var bodyBytes []byte
	if rawBody, ok := pctx.Node.Content["body"].(map[string]interface{}); ok {
		substituted := map[string]interface{}{}
		for k, v := range rawBody {
			if s, ok := v.(string); ok {
				substituted[k] = istate.Substitute(pctx.State, s)
			} else {
				substituted[k] = v
			}
		}
		b, err := json.Marshal(substituted)
		if err == nil {
			bodyBytes = b
		}
	}

	timeout := pctx.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	start := time.Now()
	status, respBody, callErr := doWebhookCall(pctx.Ctx, method, url, headers, bodyBytes, timeout)
	duration := time.Since(start).Milliseconds()

	detail := map[string]interface{}{
		"url":             url,
		"method":          method,
		"request_headers": headers,
		"response_status": status,
		"response_body":   respBody,
		"duration_ms":     duration,
	}

	if callErr != nil {
		detail["error"] = callErr.Error()
		result.Errors = append(result.Errors, callErr.Error())
		result.ConnectionType = models.ConnectionFailure
		result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionFailure)
		if result.NextNodeID == nil {
			result.ConnectionType = models.ConnectionDefault
			result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
		}
		result.Detail = detail
		return result, nil
	}

	if status >= 200 && status < 300 {
		result.ConnectionType = models.ConnectionSuccess
		result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionSuccess)
	} else {
		result.ConnectionType = models.ConnectionFailure
		result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionFailure)
	}
	if result.NextNodeID == nil {
		result.ConnectionType = models.ConnectionDefault
		result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
	}

	result.Detail = detail
	return result, nil
}

func doWebhookCall(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) (int, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(reqCtx, method, url, reader)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: timeout, Transport: &retryTransport{base: http.DefaultTransport, maxRetry: 3}}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(respBytes), nil
}

// retryTransport retries a webhook call on HTTP 429 with exponential
// backoff, honoring Retry-After when the target sends one. Any other
// status (including the failure connection's 4xx/5xx targets) is
// returned immediately for the processor's own success/failure branch
// to handle — only rate-limiting is worth an automatic retry here.
type retryTransport struct {
	base     http.RoundTripper
	maxRetry int
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt <= t.maxRetry; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err = t.base.RoundTrip(req)
		if err != nil || resp.StatusCode != http.StatusTooManyRequests || attempt == t.maxRetry {
			return resp, err
		}

		wait := t.backoff(attempt, resp)
		resp.Body.Close()
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(wait):
		}
	}
	return resp, err
}

func (t *retryTransport) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.ParseFloat(ra, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 500*time.Millisecond
			}
		}
	}
	secs := math.Min(float64(int(1)<<uint(attempt))*1, 10)
	return time.Duration(secs) * time.Second
}
