package nodeproc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookProcessorSelectsSuccessConnectionOn2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	target := "done"
	pctx := ProcessContext{
		Ctx: context.Background(),
		Node: &models.Node{
			Content: models.JSONMap{"url": srv.URL, "method": "POST"},
		},
		State: istate.Bag{},
		Connections: []models.Connection{
			{ConnectionType: models.ConnectionSuccess, TargetNodeID: target},
		},
		HTTPTimeout: 2 * time.Second,
	}

	result, err := WebhookProcessor{}.Process(pctx)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionSuccess, result.ConnectionType)
	require.NotNil(t, result.NextNodeID)
	assert.Equal(t, target, *result.NextNodeID)
}

func TestWebhookProcessorSelectsFailureConnectionOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pctx := ProcessContext{
		Ctx:  context.Background(),
		Node: &models.Node{Content: models.JSONMap{"url": srv.URL}},
		Connections: []models.Connection{
			{ConnectionType: models.ConnectionFailure, TargetNodeID: "err-handler"},
		},
		HTTPTimeout: 2 * time.Second,
	}

	result, err := WebhookProcessor{}.Process(pctx)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionFailure, result.ConnectionType)
}

// TestRetryTransportRetriesOnTooManyRequests grounds the DESIGN.md claim
// that webhook dispatch retries 429s with backoff honoring Retry-After:
// a server that answers 429 once then 200 must resolve successfully
// after exactly one retry.
func TestRetryTransportRetriesOnTooManyRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	status, _, err := doWebhookCall(context.Background(), "GET", srv.URL, nil, nil, 5*time.Second)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRetryTransportGivesUpAfterMaxRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	status, _, err := doWebhookCall(context.Background(), "GET", srv.URL, nil, nil, 5*time.Second)

	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls)) // initial attempt + 3 retries
}
