package action

import (
	"context"
	"encoding/base64"
	"os"
	"testing"

	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/crypto"
	"github.com/stretchr/testify/assert"
)

func requireTestCrypto(t *testing.T) {
	t.Helper()
	if os.Getenv("ENCRYPTION_KEY") == "" {
		os.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(make([]byte, 32)))
	}
	if err := crypto.Init(); err != nil {
		t.Fatalf("crypto.Init: %v", err)
	}
}

// TestAPICallStripsUnresolvedTemplateFromBody is spec §8 scenario 3:
// an api_call body referencing a path absent from state must deliver
// null for that field rather than leaking "{{context.school_id}}" text,
// while a resolved sibling field passes through untouched.
func TestAPICallStripsUnresolvedTemplateFromBody(t *testing.T) {
	var capturedBody map[string]interface{}

	e := NewEngine(map[string]InternalHandler{
		"enroll": func(ctx context.Context, body, query map[string]interface{}) (map[string]interface{}, error) {
			capturedBody = body
			return map[string]interface{}{"ok": true}, nil
		},
	})

	bag := istate.Bag{"context": istate.Bag{}}
	actions := []map[string]interface{}{
		{
			"type": "api_call",
			"config": map[string]interface{}{
				"endpoint":  "enroll",
				"auth_type": "internal",
				"body": map[string]interface{}{
					"name":      "resolved",
					"school_id": "{{context.school_id}}",
				},
			},
		},
	}

	result := e.Execute(context.Background(), bag, actions)

	assert.True(t, result.Success)
	assert.Equal(t, "resolved", capturedBody["name"])
	assert.Nil(t, capturedBody["school_id"])
}

func TestAPICallKeepsResolvedTemplateValue(t *testing.T) {
	var capturedBody map[string]interface{}

	e := NewEngine(map[string]InternalHandler{
		"enroll": func(ctx context.Context, body, query map[string]interface{}) (map[string]interface{}, error) {
			capturedBody = body
			return map[string]interface{}{}, nil
		},
	})

	bag := istate.Bag{"context": istate.Bag{"school_id": "sch_42"}}
	actions := []map[string]interface{}{
		{
			"type": "api_call",
			"config": map[string]interface{}{
				"endpoint":  "enroll",
				"auth_type": "internal",
				"body":      map[string]interface{}{"school_id": "{{context.school_id}}"},
			},
		},
	}

	e.Execute(context.Background(), bag, actions)

	assert.Equal(t, "sch_42", capturedBody["school_id"])
}

func TestAPICallFallsBackToFallbackResponseOnError(t *testing.T) {
	e := NewEngine(map[string]InternalHandler{}) // "enroll" unregistered -> always errors

	bag := istate.Bag{}
	actions := []map[string]interface{}{
		{
			"type": "api_call",
			"config": map[string]interface{}{
				"endpoint":          "enroll",
				"auth_type":         "internal",
				"response_mapping":  map[string]interface{}{"status": "results.status"},
				"fallback_response": map[string]interface{}{"status": "unavailable"},
			},
		},
	}

	result := e.Execute(context.Background(), bag, actions)

	assert.True(t, result.Success)
	assert.Equal(t, "unavailable", istate.Get(result.Variables, "results.status"))
}

// TestResolveCredentialsDecryptsExternalAuth covers the spec §4.5 rule that
// external-auth credentials are stored encrypted at rest and decrypted only
// for the duration of the outbound call.
func TestResolveCredentialsDecryptsExternalAuth(t *testing.T) {
	requireTestCrypto(t)

	encrypted, err := crypto.EncryptString(`{"Authorization":"Bearer sk-live-123"}`)
	assert.NoError(t, err)

	cfg := apiCallConfig{AuthType: "external", Credentials: encrypted}
	headers, err := resolveCredentials(cfg)

	assert.NoError(t, err)
	assert.Equal(t, "Bearer sk-live-123", headers["Authorization"])
}

func TestResolveCredentialsSkipsInternalAuth(t *testing.T) {
	requireTestCrypto(t)

	cfg := apiCallConfig{AuthType: "internal", Credentials: ""}
	headers, err := resolveCredentials(cfg)

	assert.NoError(t, err)
	assert.Nil(t, headers)
}

func TestResolveCredentialsRejectsCorruptCiphertext(t *testing.T) {
	requireTestCrypto(t)

	cfg := apiCallConfig{AuthType: "external", Credentials: "not-valid-ciphertext"}
	_, err := resolveCredentials(cfg)

	assert.Error(t, err)
}

func TestAPICallWithoutFallbackRecordsFailure(t *testing.T) {
	e := NewEngine(map[string]InternalHandler{})

	bag := istate.Bag{}
	actions := []map[string]interface{}{
		{
			"type": "api_call",
			"config": map[string]interface{}{
				"endpoint":  "enroll",
				"auth_type": "internal",
			},
		},
	}

	result := e.Execute(context.Background(), bag, actions)

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}
