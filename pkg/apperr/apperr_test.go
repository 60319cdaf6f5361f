package apperr

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestConstructorsSetKind(t *testing.T) {
	assert.Equal(t, KindNotFound, NotFound("missing").Kind)
	assert.Equal(t, KindConflict, Conflict("conflict").Kind)
	assert.Equal(t, KindValidation, Validation("bad input").Kind)
	assert.Equal(t, KindTimeout, Timeout("too slow").Kind)
	assert.Equal(t, KindForbidden, Forbidden("nope").Kind)

	cause := errors.New("underlying")
	assert.Equal(t, cause, Integrity("broken", cause).Cause)
	assert.Equal(t, cause, Remote("unreachable", cause).Cause)
	assert.Equal(t, cause, Internal("boom", cause).Cause)
}

func TestErrorMessageFormatting(t *testing.T) {
	plain := NotFound("session not found")
	assert.Equal(t, "not_found: session not found", plain.Error())

	wrapped := Internal("query failed", errors.New("connection reset"))
	assert.Equal(t, "internal: query failed: connection reset", wrapped.Error())
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Remote("upstream failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsMatchesKind(t *testing.T) {
	err := Conflict("revision mismatch")
	assert.True(t, Is(err, KindConflict))
	assert.False(t, Is(err, KindNotFound))
	assert.False(t, Is(errors.New("plain"), KindConflict))
}

func TestToFiberResponseStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", NotFound("x"), fiber.StatusNotFound},
		{"conflict", Conflict("x"), fiber.StatusConflict},
		{"validation", Validation("x"), fiber.StatusBadRequest},
		{"integrity", Integrity("x", nil), fiber.StatusBadRequest},
		{"timeout", Timeout("x"), fiber.StatusRequestTimeout},
		{"remote", Remote("x", nil), fiber.StatusBadGateway},
		{"forbidden", Forbidden("x"), fiber.StatusForbidden},
		{"internal", Internal("x", nil), fiber.StatusInternalServerError},
		{"unrecognized error", errors.New("plain"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return ToFiberResponse(c, tc.err)
			})
			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			assert.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			var decoded map[string]string
			assert.NoError(t, json.Unmarshal(body, &decoded))
			assert.NotEmpty(t, decoded["error"])
		})
	}
}
