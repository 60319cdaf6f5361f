// Package apperr defines the semantic error taxonomy used across the
// runtime (spec §7): NotFound, Conflict, Validation, Integrity, Timeout,
// Remote, Internal. Handlers map these to HTTP responses in one place
// instead of each inlining a fiber.Map.
package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind is one of the semantic error categories from spec §7.
type Kind string

const (
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindValidation Kind = "validation"
	KindIntegrity  Kind = "integrity"
	KindTimeout    Kind = "timeout"
	KindRemote     Kind = "remote"
	KindInternal   Kind = "internal"
	KindForbidden  Kind = "forbidden"
)

// Error wraps an underlying cause with a Kind and a caller-facing message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotFound(message string) *Error              { return new_(KindNotFound, message, nil) }
func Conflict(message string) *Error              { return new_(KindConflict, message, nil) }
func Validation(message string) *Error            { return new_(KindValidation, message, nil) }
func Integrity(message string, cause error) *Error { return new_(KindIntegrity, message, cause) }
func Timeout(message string) *Error               { return new_(KindTimeout, message, nil) }
func Remote(message string, cause error) *Error   { return new_(KindRemote, message, cause) }
func Internal(message string, cause error) *Error { return new_(KindInternal, message, cause) }
func Forbidden(message string) *Error             { return new_(KindForbidden, message, nil) }

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// statusFor maps a Kind to its HTTP status code.
func statusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict:
		return fiber.StatusConflict
	case KindValidation, KindIntegrity:
		return fiber.StatusBadRequest
	case KindTimeout:
		return fiber.StatusRequestTimeout
	case KindRemote:
		return fiber.StatusBadGateway
	case KindForbidden:
		return fiber.StatusForbidden
	default:
		return fiber.StatusInternalServerError
	}
}

// ToFiberResponse writes the appropriate status + JSON error body for err.
// Unrecognized errors (not an *Error) are treated as Internal.
func ToFiberResponse(c *fiber.Ctx, err error) error {
	var e *Error
	if !errors.As(err, &e) {
		e = new_(KindInternal, err.Error(), err)
	}
	return c.Status(statusFor(e.Kind)).JSON(fiber.Map{
		"error": e.Message,
		"kind":  e.Kind,
	})
}
