package httpapi

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/gofiber/fiber/v2"
	"github.com/siddhantprateek/reefline/internal/nodeproc"
	"github.com/siddhantprateek/reefline/internal/runtime"
	"github.com/siddhantprateek/reefline/internal/session"
	istate "github.com/siddhantprateek/reefline/internal/state"
	"github.com/siddhantprateek/reefline/pkg/apperr"
	"github.com/siddhantprateek/reefline/pkg/models"
)

// ChatHandler exposes the thin chat surface spec §6 specifies only
// because it makes the Session Runtime's contract externally visible.
type ChatHandler struct {
	runtime  *runtime.Runtime
	sessions *session.Service
}

func NewChatHandler(rt *runtime.Runtime, sessions *session.Service) *ChatHandler {
	return &ChatHandler{runtime: rt, sessions: sessions}
}

type startRequest struct {
	FlowID       string                 `json:"flow_id"`
	UserID       *string                `json:"user_id,omitempty"`
	InitialState map[string]interface{} `json:"initial_state,omitempty"`
}

type startResponse struct {
	SessionID    string  `json:"session_id"`
	SessionToken string  `json:"session_token"`
	NextNode     string  `json:"next_node"`
	CSRFToken    *string `json:"csrf_token,omitempty"`
}

// Start begins a session at its flow's entry node.
//
// POST /chat/start
// Body: { flow_id, user_id?, initial_state? }
// Impersonation: anonymous callers may not pass user_id; authenticated
// callers may only pass their own user_id (spec §6).
func (h *ChatHandler) Start(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.ToFiberResponse(c, apperr.Validation("invalid request body"))
	}
	if req.FlowID == "" {
		return apperr.ToFiberResponse(c, apperr.Validation("flow_id is required"))
	}

	authUserID := authenticatedUserID(c)
	effectiveUserID, err := resolveImpersonation(authUserID, req.UserID)
	if err != nil {
		return apperr.ToFiberResponse(c, err)
	}

	outcome, err := h.runtime.Start(c.Context(), req.FlowID, effectiveUserID, istate.Bag(req.InitialState))
	if err != nil {
		return apperr.ToFiberResponse(c, err)
	}

	resp := startResponse{
		SessionID:    outcome.Session.ID,
		SessionToken: outcome.Session.SessionToken,
		NextNode:     outcome.Session.CurrentNodeID,
	}

	// Anonymous sessions carry a CSRF token: interact calls on them must
	// echo it back, since there is no authenticated identity to check
	// instead (spec §6).
	if effectiveUserID == nil {
		token, tokenErr := issueCSRFToken(h.sessions, outcome.Session.ID)
		if tokenErr != nil {
			return apperr.ToFiberResponse(c, tokenErr)
		}
		resp.CSRFToken = &token
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

type interactRequest struct {
	Input     interface{} `json:"input"`
	InputType string      `json:"input_type"`
}

// Interact advances a suspended session with the caller's answer.
//
// POST /chat/sessions/{token}/interact
// Body: { input, input_type }
// Anonymous callers must send X-CSRF-Token matching the value issued at
// Start (spec §6).
func (h *ChatHandler) Interact(c *fiber.Ctx) error {
	token := c.Params("token")

	sess, err := h.sessions.GetSessionByToken(token)
	if err != nil {
		return apperr.ToFiberResponse(c, err)
	}
	if sess.UserID == nil {
		if err := checkCSRFToken(sess, c.Get("X-CSRF-Token")); err != nil {
			return apperr.ToFiberResponse(c, err)
		}
	}

	var req interactRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.ToFiberResponse(c, apperr.Validation("invalid request body"))
	}

	outcome, err := h.runtime.Interact(c.Context(), token, &nodeproc.UserInput{
		Value:     req.Input,
		InputType: req.InputType,
	})
	if err != nil {
		return apperr.ToFiberResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(outcomeResponse(outcome))
}

// Get returns a session's current status, state, and node.
//
// GET /chat/sessions/{token}
func (h *ChatHandler) Get(c *fiber.Ctx) error {
	token := c.Params("token")
	sess, err := h.sessions.GetSessionByToken(token)
	if err != nil {
		return apperr.ToFiberResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session_id":     sess.ID,
		"status":         sess.Status,
		"state":          sess.State,
		"current_node":   sess.CurrentNodeID,
		"revision":       sess.Revision,
	})
}

// End terminates a session before it reaches a natural completion node.
//
// POST /chat/sessions/{token}/end
func (h *ChatHandler) End(c *fiber.Ctx) error {
	token := c.Params("token")
	sess, err := h.sessions.GetSessionByToken(token)
	if err != nil {
		return apperr.ToFiberResponse(c, err)
	}
	updated, err := h.sessions.EndSession(sess.ID, models.SessionAbandoned)
	if err != nil {
		return apperr.ToFiberResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"session_id": updated.ID,
		"status":     updated.Status,
	})
}

func outcomeResponse(o *runtime.TickOutcome) fiber.Map {
	return fiber.Map{
		"session_id":    o.Session.ID,
		"status":        o.Session.Status,
		"current_node":  o.Session.CurrentNodeID,
		"revision":      o.Session.Revision,
		"messages":      o.MessagesEmitted,
		"expects_input": o.ExpectsInput,
		"input_type":    o.InputType,
		"terminal":      o.Terminal,
	}
}

// authenticatedUserID reads the identity an upstream auth middleware
// would set. No such middleware is part of this surface (spec's
// out-of-scope external collaborators list includes "HTTP/REST surface
// and authentication"), so this is always nil outside of tests that seed
// c.Locals directly.
func authenticatedUserID(c *fiber.Ctx) *string {
	v := c.Locals("user_id")
	if v == nil {
		return nil
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return nil
	}
	return &id
}

// resolveImpersonation applies spec §6's impersonation rules: anonymous
// callers may not specify user_id; authenticated callers may only specify
// their own.
func resolveImpersonation(authUserID, requestedUserID *string) (*string, error) {
	if authUserID == nil {
		if requestedUserID != nil {
			return nil, apperr.Forbidden("anonymous callers may not specify user_id")
		}
		return nil, nil
	}
	if requestedUserID != nil && *requestedUserID != *authUserID {
		return nil, apperr.Forbidden("user_id does not match the authenticated caller")
	}
	return authUserID, nil
}

func issueCSRFToken(sessions *session.Service, sessionID string) (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", apperr.Internal("generating csrf token", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	if err := sessions.SetCSRFToken(sessionID, token); err != nil {
		return "", err
	}
	return token, nil
}

func checkCSRFToken(sess *models.Session, supplied string) error {
	expected, _ := sess.Info["csrf_token"].(string)
	if expected == "" || supplied == "" || supplied != expected {
		return apperr.Forbidden("missing or invalid csrf token")
	}
	return nil
}
