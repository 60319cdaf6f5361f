// Package httpapi exposes the chat surface spec §6 names: the minimum
// HTTP contract needed to drive the Session Runtime from outside the
// process. It deliberately does not implement authentication or the
// authoring CRUD surface — those are out of scope per spec §1.
package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/siddhantprateek/reefline/internal/runtime"
	"github.com/siddhantprateek/reefline/internal/session"
)

// Setup registers the chat routes under /chat.
func Setup(app *fiber.App, rt *runtime.Runtime, sessions *session.Service) {
	chat := NewChatHandler(rt, sessions)

	group := app.Group("/chat")

	// POST /chat/start — create a session at its flow's entry node
	group.Post("/start", chat.Start)

	sessionGroup := group.Group("/sessions")

	// POST /chat/sessions/:token/interact — advance a suspended session
	sessionGroup.Post("/:token/interact", chat.Interact)

	// GET /chat/sessions/:token — status, state, current node
	sessionGroup.Get("/:token", chat.Get)

	// POST /chat/sessions/:token/end — terminate
	sessionGroup.Post("/:token/end", chat.End)
}
