// Package handlers exposes the HTTP API and the websocket push endpoint.
package handlers

import (
	"errors"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"rtchat/internal/auth"
	"rtchat/internal/realtime"
	"rtchat/internal/store"
)

type Handler struct {
	store    *store.Store
	tokens   *auth.Tokens
	registry *realtime.Registry
	rooms    *realtime.Rooms
	log      zerolog.Logger

	typingLimiters sync.Map // user id -> *rate.Limiter
}

func New(st *store.Store, tokens *auth.Tokens, registry *realtime.Registry, rooms *realtime.Rooms, log zerolog.Logger) *Handler {
	return &Handler{
		store:    st,
		tokens:   tokens,
		registry: registry,
		rooms:    rooms,
		log:      log,
	}
}

// Register mounts every route on the app.
func (h *Handler) Register(app *fiber.App) {
	app.Post("/api/auth/register", h.RegisterUser)
	app.Post("/api/auth/login", h.Login)

	app.Get("/api/ws", websocket.New(h.WebSocket))

	api := app.Group("/api", h.requireAuth)
	api.Get("/user/me", h.Me)
	api.Patch("/user/me", h.UpdateMe)
	api.Delete("/user/me", h.DeleteMe)
	api.Get("/user", h.SearchUsers)

	api.Post("/conversations", h.CreateConversation)
	api.Get("/conversations", h.ListConversations)
	api.Get("/conversations/:id", h.GetConversation)
	api.Patch("/conversations/:id", h.UpdateConversation)
	api.Post("/conversations/:id/participants", h.AddParticipants)
	api.Delete("/conversations/:id/participants/:userID", h.RemoveParticipant)
	api.Post("/conversations/:id/typing", h.Typing)
	api.Get("/conversations/:id/messages", h.ListMessages)

	api.Post("/messages", h.SendMessage)
	api.Put("/messages/:id", h.EditMessage)
	api.Delete("/messages/:id", h.DeleteMessage)
	api.Post("/messages/:id/read", h.MarkRead)
}

// statusFor maps store errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrNotParticipant),
		errors.Is(err, store.ErrNotSender),
		errors.Is(err, store.ErrNotAdmin):
		return fiber.StatusForbidden
	case errors.Is(err, store.ErrUserExists):
		return fiber.StatusConflict
	case errors.Is(err, store.ErrMessageDeleted):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
