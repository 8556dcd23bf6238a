package handlers

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	Name           *string  `json:"name"`
	IsGroup        bool     `json:"is_group"`
}

// CreateConversation POST /api/conversations
func (h *Handler) CreateConversation(c *fiber.Ctx) error {
	var req createConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if len(req.ParticipantIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "participant_ids is required"})
	}
	conv, err := h.store.CreateConversation(c.Context(), currentUserID(c), req.Name, req.IsGroup, req.ParticipantIDs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(conv)
}

// ListConversations GET /api/conversations
func (h *Handler) ListConversations(c *fiber.Ctx) error {
	convs, err := h.store.ListConversations(c.Context(), currentUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(convs)
}

// GetConversation GET /api/conversations/:id
func (h *Handler) GetConversation(c *fiber.Ctx) error {
	conv, err := h.store.GetConversation(c.Context(), c.Params("id"), currentUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(conv)
}

type updateConversationRequest struct {
	Name *string `json:"name"`
}

// UpdateConversation PATCH /api/conversations/:id
func (h *Handler) UpdateConversation(c *fiber.Ctx) error {
	var req updateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if req.Name == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	conv, err := h.store.UpdateConversation(c.Context(), c.Params("id"), currentUserID(c), req.Name)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(conv)
}

type addParticipantsRequest struct {
	UserIDs []string `json:"user_ids"`
}

// AddParticipants POST /api/conversations/:id/participants
func (h *Handler) AddParticipants(c *fiber.Ctx) error {
	var req addParticipantsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if len(req.UserIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_ids is required"})
	}
	added, err := h.store.AddParticipants(c.Context(), c.Params("id"), currentUserID(c), req.UserIDs)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"added_user_ids": added})
}

// RemoveParticipant DELETE /api/conversations/:id/participants/:userID
func (h *Handler) RemoveParticipant(c *fiber.Ctx) error {
	err := h.store.RemoveParticipant(c.Context(), c.Params("id"), currentUserID(c), c.Params("userID"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// typing indicators are fired per keystroke by clients; cap the rate per
// user so one chatty client cannot flood the change feed.
func (h *Handler) typingLimiter(userID string) *rate.Limiter {
	if l, ok := h.typingLimiters.Load(userID); ok {
		return l.(*rate.Limiter)
	}
	l, _ := h.typingLimiters.LoadOrStore(userID, rate.NewLimiter(rate.Limit(1), 5))
	return l.(*rate.Limiter)
}

// Typing POST /api/conversations/:id/typing
func (h *Handler) Typing(c *fiber.Ctx) error {
	var req typingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	userID := currentUserID(c)
	if req.IsTyping && !h.typingLimiter(userID).Allow() {
		return c.SendStatus(fiber.StatusTooManyRequests)
	}
	if err := h.store.SetTyping(c.Context(), c.Params("id"), userID, req.IsTyping); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
