package handlers

import (
	"github.com/gofiber/fiber/v2"
)

type sendMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	MessageType    string `json:"message_type"`
}

// SendMessage POST /api/messages
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if req.ConversationID == "" || req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "conversation_id and content are required"})
	}
	msg, err := h.store.InsertMessage(c.Context(), req.ConversationID, currentUserID(c), req.Content, req.MessageType)
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// ListMessages GET /api/conversations/:id/messages?limit=&before=
func (h *Handler) ListMessages(c *fiber.Ctx) error {
	messages, err := h.store.ListMessages(c.Context(), c.Params("id"), currentUserID(c),
		c.QueryInt("limit", 50), c.Query("before"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(messages)
}

type editMessageRequest struct {
	Content string `json:"content"`
}

// EditMessage PUT /api/messages/:id
func (h *Handler) EditMessage(c *fiber.Ctx) error {
	var req editMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "content is required"})
	}
	msg, err := h.store.EditMessage(c.Context(), c.Params("id"), currentUserID(c), req.Content)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(msg)
}

// DeleteMessage DELETE /api/messages/:id
func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	if err := h.store.DeleteMessage(c.Context(), c.Params("id"), currentUserID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkRead POST /api/messages/:id/read
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	created, err := h.store.MarkRead(c.Context(), c.Params("id"), currentUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	if !created {
		return c.JSON(fiber.Map{"message": "already marked as read"})
	}
	return c.JSON(fiber.Map{"message": "marked as read"})
}
