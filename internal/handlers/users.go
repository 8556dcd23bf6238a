package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Me GET /api/user/me
func (h *Handler) Me(c *fiber.Ctx) error {
	user, err := h.store.ActiveUser(c.Context(), currentUserID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

// SearchUsers GET /api/user?query=&limit=
func (h *Handler) SearchUsers(c *fiber.Ctx) error {
	users, err := h.store.SearchUsers(c.Context(), c.Query("query"), currentUserID(c), c.QueryInt("limit", 20))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(users)
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
}

// UpdateMe PATCH /api/user/me
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if req.DisplayName == nil && req.Email == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "nothing to update"})
	}
	if req.DisplayName != nil && strings.TrimSpace(*req.DisplayName) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "display_name must not be blank"})
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "email must not be blank"})
	}
	user, err := h.store.UpdateProfile(c.Context(), currentUserID(c), req.DisplayName, req.Email)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(user)
}

// DeleteMe DELETE /api/user/me soft-deletes the account. Live connections
// finish their session; the next token check refuses a deactivated user.
func (h *Handler) DeleteMe(c *fiber.Ctx) error {
	if err := h.store.DeactivateUser(c.Context(), currentUserID(c)); err != nil {
		return h.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
