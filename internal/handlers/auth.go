package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"rtchat/internal/auth"
	"rtchat/internal/store"
)

const userIDLocal = "userID"

// requireAuth resolves the Bearer token and stores the user id in locals.
func (h *Handler) requireAuth(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
	}
	userID, err := h.tokens.Parse(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	c.Locals(userIDLocal, userID)
	return c.Next()
}

func currentUserID(c *fiber.Ctx) string {
	id, _ := c.Locals(userIDLocal).(string)
	return id
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type authResponse struct {
	User  store.User `json:"user"`
	Token string     `json:"token"`
}

// RegisterUser POST /api/auth/register
func (h *Handler) RegisterUser(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "username, email and password are required"})
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return h.fail(c, err)
	}
	user, err := h.store.CreateUser(c.Context(), req.Username, req.Email, hash, req.DisplayName)
	if err != nil {
		return h.fail(c, err)
	}
	token, err := h.tokens.Issue(user.ID, time.Now())
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(authResponse{User: user, Token: token})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login POST /api/auth/login
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	user, hash, err := h.store.Credentials(c.Context(), strings.TrimSpace(req.Username))
	if err != nil || !auth.VerifyPassword(req.Password, hash) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid credentials"})
	}
	token, err := h.tokens.Issue(user.ID, time.Now())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(authResponse{User: user, Token: token})
}
