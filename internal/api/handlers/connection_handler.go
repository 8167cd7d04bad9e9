package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/postpulse/postpulse/internal/service"
)

type ConnectionHandler struct {
	s service.ConnectionService
}

func NewConnectionHandler(service service.ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{s: service}
}

// Connect finishes a platform OAuth flow: the frontend forwards the code it
// received on the redirect.
func (h *ConnectionHandler) Connect(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platform := c.Params("platform")
	code := c.Query("code")

	conn, err := h.s.Connect(c.Context(), userID, platform, code)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conn)
}

func (h *ConnectionHandler) ListConnections(c *fiber.Ctx) error {
	userID := GetUserID(c)

	connections, err := h.s.List(c.Context(), userID)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(connections)
}

func (h *ConnectionHandler) RemoveConnection(c *fiber.Ctx) error {
	userID := GetUserID(c)
	connectionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid connection id",
		})
	}

	if err := h.s.Remove(c.Context(), userID, int64(connectionID)); err != nil {
		return respondError(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
