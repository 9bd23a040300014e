package ws

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// Handler attaches a socket to the session named by the :id route param.
func Handler(hub *Hub, frames FramePusher, logger *slog.Logger) fiber.Handler {
	logger = logger.With("component", "ws")

	return websocket.New(func(c *websocket.Conn) {
		sessionID, err := uuid.Parse(c.Params("id"))
		if err != nil {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:       hub,
			conn:      c,
			sessionID: sessionID,
			frames:    frames,
			logger:    logger,
			send:      make(chan []byte, 256),
		}

		hub.register <- client

		go client.WritePump()
		client.ReadPump()
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}
