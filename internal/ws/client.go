package ws

import (
	"log/slog"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// FramePusher feeds frames received over the socket into a push session.
type FramePusher interface {
	PushFrame(id uuid.UUID, data []byte) error
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID uuid.UUID
	frames    FramePusher
	logger    *slog.Logger
	send      chan []byte
}

// ReadPump forwards binary messages as camera frames. Text messages are ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.BinaryMessage || c.frames == nil {
			continue
		}
		if err := c.frames.PushFrame(c.sessionID, data); err != nil {
			c.logger.Debug("frame rejected", "session_id", c.sessionID, "error", err)
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}
