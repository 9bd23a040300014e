package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	assert.NotNil(t, hub)
	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.sessions)
	assert.NotNil(t, hub.broadcast)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
}

func TestHub_AddAndRemoveClient(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sessionID := uuid.New()
	client := &Client{
		hub:       hub,
		sessionID: sessionID,
		send:      make(chan []byte, 1),
	}

	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, hub.GetConnectedClients(sessionID))

	hub.unregister <- client
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, hub.GetConnectedClients(sessionID))
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sessionID := uuid.New()
	client := &Client{
		hub:       hub,
		sessionID: sessionID,
		send:      make(chan []byte, 10),
	}

	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	hub.Publish(sessionID, EventSessionProgress, map[string]any{"phase": "SEARCHING", "streak": 2})

	select {
	case msg := <-client.send:
		var event Event
		require.NoError(t, json.Unmarshal(msg, &event))
		assert.Equal(t, EventSessionProgress, event.Type)
		assert.Equal(t, sessionID, event.SessionID)
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestHub_SessionIsolation(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	session1 := uuid.New()
	session2 := uuid.New()

	client1 := &Client{hub: hub, sessionID: session1, send: make(chan []byte, 10)}
	client2 := &Client{hub: hub, sessionID: session2, send: make(chan []byte, 10)}

	hub.register <- client1
	hub.register <- client2
	time.Sleep(50 * time.Millisecond)

	hub.Publish(session1, EventSessionFinished, map[string]string{"outcome": "CONFIRMED"})

	select {
	case <-client1.send:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 should receive message")
	}

	select {
	case <-client2.send:
		t.Fatal("client2 should not receive events of session1")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sessionID := uuid.New()
	client := &Client{hub: hub, sessionID: sessionID, send: make(chan []byte)}

	hub.register <- client
	time.Sleep(50 * time.Millisecond)

	hub.Publish(sessionID, EventSessionProgress, nil)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 0, hub.GetConnectedClients(sessionID))
	_, open := <-client.send
	assert.False(t, open)
}

func TestUpgradeMiddleware_RejectsPlainHTTP(t *testing.T) {
	app := fiber.New()
	app.Get("/ws", UpgradeMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/ws", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
