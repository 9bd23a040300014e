package webhook

import (
	"time"

	"github.com/google/uuid"
)

// EventPayload is the JSON body POSTed to the endpoint.
type EventPayload struct {
	Type      string      `json:"type"`
	SessionID uuid.UUID   `json:"session_id,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Job is one pending delivery.
type Job struct {
	ID          uuid.UUID
	EventType   string
	Payload     []byte
	Attempts    int
	MaxAttempts int
	NextRetryAt time.Time
	LastError   string
	CreatedAt   time.Time
}
