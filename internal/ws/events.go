package ws

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSessionStarted  EventType = "session.started"
	EventSessionProgress EventType = "session.progress"
	EventSampleAccepted  EventType = "enrollment.sample_accepted"
	EventSessionFinished EventType = "session.finished"
)

type Event struct {
	SessionID uuid.UUID   `json:"session_id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}
