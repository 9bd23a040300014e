package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/totem/internal/audit"
)

// DefaultEvents are forwarded when no event filter is configured.
var DefaultEvents = []string{
	string(audit.EventRecognitionFinished),
	string(audit.EventEnrollmentFinished),
}

// Notifier is an audit.Logger that forwards selected events to a webhook.
type Notifier struct {
	worker *Worker
	events map[audit.EventType]bool
}

func NewNotifier(worker *Worker, events []string) *Notifier {
	if len(events) == 0 {
		events = DefaultEvents
	}

	set := make(map[audit.EventType]bool, len(events))
	for _, e := range events {
		set[audit.EventType(strings.ToUpper(strings.TrimSpace(e)))] = true
	}
	return &Notifier{worker: worker, events: set}
}

// Log enqueues the event when it passes the filter. Delivery is asynchronous.
func (n *Notifier) Log(_ context.Context, event audit.Event) error {
	if !n.events[event.EventType] {
		return nil
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	eventType := strings.ToLower(string(event.EventType))
	payload, err := json.Marshal(EventPayload{
		Type:      eventType,
		SessionID: event.SessionID,
		Data:      event,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	return n.worker.Enqueue(eventType, payload)
}
