package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// EventType defines the type of auditable event
type EventType string

const (
	EventSessionStarted      EventType = "SESSION_STARTED"
	EventRecognitionFinished EventType = "RECOGNITION_FINISHED"
	EventEnrollmentFinished  EventType = "ENROLLMENT_FINISHED"
	EventIdentityEnrolled    EventType = "IDENTITY_ENROLLED"
	EventIdentityDeleted     EventType = "IDENTITY_DELETED"
)

// Event represents an audit event for biometric data handling
type Event struct {
	ID               uuid.UUID          `json:"id"`
	Timestamp        time.Time          `json:"timestamp"`
	SessionID        uuid.UUID          `json:"session_id,omitempty"`
	EventType        EventType          `json:"event_type"`
	Kind             domain.SessionKind `json:"kind,omitempty"`
	Outcome          domain.Outcome     `json:"outcome,omitempty"`
	Label            string             `json:"label,omitempty"`
	Distance         *float64           `json:"distance,omitempty"`
	SamplesCollected int                `json:"samples_collected,omitempty"`
	Ticks            int                `json:"ticks,omitempty"`
	Latency          time.Duration      `json:"latency_ns,omitempty"`
	Provider         string             `json:"provider"`
	Success          bool               `json:"success"`
	Error            string             `json:"error,omitempty"`
	Metadata         map[string]string  `json:"metadata,omitempty"`
}

// Finished reports whether the event closes a session.
func (e Event) Finished() bool {
	return e.EventType == EventRecognitionFinished || e.EventType == EventEnrollmentFinished
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger implements Logger using slog
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger creates a new audit logger using slog
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	event = stamp(event)

	eventJSON, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("event_type", string(event.EventType)),
		)
		return err
	}

	l.logger.InfoContext(ctx, "audit_event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
		slog.String("session_id", event.SessionID.String()),
		slog.String("provider", event.Provider),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(eventJSON)),
	)

	return nil
}

// Recorder is the write side of the session audit table.
type Recorder interface {
	Create(ctx context.Context, audit *domain.SessionAudit) error
}

// RepositoryLogger persists session outcomes. Events that do not close a
// session are ignored.
type RepositoryLogger struct {
	repo Recorder
}

func NewRepositoryLogger(repo Recorder) *RepositoryLogger {
	return &RepositoryLogger{repo: repo}
}

func (l *RepositoryLogger) Log(ctx context.Context, event Event) error {
	if !event.Finished() {
		return nil
	}
	event = stamp(event)

	rec := &domain.SessionAudit{
		ID:               event.SessionID,
		Kind:             event.Kind,
		Outcome:          event.Outcome,
		Distance:         event.Distance,
		SamplesCollected: event.SamplesCollected,
		Ticks:            event.Ticks,
		LatencyMs:        event.Latency.Milliseconds(),
	}
	if event.Label != "" {
		label := event.Label
		rec.Label = &label
	}

	return l.repo.Create(ctx, rec)
}

// MultiLogger fans an event out to every logger and joins their errors.
type MultiLogger []Logger

func (m MultiLogger) Log(ctx context.Context, event Event) error {
	event = stamp(event)

	var errs []error
	for _, l := range m {
		if err := l.Log(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NoOpLogger is a logger that does nothing (for testing or when audit is disabled)
type NoOpLogger struct{}

// Log does nothing and returns nil
func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}

func stamp(event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}
