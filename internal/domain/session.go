package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal result of a recognition or enrollment session.
type Outcome string

const (
	OutcomeConfirmed Outcome = "CONFIRMED"
	OutcomeDone      Outcome = "DONE"
	OutcomeTimedOut  Outcome = "TIMED_OUT"
	OutcomeCancelled Outcome = "CANCELLED"
)

// Success reports whether the outcome carries a usable result.
func (o Outcome) Success() bool {
	return o == OutcomeConfirmed || o == OutcomeDone
}

// RecognitionResult is handed to the calling layer, which resolves the label
// to an account record.
type RecognitionResult struct {
	Outcome    Outcome       `json:"outcome"`
	Label      string        `json:"label,omitempty"`
	Distance   *float64      `json:"distance,omitempty"`
	Confidence *float64      `json:"confidence,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Ticks      int           `json:"ticks"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// EnrollmentResult reports how an enrollment attempt ended. Only DONE
// results have been committed to the embedding store.
type EnrollmentResult struct {
	Outcome          Outcome       `json:"outcome"`
	Label            string        `json:"label"`
	SamplesCollected int           `json:"samples_collected"`
	Reason           string        `json:"reason,omitempty"`
	Ticks            int           `json:"ticks"`
	Elapsed          time.Duration `json:"elapsed_ns"`
}

// SessionKind distinguishes recognition from enrollment attempts.
type SessionKind string

const (
	SessionRecognition SessionKind = "recognition"
	SessionEnrollment  SessionKind = "enrollment"
)

// SessionView is the externally visible snapshot of a running or finished session.
type SessionView struct {
	ID               uuid.UUID          `json:"id"`
	Kind             SessionKind        `json:"kind"`
	Phase            string             `json:"phase"`
	Label            string             `json:"label,omitempty"`
	Streak           int                `json:"streak"`
	SamplesCollected int                `json:"samples_collected"`
	StartedAt        time.Time          `json:"started_at"`
	FinishedAt       *time.Time         `json:"finished_at,omitempty"`
	Recognition      *RecognitionResult `json:"recognition,omitempty"`
	Enrollment       *EnrollmentResult  `json:"enrollment,omitempty"`
}

// SessionAudit is the persisted record of one finished session.
type SessionAudit struct {
	ID               uuid.UUID   `json:"id"`
	Kind             SessionKind `json:"kind"`
	Outcome          Outcome     `json:"outcome"`
	Label            *string     `json:"label,omitempty"`
	Distance         *float64    `json:"distance,omitempty"`
	SamplesCollected int         `json:"samples_collected"`
	Ticks            int         `json:"ticks"`
	LatencyMs        int64       `json:"latency_ms"`
	CreatedAt        time.Time   `json:"created_at"`
}
