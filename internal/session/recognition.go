// Package session holds the per-attempt state machines that turn a stream
// of per-frame results into one decision, and the loop that drives them.
//
// The machines are pure: each Step takes the current state and one tick and
// computes the next state, so they can be tested with synthetic sequences.
package session

import (
	"time"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseSearching   Phase = "SEARCHING"
	PhaseStabilizing Phase = "STABILIZING"
	PhaseCapturing   Phase = "CAPTURING"
	PhaseConfirmed   Phase = "CONFIRMED"
	PhaseDone        Phase = "DONE"
	PhaseTimedOut    Phase = "TIMED_OUT"
	PhaseCancelled   Phase = "CANCELLED"
)

// Terminal reports whether no further transition can happen.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseConfirmed, PhaseDone, PhaseTimedOut, PhaseCancelled:
		return true
	}
	return false
}

const (
	ReasonTimeout   = "timeout"
	ReasonCancelled = "cancelled"
	ReasonExhausted = "frame source exhausted"
)

// RecognitionConfig parameterizes the confirmation rule.
type RecognitionConfig struct {
	RequiredStreak int
	Timeout        time.Duration
}

// Tick is one evaluated frame. Candidate is nil when the frame produced no
// match within tolerance, including sensor faults.
type Tick struct {
	At        time.Time
	Cancelled bool
	Candidate *domain.MatchCandidate
}

// Recognition confirms an identity once the same label has matched on
// RequiredStreak consecutive ticks.
type Recognition struct {
	cfg RecognitionConfig

	phase        Phase
	startedAt    time.Time
	finishedAt   time.Time
	streak       int
	label        string
	lastDistance float64
	ticks        int
	reason       string
}

func NewRecognition(cfg RecognitionConfig) *Recognition {
	if cfg.RequiredStreak < 1 {
		cfg.RequiredStreak = 1
	}
	return &Recognition{cfg: cfg, phase: PhaseIdle}
}

// Start moves IDLE to SEARCHING; the timeout is measured from at.
func (r *Recognition) Start(at time.Time) {
	if r.phase != PhaseIdle {
		return
	}
	r.phase = PhaseSearching
	r.startedAt = at
}

// Preempt applies the timeout and cancel rules without a frame. The driver
// calls it before blocking on frame acquisition. Returns true once terminal.
func (r *Recognition) Preempt(now time.Time, cancelled bool) bool {
	if r.phase != PhaseSearching {
		return r.phase.Terminal()
	}

	if now.Sub(r.startedAt) >= r.cfg.Timeout {
		r.finish(PhaseTimedOut, now, ReasonTimeout)
		return true
	}
	if cancelled {
		r.finish(PhaseCancelled, now, ReasonCancelled)
		return true
	}
	return false
}

// Step applies one tick. Terminal states absorb every further tick.
func (r *Recognition) Step(t Tick) Phase {
	if r.phase == PhaseIdle {
		r.Start(t.At)
	}
	if r.Preempt(t.At, t.Cancelled) {
		return r.phase
	}

	r.ticks++
	switch {
	case t.Candidate == nil:
		r.streak = 0
		r.label = ""
	case r.streak > 0 && t.Candidate.Label == r.label:
		r.streak++
		r.lastDistance = t.Candidate.Distance
	default:
		r.streak = 1
		r.label = t.Candidate.Label
		r.lastDistance = t.Candidate.Distance
	}

	if r.streak >= r.cfg.RequiredStreak {
		r.finish(PhaseConfirmed, t.At, "")
	}
	return r.phase
}

// Abort ends a searching session as cancelled with the given reason.
func (r *Recognition) Abort(now time.Time, reason string) {
	if r.phase.Terminal() {
		return
	}
	r.finish(PhaseCancelled, now, reason)
}

func (r *Recognition) finish(phase Phase, at time.Time, reason string) {
	r.phase = phase
	r.finishedAt = at
	r.reason = reason
}

// Remaining returns the time left before the timeout rule fires.
func (r *Recognition) Remaining(now time.Time) time.Duration {
	return r.cfg.Timeout - now.Sub(r.startedAt)
}

func (r *Recognition) Phase() Phase  { return r.phase }
func (r *Recognition) Streak() int   { return r.streak }
func (r *Recognition) Label() string { return r.label }
func (r *Recognition) Ticks() int    { return r.ticks }
func (r *Recognition) Done() bool    { return r.phase.Terminal() }

// Result is meaningful once Done. Only CONFIRMED carries a label.
func (r *Recognition) Result() domain.RecognitionResult {
	res := domain.RecognitionResult{
		Reason: r.reason,
		Ticks:  r.ticks,
	}
	if !r.finishedAt.IsZero() {
		res.Elapsed = r.finishedAt.Sub(r.startedAt)
	}

	switch r.phase {
	case PhaseConfirmed:
		res.Outcome = domain.OutcomeConfirmed
		res.Label = r.label
		d := r.lastDistance
		c := 1 - d
		res.Distance = &d
		res.Confidence = &c
	case PhaseTimedOut:
		res.Outcome = domain.OutcomeTimedOut
	case PhaseCancelled:
		res.Outcome = domain.OutcomeCancelled
	}
	return res
}
