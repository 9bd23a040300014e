package session

import (
	"time"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/match"
)

// EnrollmentConfig parameterizes sample collection. A zero Timeout means the
// session is bounded only by TargetSamples and the frame source.
type EnrollmentConfig struct {
	TargetSamples      int
	StabilityStreak    int
	MinCaptureInterval time.Duration
	Timeout            time.Duration
}

// EnrollTick is one observed frame.
type EnrollTick struct {
	At          time.Time
	Cancelled   bool
	Observation match.Observation
	Frame       []byte
}

// Sample is one accepted capture.
type Sample struct {
	Embedding   domain.Embedding
	Observation match.Observation
	Frame       []byte
	At          time.Time
}

// Enrollment collects spaced, stable single-face samples for a new label.
type Enrollment struct {
	cfg   EnrollmentConfig
	label string

	phase       Phase
	startedAt   time.Time
	finishedAt  time.Time
	stable      int
	lastCapture time.Time
	samples     []Sample
	collected   int
	ticks       int
	reason      string
}

func NewEnrollment(label string, cfg EnrollmentConfig) *Enrollment {
	if cfg.TargetSamples < 1 {
		cfg.TargetSamples = 1
	}
	if cfg.StabilityStreak < 1 {
		cfg.StabilityStreak = 1
	}
	return &Enrollment{
		cfg:     cfg,
		label:   label,
		phase:   PhaseIdle,
		samples: make([]Sample, 0, cfg.TargetSamples),
	}
}

// Start moves IDLE to STABILIZING. The capture interval for the first sample
// is measured from here.
func (e *Enrollment) Start(at time.Time) {
	if e.phase != PhaseIdle {
		return
	}
	e.phase = PhaseStabilizing
	e.startedAt = at
	e.lastCapture = at
}

// Preempt applies the optional timeout and the cancel rule.
func (e *Enrollment) Preempt(now time.Time, cancelled bool) bool {
	if e.phase.Terminal() || e.phase == PhaseIdle {
		return e.phase.Terminal()
	}

	if e.cfg.Timeout > 0 && now.Sub(e.startedAt) >= e.cfg.Timeout {
		e.finish(PhaseTimedOut, now, ReasonTimeout)
		return true
	}
	if cancelled {
		e.finish(PhaseCancelled, now, ReasonCancelled)
		return true
	}
	return false
}

// Step applies one observed frame.
func (e *Enrollment) Step(t EnrollTick) Phase {
	if e.phase == PhaseIdle {
		e.Start(t.At)
	}
	if e.Preempt(t.At, t.Cancelled) {
		return e.phase
	}

	e.ticks++
	if !t.Observation.Single() {
		e.stable = 0
		e.phase = PhaseStabilizing
		return e.phase
	}

	e.stable++
	if e.stable < e.cfg.StabilityStreak {
		e.phase = PhaseStabilizing
		return e.phase
	}

	if t.At.Sub(e.lastCapture) < e.cfg.MinCaptureInterval {
		// stable, waiting for the subject to re-present
		e.phase = PhaseCapturing
		return e.phase
	}

	e.samples = append(e.samples, Sample{
		Embedding:   t.Observation.Embedding.Clone(),
		Observation: t.Observation,
		Frame:       t.Frame,
		At:          t.At,
	})
	e.stable = 0
	e.lastCapture = t.At
	e.phase = PhaseStabilizing

	if len(e.samples) >= e.cfg.TargetSamples {
		e.finish(PhaseDone, t.At, "")
	}
	return e.phase
}

// Abort ends an unfinished session as cancelled and drops the samples.
func (e *Enrollment) Abort(now time.Time, reason string) {
	if e.phase.Terminal() {
		return
	}
	e.finish(PhaseCancelled, now, reason)
}

func (e *Enrollment) finish(phase Phase, at time.Time, reason string) {
	e.phase = phase
	e.finishedAt = at
	e.reason = reason
	e.collected = len(e.samples)
	if phase != PhaseDone {
		e.samples = nil
	}
}

// Remaining returns the time left before the timeout fires, or ok=false when
// the session has no timeout.
func (e *Enrollment) Remaining(now time.Time) (time.Duration, bool) {
	if e.cfg.Timeout <= 0 {
		return 0, false
	}
	return e.cfg.Timeout - now.Sub(e.startedAt), true
}

// Reference is the embedding committed for the label: the first accepted sample.
func (e *Enrollment) Reference() (domain.Embedding, bool) {
	if e.phase != PhaseDone || len(e.samples) == 0 {
		return nil, false
	}
	return e.samples[0].Embedding.Clone(), true
}

// Samples returns the accepted samples. Empty once a session has failed.
func (e *Enrollment) Samples() []Sample {
	out := make([]Sample, len(e.samples))
	copy(out, e.samples)
	return out
}

func (e *Enrollment) Phase() Phase  { return e.phase }
func (e *Enrollment) Label() string { return e.label }
func (e *Enrollment) Stable() int   { return e.stable }
func (e *Enrollment) Ticks() int    { return e.ticks }
func (e *Enrollment) Done() bool    { return e.phase.Terminal() }

func (e *Enrollment) SamplesCollected() int {
	if e.phase.Terminal() {
		return e.collected
	}
	return len(e.samples)
}

// Result reports the outcome. For failed sessions SamplesCollected counts the
// samples that were discarded.
func (e *Enrollment) Result() domain.EnrollmentResult {
	res := domain.EnrollmentResult{
		Label:            e.label,
		SamplesCollected: e.SamplesCollected(),
		Reason:           e.reason,
		Ticks:            e.ticks,
	}
	if !e.finishedAt.IsZero() {
		res.Elapsed = e.finishedAt.Sub(e.startedAt)
	}

	switch e.phase {
	case PhaseDone:
		res.Outcome = domain.OutcomeDone
	case PhaseTimedOut:
		res.Outcome = domain.OutcomeTimedOut
	case PhaseCancelled:
		res.Outcome = domain.OutcomeCancelled
	}
	return res
}
