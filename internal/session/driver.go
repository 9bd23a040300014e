package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/frame"
	"github.com/saturnino-fabrica-de-software/totem/internal/match"
)

// DefaultRetryPause is how long the loop waits after a failed frame read.
const DefaultRetryPause = 100 * time.Millisecond

// Evaluator produces the recognition candidate for a frame.
type Evaluator interface {
	Evaluate(ctx context.Context, frame []byte) *domain.MatchCandidate
}

// Observer describes a frame for enrollment.
type Observer interface {
	Observe(ctx context.Context, frame []byte) match.Observation
}

// Progress is published after every tick.
type Progress struct {
	Phase            Phase                  `json:"phase"`
	Streak           int                    `json:"streak"`
	Label            string                 `json:"label,omitempty"`
	SamplesCollected int                    `json:"samples_collected"`
	Faces            int                    `json:"faces"`
	Ticks            int                    `json:"ticks"`
	Candidate        *domain.MatchCandidate `json:"candidate,omitempty"`
}

// Driver owns the control loop of one session: it pulls a frame, evaluates
// it and feeds the state machine, strictly one tick at a time.
//
// Cancelling ctx is the external cancel signal. The frame source is always
// closed when the loop returns.
type Driver struct {
	now        func() time.Time
	retryPause time.Duration
	logger     *slog.Logger
}

type DriverOption func(*Driver)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) DriverOption {
	return func(d *Driver) { d.now = now }
}

func WithRetryPause(p time.Duration) DriverOption {
	return func(d *Driver) { d.retryPause = p }
}

func NewDriver(logger *slog.Logger, opts ...DriverOption) *Driver {
	d := &Driver{
		now:        time.Now,
		retryPause: DefaultRetryPause,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type machine interface {
	Start(at time.Time)
	Preempt(now time.Time, cancelled bool) bool
	Abort(now time.Time, reason string)
	Done() bool
}

// Recognize drives sm until it reaches a terminal phase.
func (d *Driver) Recognize(ctx context.Context, src frame.Source, ev Evaluator, sm *Recognition, progress func(Progress)) domain.RecognitionResult {
	logger := d.logger.With("kind", domain.SessionRecognition)

	remaining := func(now time.Time) (time.Duration, bool) {
		return sm.Remaining(now), true
	}

	d.run(ctx, src, sm, remaining, logger, func(f frame.Frame, fault error) {
		var candidate *domain.MatchCandidate
		if fault == nil {
			candidate = ev.Evaluate(ctx, f.Data)
		}

		sm.Step(Tick{At: d.now(), Cancelled: ctx.Err() != nil, Candidate: candidate})
		logger.Debug("recognition tick",
			"seq", f.Seq,
			"phase", sm.Phase(),
			"streak", sm.Streak(),
			"label", sm.Label(),
		)

		if progress != nil {
			progress(Progress{
				Phase:     sm.Phase(),
				Streak:    sm.Streak(),
				Label:     sm.Label(),
				Ticks:     sm.Ticks(),
				Candidate: candidate,
			})
		}
	})

	return sm.Result()
}

// Enroll drives sm until it reaches a terminal phase. Committing the
// reference embedding is left to the caller.
func (d *Driver) Enroll(ctx context.Context, src frame.Source, obs Observer, sm *Enrollment, progress func(Progress)) domain.EnrollmentResult {
	logger := d.logger.With("kind", domain.SessionEnrollment, "label", sm.Label())

	d.run(ctx, src, sm, sm.Remaining, logger, func(f frame.Frame, fault error) {
		var o match.Observation
		if fault == nil {
			o = obs.Observe(ctx, f.Data)
		}

		before := sm.SamplesCollected()
		sm.Step(EnrollTick{At: d.now(), Cancelled: ctx.Err() != nil, Observation: o, Frame: f.Data})
		if sm.SamplesCollected() > before {
			logger.Info("enrollment sample accepted", "samples", sm.SamplesCollected())
		}
		logger.Debug("enrollment tick",
			"seq", f.Seq,
			"phase", sm.Phase(),
			"faces", o.Faces,
			"stable", sm.Stable(),
		)

		if progress != nil {
			progress(Progress{
				Phase:            sm.Phase(),
				Streak:           sm.Stable(),
				Label:            sm.Label(),
				SamplesCollected: sm.SamplesCollected(),
				Faces:            o.Faces,
				Ticks:            sm.Ticks(),
			})
		}
	})

	return sm.Result()
}

func (d *Driver) run(
	ctx context.Context,
	src frame.Source,
	m machine,
	remaining func(time.Time) (time.Duration, bool),
	logger *slog.Logger,
	tick func(f frame.Frame, fault error),
) {
	defer func() {
		if err := src.Close(); err != nil {
			logger.Warn("close frame source", "error", err)
		}
	}()

	m.Start(d.now())

	for !m.Done() {
		if m.Preempt(d.now(), ctx.Err() != nil) {
			return
		}

		f, deadlineHit, err := d.acquire(ctx, src, remaining)
		if ctx.Err() != nil {
			m.Preempt(d.now(), true)
			return
		}

		switch {
		case err == nil:
			tick(f, nil)
		case errors.Is(err, frame.ErrExhausted), errors.Is(err, frame.ErrClosed):
			logger.Info("frame source ended", "error", err)
			m.Abort(d.now(), ReasonExhausted)
		case deadlineHit:
			// the session deadline passed while waiting; Preempt resolves it
		default:
			logger.Warn("frame acquisition failed", "error", err)
			tick(frame.Frame{}, err)
			d.pause(ctx)
		}
	}
}

// acquire bounds the wait by the session deadline so a stalled source still
// lets the session time out.
func (d *Driver) acquire(ctx context.Context, src frame.Source, remaining func(time.Time) (time.Duration, bool)) (frame.Frame, bool, error) {
	left, bounded := remaining(d.now())
	if !bounded {
		f, err := src.Next(ctx)
		return f, false, err
	}
	if left <= 0 {
		return frame.Frame{}, true, context.DeadlineExceeded
	}

	acqCtx, cancel := context.WithTimeout(ctx, left)
	defer cancel()

	f, err := src.Next(acqCtx)
	return f, err != nil && acqCtx.Err() != nil, err
}

func (d *Driver) pause(ctx context.Context) {
	if d.retryPause <= 0 {
		return
	}
	t := time.NewTimer(d.retryPause)
	defer t.Stop()

	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
