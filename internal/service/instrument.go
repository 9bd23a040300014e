package service

import (
	"context"
	"errors"
	"time"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/frame"
	"github.com/saturnino-fabrica-de-software/totem/internal/match"
	"github.com/saturnino-fabrica-de-software/totem/internal/metrics"
	"github.com/saturnino-fabrica-de-software/totem/internal/session"
)

type timedEvaluator struct {
	next    session.Evaluator
	metrics *metrics.Metrics
}

func (t timedEvaluator) Evaluate(ctx context.Context, f []byte) *domain.MatchCandidate {
	start := time.Now()
	defer func() {
		t.metrics.ObserveFrame(string(domain.SessionRecognition), time.Since(start))
	}()
	return t.next.Evaluate(ctx, f)
}

type timedObserver struct {
	next    session.Observer
	metrics *metrics.Metrics
}

func (t timedObserver) Observe(ctx context.Context, f []byte) match.Observation {
	start := time.Now()
	defer func() {
		t.metrics.ObserveFrame(string(domain.SessionEnrollment), time.Since(start))
	}()
	return t.next.Observe(ctx, f)
}

// faultCounter counts failed acquisitions that the driver will retry.
type faultCounter struct {
	frame.Source
	metrics *metrics.Metrics
}

func (f faultCounter) Next(ctx context.Context) (frame.Frame, error) {
	fr, err := f.Source.Next(ctx)
	if err != nil && ctx.Err() == nil &&
		!errors.Is(err, frame.ErrExhausted) && !errors.Is(err, frame.ErrClosed) {
		f.metrics.IncSensorFault()
	}
	return fr, err
}
