package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/frame"
	"github.com/saturnino-fabrica-de-software/totem/internal/session"
)

// Session is one running or finished attempt held by the registry.
type Session struct {
	ID        uuid.UUID
	Kind      domain.SessionKind
	StartedAt time.Time

	// set only for push sessions
	push   *frame.ChannelSource
	cancel context.CancelFunc
	done   chan struct{}

	mu          sync.RWMutex
	progress    session.Progress
	finishedAt  time.Time
	recognition *domain.RecognitionResult
	enrollment  *domain.EnrollmentResult
}

func newSession(kind domain.SessionKind, label string, startedAt time.Time, push *frame.ChannelSource, cancel context.CancelFunc) *Session {
	return &Session{
		ID:        uuid.New(),
		Kind:      kind,
		StartedAt: startedAt,
		push:      push,
		cancel:    cancel,
		done:      make(chan struct{}),
		progress:  session.Progress{Phase: session.PhaseIdle, Label: label},
	}
}

func (s *Session) setProgress(p session.Progress) {
	s.mu.Lock()
	s.progress = p
	s.mu.Unlock()
}

func (s *Session) finishRecognition(res domain.RecognitionResult, at time.Time) {
	s.mu.Lock()
	s.recognition = &res
	s.finishedAt = at
	s.progress.Phase = phaseOf(res.Outcome)
	s.progress.Label = res.Label
	s.mu.Unlock()
	close(s.done)
}

func (s *Session) finishEnrollment(res domain.EnrollmentResult, at time.Time) {
	s.mu.Lock()
	s.enrollment = &res
	s.finishedAt = at
	s.progress.Phase = phaseOf(res.Outcome)
	s.progress.SamplesCollected = res.SamplesCollected
	s.mu.Unlock()
	close(s.done)
}

// Finished reports whether the session reached a terminal outcome.
func (s *Session) Finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Session) finishedBefore(t time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.finishedAt.IsZero() && s.finishedAt.Before(t)
}

// View snapshots the session for API responses.
func (s *Session) View() domain.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := domain.SessionView{
		ID:               s.ID,
		Kind:             s.Kind,
		Phase:            string(s.progress.Phase),
		Label:            s.progress.Label,
		Streak:           s.progress.Streak,
		SamplesCollected: s.progress.SamplesCollected,
		StartedAt:        s.StartedAt,
		Recognition:      s.recognition,
		Enrollment:       s.enrollment,
	}
	if !s.finishedAt.IsZero() {
		at := s.finishedAt
		v.FinishedAt = &at
	}
	return v
}

func phaseOf(o domain.Outcome) session.Phase {
	switch o {
	case domain.OutcomeConfirmed:
		return session.PhaseConfirmed
	case domain.OutcomeDone:
		return session.PhaseDone
	case domain.OutcomeTimedOut:
		return session.PhaseTimedOut
	default:
		return session.PhaseCancelled
	}
}
