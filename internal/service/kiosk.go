package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/totem/internal/audit"
	"github.com/saturnino-fabrica-de-software/totem/internal/distance"
	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/frame"
	"github.com/saturnino-fabrica-de-software/totem/internal/metrics"
	"github.com/saturnino-fabrica-de-software/totem/internal/session"
	"github.com/saturnino-fabrica-de-software/totem/internal/ws"
)

// finalizeTimeout bounds commit, archive and audit writes after a session ends.
const finalizeTimeout = 10 * time.Second

// IdentityStore is the embedding store as seen by the kiosk.
type IdentityStore interface {
	Len() int
	Nearest(emb domain.Embedding, dist distance.Func) (domain.MatchCandidate, bool)
	Commit(ctx context.Context, label string, emb domain.Embedding) (domain.Identity, error)
	Delete(ctx context.Context, label string) error
	List() []domain.Identity
}

// SampleArchiver keeps enrollment face crops.
type SampleArchiver interface {
	Replace(ctx context.Context, label string, crops [][]byte) error
	Delete(ctx context.Context, label string) error
}

// Publisher pushes session events to live viewers.
type Publisher interface {
	Publish(sessionID uuid.UUID, eventType ws.EventType, data interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(uuid.UUID, ws.EventType, interface{}) {}

// KioskService runs recognition and enrollment sessions against one camera.
// At most one session is active at a time; finished sessions stay queryable
// until the reaper drops them.
type KioskService struct {
	cfg        Config
	store      IdentityStore
	recognizer session.Evaluator
	observer   session.Observer
	driver     *session.Driver
	sources    SourceFactory
	archive    SampleArchiver
	audit      audit.Logger
	metrics    *metrics.Metrics
	events     Publisher
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	active   *Session
	wg       sync.WaitGroup
}

func NewKioskService(
	cfg Config,
	store IdentityStore,
	recognizer session.Evaluator,
	observer session.Observer,
	driver *session.Driver,
	logger *slog.Logger,
) *KioskService {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	return &KioskService{
		cfg:        cfg,
		store:      store,
		recognizer: recognizer,
		observer:   observer,
		driver:     driver,
		audit:      &audit.NoOpLogger{},
		events:     noopPublisher{},
		logger:     logger.With("component", "kiosk"),
		now:        time.Now,
		sessions:   make(map[uuid.UUID]*Session),
	}
}

// WithSources makes sessions pull frames from a camera instead of client pushes.
func (s *KioskService) WithSources(f SourceFactory) *KioskService {
	s.sources = f
	return s
}

func (s *KioskService) WithArchive(a SampleArchiver) *KioskService {
	s.archive = a
	return s
}

func (s *KioskService) WithAudit(l audit.Logger) *KioskService {
	s.audit = l
	return s
}

func (s *KioskService) WithMetrics(m *metrics.Metrics) *KioskService {
	s.metrics = m
	return s
}

func (s *KioskService) WithEvents(p Publisher) *KioskService {
	s.events = p
	return s
}

// StartRecognition opens the frame source and starts a recognition session.
// An empty gallery or an unavailable camera fails before any session exists.
func (s *KioskService) StartRecognition(ctx context.Context) (domain.SessionView, error) {
	if s.recognizer == nil {
		return domain.SessionView{}, domain.ErrNoFaceProvider
	}
	if s.store.Len() == 0 {
		return domain.SessionView{}, domain.ErrNoIdentities
	}

	sess, src, runCtx, err := s.begin(ctx, domain.SessionRecognition, "")
	if err != nil {
		return domain.SessionView{}, err
	}

	sm := session.NewRecognition(s.cfg.Recognition)
	ev := timedEvaluator{next: s.recognizer, metrics: s.metrics}

	go func() {
		defer s.wg.Done()
		res := s.driver.Recognize(runCtx, src, ev, sm, s.progressFunc(sess))
		s.finishRecognition(sess, res)
	}()

	return sess.View(), nil
}

// StartEnrollment starts collecting samples for label. The label is committed
// only when the session reaches DONE.
func (s *KioskService) StartEnrollment(ctx context.Context, label string) (domain.SessionView, error) {
	label, err := domain.NormalizeLabel(label)
	if err != nil {
		return domain.SessionView{}, err
	}
	if s.observer == nil {
		return domain.SessionView{}, domain.ErrNoFaceProvider
	}

	sess, src, runCtx, err := s.begin(ctx, domain.SessionEnrollment, label)
	if err != nil {
		return domain.SessionView{}, err
	}

	sm := session.NewEnrollment(label, s.cfg.Enrollment)
	obs := timedObserver{next: s.observer, metrics: s.metrics}

	go func() {
		defer s.wg.Done()
		res := s.driver.Enroll(runCtx, src, obs, sm, s.progressFunc(sess))
		s.finishEnrollment(sess, sm, res)
	}()

	return sess.View(), nil
}

// begin enforces the one-session policy and acquires the frame source.
func (s *KioskService) begin(ctx context.Context, kind domain.SessionKind, label string) (*Session, frame.Source, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && !s.active.Finished() {
		return nil, nil, nil, domain.ErrSessionInProgress.WithError(
			fmt.Errorf("session %s is still running", s.active.ID),
		)
	}

	var (
		src  frame.Source
		push *frame.ChannelSource
	)
	if s.sources == nil {
		push = frame.NewChannelSource()
		src = push
	} else {
		opened, err := s.sources(ctx)
		if err != nil {
			return nil, nil, nil, domain.ErrNoFrameSource.WithError(err)
		}
		src = opened
	}
	src = frame.Limit(faultCounter{Source: src, metrics: s.metrics}, s.cfg.FrameRate)

	runCtx, cancel := context.WithCancel(context.Background())
	sess := newSession(kind, label, s.now(), push, cancel)
	s.sessions[sess.ID] = sess
	s.active = sess
	s.wg.Add(1)

	s.metrics.SessionStarted()
	s.logger.Info("session started", "session_id", sess.ID, "kind", kind, "label", label)
	s.events.Publish(sess.ID, ws.EventSessionStarted, sess.View())
	s.record(ctx, audit.Event{
		SessionID: sess.ID,
		EventType: audit.EventSessionStarted,
		Kind:      kind,
		Label:     label,
		Success:   true,
	})

	return sess, src, runCtx, nil
}

func (s *KioskService) progressFunc(sess *Session) func(session.Progress) {
	samples := 0
	return func(p session.Progress) {
		sess.setProgress(p)
		if p.SamplesCollected > samples {
			samples = p.SamplesCollected
			s.events.Publish(sess.ID, ws.EventSampleAccepted, p)
		}
		s.events.Publish(sess.ID, ws.EventSessionProgress, p)
	}
}

func (s *KioskService) finishRecognition(sess *Session, res domain.RecognitionResult) {
	sess.cancel()
	finishedAt := s.now()
	s.release(sess)
	// watchers are released last, once audit and metrics are written
	defer sess.finishRecognition(res, finishedAt)

	s.logger.Info("recognition finished",
		"session_id", sess.ID,
		"outcome", res.Outcome,
		"label", res.Label,
		"reason", res.Reason,
		"ticks", res.Ticks,
		"elapsed", res.Elapsed,
	)

	s.metrics.ObserveSession(string(sess.Kind), string(res.Outcome), res.Elapsed)
	s.events.Publish(sess.ID, ws.EventSessionFinished, res)

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	s.record(ctx, audit.Event{
		SessionID: sess.ID,
		EventType: audit.EventRecognitionFinished,
		Kind:      sess.Kind,
		Outcome:   res.Outcome,
		Label:     res.Label,
		Distance:  res.Distance,
		Ticks:     res.Ticks,
		Latency:   res.Elapsed,
		Success:   res.Outcome.Success(),
		Error:     res.Reason,
	})
}

func (s *KioskService) finishEnrollment(sess *Session, sm *session.Enrollment, res domain.EnrollmentResult) {
	sess.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	var meta map[string]string
	if res.Outcome == domain.OutcomeDone {
		var err error
		meta, err = s.commit(ctx, sm)
		if err != nil {
			s.logger.Error("enrollment commit failed", "session_id", sess.ID, "label", res.Label, "error", err)
			res.Outcome = domain.OutcomeCancelled
			res.Reason = "commit failed"
		}
	}

	finishedAt := s.now()
	s.release(sess)
	defer sess.finishEnrollment(res, finishedAt)

	s.logger.Info("enrollment finished",
		"session_id", sess.ID,
		"outcome", res.Outcome,
		"label", res.Label,
		"samples", res.SamplesCollected,
		"reason", res.Reason,
		"elapsed", res.Elapsed,
	)

	s.metrics.ObserveSession(string(sess.Kind), string(res.Outcome), res.Elapsed)
	s.metrics.SetGallerySize(s.store.Len())
	s.events.Publish(sess.ID, ws.EventSessionFinished, res)

	s.record(ctx, audit.Event{
		SessionID:        sess.ID,
		EventType:        audit.EventEnrollmentFinished,
		Kind:             sess.Kind,
		Outcome:          res.Outcome,
		Label:            res.Label,
		SamplesCollected: res.SamplesCollected,
		Ticks:            res.Ticks,
		Latency:          res.Elapsed,
		Success:          res.Outcome.Success(),
		Error:            res.Reason,
	})
	if res.Outcome == domain.OutcomeDone {
		s.record(ctx, audit.Event{
			SessionID: sess.ID,
			EventType: audit.EventIdentityEnrolled,
			Label:     res.Label,
			Success:   true,
			Metadata:  meta,
		})
	}
}

// commit writes the reference embedding and archives the sample crops.
func (s *KioskService) commit(ctx context.Context, sm *session.Enrollment) (map[string]string, error) {
	label := sm.Label()
	ref, ok := sm.Reference()
	if !ok {
		return nil, errors.New("no reference sample")
	}

	meta := map[string]string{"samples": strconv.Itoa(sm.SamplesCollected())}

	if c, found := s.store.Nearest(ref, s.cfg.Metric.Func()); found && c.Label != label && c.Distance <= s.cfg.EnrollmentTolerance {
		s.logger.Warn("enrolled face resembles another identity",
			"label", label,
			"existing_label", c.Label,
			"distance", c.Distance,
		)
		meta["resembles"] = c.Label
	}

	if _, err := s.store.Commit(ctx, label, ref); err != nil {
		return nil, err
	}

	if crops := s.crops(label, sm.Samples()); s.archive != nil && s.cfg.ArchiveSamples && len(crops) > 0 {
		if err := s.archive.Replace(ctx, label, crops); err != nil {
			s.logger.Warn("archive samples failed", "label", label, "error", err)
		} else {
			meta["archived"] = strconv.Itoa(len(crops))
		}
	}

	return meta, nil
}

func (s *KioskService) crops(label string, samples []session.Sample) [][]byte {
	crops := make([][]byte, 0, len(samples))
	for i, sample := range samples {
		r := sample.Observation.Region
		region := image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height))

		crop, err := frame.CropJPEG(sample.Frame, region)
		if err != nil {
			s.logger.Warn("skip sample crop", "label", label, "sample", i+1, "error", err)
			continue
		}
		crops = append(crops, crop)
	}
	return crops
}

func (s *KioskService) release(sess *Session) {
	s.mu.Lock()
	if s.active == sess {
		s.active = nil
	}
	s.mu.Unlock()
	s.metrics.SessionEnded()
}

func (s *KioskService) record(ctx context.Context, event audit.Event) {
	event.Provider = s.cfg.Provider
	if err := s.audit.Log(ctx, event); err != nil {
		s.logger.Error("audit log failed", "event_type", event.EventType, "error", err)
	}
}

func (s *KioskService) lookup(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return sess, nil
}

// Get returns the current view of a session.
func (s *KioskService) Get(id uuid.UUID) (domain.SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	return sess.View(), nil
}

// Cancel signals the session's control loop. The terminal outcome is
// CANCELLED unless the session timed out first.
func (s *KioskService) Cancel(id uuid.UUID) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	if sess.Finished() {
		return domain.ErrSessionFinished
	}
	sess.cancel()
	return nil
}

// PushFrame hands a client-captured frame to a push session.
func (s *KioskService) PushFrame(id uuid.UUID, data []byte) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}
	if sess.push == nil {
		return domain.ErrValidationFailed.WithError(fmt.Errorf("session %s reads frames from the camera", id))
	}
	if sess.Finished() {
		return domain.ErrSessionFinished
	}
	if len(data) == 0 {
		return domain.ErrInvalidImage.WithError(errors.New("empty frame"))
	}

	if err := sess.push.Push(data); err != nil {
		if errors.Is(err, frame.ErrClosed) {
			return domain.ErrSessionFinished
		}
		return err
	}
	return nil
}

// Wait blocks until the session finishes or ctx is done.
func (s *KioskService) Wait(ctx context.Context, id uuid.UUID) (domain.SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return domain.SessionView{}, err
	}

	select {
	case <-sess.done:
		return sess.View(), nil
	case <-ctx.Done():
		return sess.View(), ctx.Err()
	}
}

// ListIdentities returns the enrolled labels without their embeddings.
func (s *KioskService) ListIdentities() []domain.Identity {
	return s.store.List()
}

// DeleteIdentity removes a label and its archived samples.
func (s *KioskService) DeleteIdentity(ctx context.Context, label string) error {
	label, err := domain.NormalizeLabel(label)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, label); err != nil {
		return err
	}

	if s.archive != nil {
		if err := s.archive.Delete(ctx, label); err != nil {
			s.logger.Warn("delete archived samples failed", "label", label, "error", err)
		}
	}

	s.metrics.SetGallerySize(s.store.Len())
	s.logger.Info("identity deleted", "label", label)
	s.record(ctx, audit.Event{
		EventType: audit.EventIdentityDeleted,
		Label:     label,
		Success:   true,
	})
	return nil
}

// Run reaps finished sessions older than the TTL until ctx is done.
func (s *KioskService) Run(ctx context.Context) {
	interval := s.cfg.SessionTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.reap(); n > 0 {
				s.logger.Debug("reaped sessions", "count", n)
			}
		}
	}
}

func (s *KioskService) reap() int {
	cutoff := s.now().Add(-s.cfg.SessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, sess := range s.sessions {
		if sess.finishedBefore(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// Shutdown cancels every running session and waits for their loops to
// release the frame sources.
func (s *KioskService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
