package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/totem/internal/audit"
	"github.com/saturnino-fabrica-de-software/totem/internal/distance"
	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/embedding"
	"github.com/saturnino-fabrica-de-software/totem/internal/frame"
	"github.com/saturnino-fabrica-de-software/totem/internal/match"
	"github.com/saturnino-fabrica-de-software/totem/internal/metrics"
	"github.com/saturnino-fabrica-de-software/totem/internal/provider/mock"
	"github.com/saturnino-fabrica-de-software/totem/internal/session"
	"github.com/saturnino-fabrica-de-software/totem/internal/ws"
)

type capturedAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *capturedAudit) Log(_ context.Context, e audit.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturedAudit) ofType(t audit.EventType) []audit.Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []audit.Event
	for _, e := range c.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type capturedEvents struct {
	mu    sync.Mutex
	types []ws.EventType
}

func (c *capturedEvents) Publish(_ uuid.UUID, t ws.EventType, _ interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types = append(c.types, t)
}

func (c *capturedEvents) count(t ws.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, got := range c.types {
		if got == t {
			n++
		}
	}
	return n
}

type fakeArchive struct {
	mu     sync.Mutex
	crops  map[string][][]byte
	delErr error
}

func (f *fakeArchive) Replace(_ context.Context, label string, crops [][]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.crops == nil {
		f.crops = make(map[string][][]byte)
	}
	f.crops[label] = crops
	return nil
}

func (f *fakeArchive) Delete(_ context.Context, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.crops, label)
	return f.delErr
}

type harness struct {
	svc     *KioskService
	store   *embedding.Store
	audit   *capturedAudit
	events  *capturedEvents
	archive *fakeArchive
	metrics *metrics.Metrics
}

func testConfig() Config {
	return Config{
		Recognition: session.RecognitionConfig{RequiredStreak: 3, Timeout: 5 * time.Second},
		Enrollment: session.EnrollmentConfig{
			TargetSamples:   2,
			StabilityStreak: 1,
			Timeout:         5 * time.Second,
		},
		Metric:              distance.Euclidean,
		EnrollmentTolerance: 0.5,
		ArchiveSamples:      true,
		SessionTTL:          time.Minute,
		Provider:            "mock",
	}
}

func newHarness(t *testing.T, cfg Config, labels ...string) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := embedding.NewStore(nil)
	for _, l := range labels {
		_, err := store.Commit(context.Background(), l, mock.EmbeddingFor(l))
		require.NoError(t, err)
	}

	ev := match.NewEvaluator(mock.New(), store, cfg.Metric, 0.5, match.WithLogger(logger))
	driver := session.NewDriver(logger, session.WithRetryPause(time.Millisecond))

	h := &harness{
		store:   store,
		audit:   &capturedAudit{},
		events:  &capturedEvents{},
		archive: &fakeArchive{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h.svc = NewKioskService(cfg, store, ev, ev, driver, logger).
		WithAudit(h.audit).
		WithEvents(h.events).
		WithArchive(h.archive).
		WithMetrics(h.metrics)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.svc.Shutdown(ctx)
	})
	return h
}

// feed pushes data every few milliseconds until the session stops accepting frames.
func feed(svc *KioskService, id uuid.UUID, data []byte) {
	go func() {
		for {
			if err := svc.PushFrame(id, data); err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
}

func wait(t *testing.T, svc *KioskService, id uuid.UUID) domain.SessionView {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	view, err := svc.Wait(ctx, id)
	require.NoError(t, err)
	return view
}

func pngFrame(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 240, 240))
	for x := 0; x < 240; x++ {
		for y := 0; y < 240; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 64, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestKioskService_StartRecognition_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		labels  []string
		sources SourceFactory
		wantErr error
	}{
		{
			name:    "empty gallery",
			wantErr: domain.ErrNoIdentities,
		},
		{
			name:   "camera unavailable",
			labels: []string{"alice"},
			sources: func(context.Context) (frame.Source, error) {
				return nil, errors.New("connection refused")
			},
			wantErr: domain.ErrNoFrameSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig(), tt.labels...)
			h.svc.WithSources(tt.sources)

			_, err := h.svc.StartRecognition(context.Background())

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, h.audit.ofType(audit.EventSessionStarted))
		})
	}
}

func TestKioskService_RecognitionConfirms(t *testing.T) {
	h := newHarness(t, testConfig(), "alice", "bob")

	view, err := h.svc.StartRecognition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SessionRecognition, view.Kind)

	feed(h.svc, view.ID, []byte("alice~0.1"))
	final := wait(t, h.svc, view.ID)

	require.NotNil(t, final.Recognition)
	assert.Equal(t, domain.OutcomeConfirmed, final.Recognition.Outcome)
	assert.Equal(t, "alice", final.Recognition.Label)
	require.NotNil(t, final.Recognition.Distance)
	assert.InDelta(t, 0.1, *final.Recognition.Distance, 1e-9)
	assert.Equal(t, string(session.PhaseConfirmed), final.Phase)
	assert.NotNil(t, final.FinishedAt)

	finished := h.audit.ofType(audit.EventRecognitionFinished)
	require.Len(t, finished, 1)
	assert.Equal(t, view.ID, finished[0].SessionID)
	assert.True(t, finished[0].Success)
	assert.Equal(t, "mock", finished[0].Provider)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SessionOutcomes.WithLabelValues("recognition", "CONFIRMED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ActiveSessions))
	assert.Equal(t, 1, h.events.count(ws.EventSessionFinished))
	assert.GreaterOrEqual(t, h.events.count(ws.EventSessionProgress), 3)
}

func TestKioskService_OneSessionAtATime(t *testing.T) {
	h := newHarness(t, testConfig(), "alice")
	ctx := context.Background()

	first, err := h.svc.StartRecognition(ctx)
	require.NoError(t, err)

	_, err = h.svc.StartEnrollment(ctx, "bob")
	assert.ErrorIs(t, err, domain.ErrSessionInProgress)

	require.NoError(t, h.svc.Cancel(first.ID))
	final := wait(t, h.svc, first.ID)
	require.NotNil(t, final.Recognition)
	assert.Equal(t, domain.OutcomeCancelled, final.Recognition.Outcome)

	assert.ErrorIs(t, h.svc.Cancel(first.ID), domain.ErrSessionFinished)
	assert.ErrorIs(t, h.svc.PushFrame(first.ID, []byte("alice")), domain.ErrSessionFinished)

	second, err := h.svc.StartRecognition(ctx)
	require.NoError(t, err)
	require.NoError(t, h.svc.Cancel(second.ID))
	wait(t, h.svc, second.ID)
}

func TestKioskService_RecognitionTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.Recognition.Timeout = 50 * time.Millisecond
	h := newHarness(t, cfg, "alice")

	view, err := h.svc.StartRecognition(context.Background())
	require.NoError(t, err)

	final := wait(t, h.svc, view.ID)

	require.NotNil(t, final.Recognition)
	assert.Equal(t, domain.OutcomeTimedOut, final.Recognition.Outcome)
	assert.Empty(t, final.Recognition.Label)
}

func TestKioskService_EnrollmentCommitsAndArchives(t *testing.T) {
	h := newHarness(t, testConfig())
	data := pngFrame(t)

	view, err := h.svc.StartEnrollment(context.Background(), "  carol ")
	require.NoError(t, err)
	assert.Equal(t, "carol", view.Label)

	feed(h.svc, view.ID, data)
	final := wait(t, h.svc, view.ID)

	require.NotNil(t, final.Enrollment)
	assert.Equal(t, domain.OutcomeDone, final.Enrollment.Outcome)
	assert.Equal(t, 2, final.Enrollment.SamplesCollected)

	id, ok := h.store.Get("carol")
	require.True(t, ok)
	assert.Len(t, id.Embedding, mock.EmbeddingDimension)

	h.archive.mu.Lock()
	assert.Len(t, h.archive.crops["carol"], 2)
	h.archive.mu.Unlock()

	enrolled := h.audit.ofType(audit.EventIdentityEnrolled)
	require.Len(t, enrolled, 1)
	assert.Equal(t, "2", enrolled[0].Metadata["archived"])
	assert.Equal(t, 2, h.events.count(ws.EventSampleAccepted))
}

func TestKioskService_EnrollmentCancelledCommitsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.Enrollment.TargetSamples = 50
	h := newHarness(t, cfg)

	view, err := h.svc.StartEnrollment(context.Background(), "dave")
	require.NoError(t, err)

	feed(h.svc, view.ID, []byte("dave"))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, h.svc.Cancel(view.ID))

	final := wait(t, h.svc, view.ID)

	require.NotNil(t, final.Enrollment)
	assert.Equal(t, domain.OutcomeCancelled, final.Enrollment.Outcome)
	_, ok := h.store.Get("dave")
	assert.False(t, ok)
	assert.Empty(t, h.audit.ofType(audit.EventIdentityEnrolled))
}

func TestKioskService_EnrollmentWarnsOnResemblance(t *testing.T) {
	h := newHarness(t, testConfig(), "erin")

	view, err := h.svc.StartEnrollment(context.Background(), "erin-twin")
	require.NoError(t, err)

	feed(h.svc, view.ID, []byte("erin~0.2"))
	final := wait(t, h.svc, view.ID)

	require.NotNil(t, final.Enrollment)
	assert.Equal(t, domain.OutcomeDone, final.Enrollment.Outcome)

	enrolled := h.audit.ofType(audit.EventIdentityEnrolled)
	require.Len(t, enrolled, 1)
	assert.Equal(t, "erin", enrolled[0].Metadata["resembles"])
	assert.Equal(t, 2, h.store.Len())
}

func TestKioskService_StartEnrollment_InvalidLabel(t *testing.T) {
	h := newHarness(t, testConfig())

	for _, label := range []string{"", "   ", "../etc", "a/b"} {
		_, err := h.svc.StartEnrollment(context.Background(), label)
		assert.ErrorIs(t, err, domain.ErrInvalidLabel, label)
	}
}

func TestKioskService_DirectorySourceExhausted(t *testing.T) {
	h := newHarness(t, testConfig(), "alice")

	sources, err := NewSourceFactory("directory", "", t.TempDir())
	require.NoError(t, err)
	h.svc.WithSources(sources)

	view, err := h.svc.StartRecognition(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, h.svc.PushFrame(view.ID, []byte("alice")), domain.ErrValidationFailed)

	final := wait(t, h.svc, view.ID)
	require.NotNil(t, final.Recognition)
	assert.Equal(t, domain.OutcomeCancelled, final.Recognition.Outcome)
	assert.Equal(t, session.ReasonExhausted, final.Recognition.Reason)
}

func TestKioskService_GetAndReap(t *testing.T) {
	h := newHarness(t, testConfig(), "alice")

	_, err := h.svc.Get(uuid.New())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	view, err := h.svc.StartRecognition(context.Background())
	require.NoError(t, err)

	got, err := h.svc.Get(view.ID)
	require.NoError(t, err)
	assert.Equal(t, view.ID, got.ID)

	assert.Equal(t, 0, h.svc.reap(), "running sessions are never reaped")

	require.NoError(t, h.svc.Cancel(view.ID))
	wait(t, h.svc, view.ID)

	assert.Equal(t, 0, h.svc.reap())

	h.svc.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, h.svc.reap())

	_, err = h.svc.Get(view.ID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestKioskService_DeleteIdentity(t *testing.T) {
	h := newHarness(t, testConfig(), "alice", "bob")
	ctx := context.Background()

	require.NoError(t, h.svc.DeleteIdentity(ctx, "alice"))
	assert.Len(t, h.svc.ListIdentities(), 1)
	assert.Len(t, h.audit.ofType(audit.EventIdentityDeleted), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GallerySize))

	assert.ErrorIs(t, h.svc.DeleteIdentity(ctx, "alice"), domain.ErrIdentityNotFound)
}

func TestNewSourceFactory(t *testing.T) {
	f, err := NewSourceFactory("push", "", "")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = NewSourceFactory("webcam", "", "")
	assert.Error(t, err)

	f, err = NewSourceFactory("snapshot", "http://127.0.0.1:1/snap.jpg", "")
	require.NoError(t, err)
	_, err = f(context.Background())
	assert.Error(t, err)
}
