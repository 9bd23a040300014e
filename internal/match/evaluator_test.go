package match

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/totem/internal/distance"
	"github.com/saturnino-fabrica-de-software/totem/internal/embedding"
	"github.com/saturnino-fabrica-de-software/totem/internal/frame"
	"github.com/saturnino-fabrica-de-software/totem/internal/provider/mock"
)

func newGallery(t *testing.T, labels ...string) *embedding.Store {
	t.Helper()
	store := embedding.NewStore(nil)
	for _, l := range labels {
		_, err := store.Commit(context.Background(), l, mock.EmbeddingFor(l))
		require.NoError(t, err)
	}
	return store
}

func newEvaluator(gallery Gallery, opts ...Option) *Evaluator {
	opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return NewEvaluator(mock.New(), gallery, distance.Euclidean, 0.5, opts...)
}

func TestEvaluator_Evaluate(t *testing.T) {
	ev := newEvaluator(newGallery(t, "alice", "bob"))
	ctx := context.Background()

	tests := []struct {
		name      string
		frame     string
		wantLabel string
		wantDist  float64
		wantNone  bool
	}{
		{name: "exact match", frame: "alice", wantLabel: "alice", wantDist: 0},
		{name: "within tolerance", frame: "bob~0.3", wantLabel: "bob", wantDist: 0.3},
		{name: "just under tolerance", frame: "bob~0.49", wantLabel: "bob", wantDist: 0.49},
		{name: "beyond tolerance", frame: "alice~0.6", wantNone: true},
		{name: "stranger", frame: "mallory", wantNone: true},
		{name: "no face", frame: "", wantNone: true},
		{name: "detector failure", frame: "!timeout", wantNone: true},
		{name: "global minimum across faces", frame: "alice~0.4, bob~0.1", wantLabel: "bob", wantDist: 0.1},
		{name: "stranger next to known face", frame: "mallory, alice~0.2", wantLabel: "alice", wantDist: 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ev.Evaluate(ctx, []byte(tt.frame))
			if tt.wantNone {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			assert.Equal(t, tt.wantLabel, c.Label)
			assert.InDelta(t, tt.wantDist, c.Distance, 1e-9)
		})
	}
}

func TestEvaluator_EmptyGallery(t *testing.T) {
	ev := newEvaluator(newGallery(t))
	assert.Nil(t, ev.Evaluate(context.Background(), []byte("alice")))
}

func TestEvaluator_FrameCheck(t *testing.T) {
	ev := newEvaluator(newGallery(t, "alice"), WithFrameCheck(frame.Validate))
	assert.Nil(t, ev.Evaluate(context.Background(), []byte("alice")), "text is not an image")

	rejectAll := newEvaluator(newGallery(t, "alice"), WithFrameCheck(func([]byte) error { return errors.New("blurred") }))
	assert.Nil(t, rejectAll.Evaluate(context.Background(), []byte("alice")))
	assert.Zero(t, rejectAll.Observe(context.Background(), []byte("alice")).Faces)
}

func TestEvaluator_Observe(t *testing.T) {
	ev := newEvaluator(newGallery(t))
	ctx := context.Background()

	tests := []struct {
		name       string
		frame      string
		wantFaces  int
		wantSingle bool
	}{
		{"no face", "", 0, false},
		{"one face", "carol", 1, true},
		{"two faces", "carol,dave", 2, false},
		{"sensor fault", "!dark", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := ev.Observe(ctx, []byte(tt.frame))
			assert.Equal(t, tt.wantFaces, obs.Faces)
			assert.Equal(t, tt.wantSingle, obs.Single())
			if tt.wantSingle {
				assert.Equal(t, mock.EmbeddingFor("carol"), obs.Embedding)
				assert.Greater(t, obs.Region.Area(), 0.0)
			}
		})
	}
}

func TestEvaluator_EnrollThenRecognize(t *testing.T) {
	ctx := context.Background()
	gallery := newGallery(t)
	ev := newEvaluator(gallery)

	obs := ev.Observe(ctx, []byte("erin"))
	require.True(t, obs.Single())

	_, err := gallery.Commit(ctx, "erin", obs.Embedding)
	require.NoError(t, err)

	c := ev.Evaluate(ctx, []byte("erin~0.2"))
	require.NotNil(t, c)
	assert.Equal(t, "erin", c.Label)
}
