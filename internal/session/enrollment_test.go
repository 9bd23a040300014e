package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/match"
)

func single(v float64) match.Observation {
	return match.Observation{Faces: 1, Embedding: domain.Embedding{v, v}}
}

func defaultEnrollCfg() EnrollmentConfig {
	return EnrollmentConfig{
		TargetSamples:      5,
		StabilityStreak:    3,
		MinCaptureInterval: 2 * time.Second,
	}
}

func newStartedEnrollment(cfg EnrollmentConfig) *Enrollment {
	e := NewEnrollment("dana", cfg)
	e.Start(t0)
	return e
}

func TestEnrollment_SampleCountFollowsInterval(t *testing.T) {
	const frameStep = 100 * time.Millisecond
	cfg := defaultEnrollCfg()

	tests := []struct {
		window time.Duration
		want   int
	}{
		{1900 * time.Millisecond, 0},
		{2 * time.Second, 1},
		{5 * time.Second, 2},
		{6100 * time.Millisecond, 3},
		{9900 * time.Millisecond, 4},
		{10 * time.Second, 5},
		{30 * time.Second, 5},
	}

	for _, tt := range tests {
		t.Run(tt.window.String(), func(t *testing.T) {
			e := newStartedEnrollment(cfg)
			for at := frameStep; at <= tt.window && !e.Done(); at += frameStep {
				e.Step(EnrollTick{At: t0.Add(at), Observation: single(float64(at))})
			}
			assert.Equal(t, tt.want, e.SamplesCollected())
		})
	}
}

func TestEnrollment_SamplesAreSpaced(t *testing.T) {
	cfg := defaultEnrollCfg()
	e := newStartedEnrollment(cfg)

	for i := 1; !e.Done(); i++ {
		require.Less(t, i, 1000)
		e.Step(EnrollTick{At: t0.Add(time.Duration(i) * 70 * time.Millisecond), Observation: single(float64(i))})
	}

	require.Equal(t, PhaseDone, e.Phase())
	samples := e.Samples()
	require.Len(t, samples, cfg.TargetSamples)
	for i := 1; i < len(samples); i++ {
		assert.GreaterOrEqual(t, samples[i].At.Sub(samples[i-1].At), cfg.MinCaptureInterval)
	}

	ref, ok := e.Reference()
	require.True(t, ok)
	assert.Equal(t, samples[0].Embedding, ref, "first sample is the reference")

	res := e.Result()
	assert.Equal(t, domain.OutcomeDone, res.Outcome)
	assert.Equal(t, "dana", res.Label)
	assert.Equal(t, 5, res.SamplesCollected)
}

func TestEnrollment_StabilityResets(t *testing.T) {
	tests := []struct {
		name string
		obs  match.Observation
	}{
		{"two faces", match.Observation{Faces: 2}},
		{"no face", match.Observation{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultEnrollCfg()
			cfg.MinCaptureInterval = 0
			e := newStartedEnrollment(cfg)

			e.Step(EnrollTick{At: t0.Add(1 * time.Second), Observation: single(1)})
			e.Step(EnrollTick{At: t0.Add(2 * time.Second), Observation: single(1)})
			assert.Equal(t, 2, e.Stable())

			e.Step(EnrollTick{At: t0.Add(3 * time.Second), Observation: tt.obs})
			assert.Equal(t, 0, e.Stable())
			assert.Equal(t, PhaseStabilizing, e.Phase())
			assert.Equal(t, 0, e.SamplesCollected(), "ambiguous frame is never sampled")

			e.Step(EnrollTick{At: t0.Add(4 * time.Second), Observation: single(1)})
			e.Step(EnrollTick{At: t0.Add(5 * time.Second), Observation: single(1)})
			assert.Equal(t, 0, e.SamplesCollected())
			e.Step(EnrollTick{At: t0.Add(6 * time.Second), Observation: single(1)})
			assert.Equal(t, 1, e.SamplesCollected())
		})
	}
}

func TestEnrollment_CapturingWhileWaitingForInterval(t *testing.T) {
	cfg := defaultEnrollCfg()
	e := newStartedEnrollment(cfg)

	for i := 1; i <= 3; i++ {
		e.Step(EnrollTick{At: t0.Add(time.Duration(i) * 100 * time.Millisecond), Observation: single(1)})
	}
	assert.Equal(t, PhaseCapturing, e.Phase())
	assert.Equal(t, 0, e.SamplesCollected())

	e.Step(EnrollTick{At: t0.Add(2 * time.Second), Observation: single(1), Frame: []byte("f")})
	assert.Equal(t, PhaseStabilizing, e.Phase())
	assert.Equal(t, 1, e.SamplesCollected())
	assert.Equal(t, []byte("f"), e.Samples()[0].Frame)
}

func TestEnrollment_CancelDiscardsSamples(t *testing.T) {
	cfg := defaultEnrollCfg()
	cfg.MinCaptureInterval = 0
	cfg.StabilityStreak = 1
	e := newStartedEnrollment(cfg)

	e.Step(EnrollTick{At: t0.Add(time.Second), Observation: single(1)})
	e.Step(EnrollTick{At: t0.Add(2 * time.Second), Observation: single(2)})
	require.Equal(t, 2, e.SamplesCollected())

	phase := e.Step(EnrollTick{At: t0.Add(3 * time.Second), Cancelled: true, Observation: single(3)})
	assert.Equal(t, PhaseCancelled, phase)
	assert.Empty(t, e.Samples())

	_, ok := e.Reference()
	assert.False(t, ok)

	res := e.Result()
	assert.Equal(t, domain.OutcomeCancelled, res.Outcome)
	assert.Equal(t, 2, res.SamplesCollected)
}

func TestEnrollment_AbortOnExhaustion(t *testing.T) {
	e := newStartedEnrollment(defaultEnrollCfg())
	e.Abort(t0.Add(time.Second), ReasonExhausted)

	assert.Equal(t, domain.OutcomeCancelled, e.Result().Outcome)
	assert.Equal(t, ReasonExhausted, e.Result().Reason)
	_, ok := e.Reference()
	assert.False(t, ok)
}

func TestEnrollment_OptionalTimeout(t *testing.T) {
	noTimeout := newStartedEnrollment(defaultEnrollCfg())
	assert.False(t, noTimeout.Preempt(t0.Add(24*time.Hour), false))
	_, bounded := noTimeout.Remaining(t0)
	assert.False(t, bounded)

	cfg := defaultEnrollCfg()
	cfg.Timeout = 30 * time.Second
	e := newStartedEnrollment(cfg)

	left, bounded := e.Remaining(t0.Add(10 * time.Second))
	assert.True(t, bounded)
	assert.Equal(t, 20*time.Second, left)

	e.Step(EnrollTick{At: t0.Add(30 * time.Second), Observation: single(1)})
	assert.Equal(t, PhaseTimedOut, e.Phase())
	assert.Equal(t, domain.OutcomeTimedOut, e.Result().Outcome)
}
