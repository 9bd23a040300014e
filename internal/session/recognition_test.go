package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func cand(label string, dist float64) *domain.MatchCandidate {
	return &domain.MatchCandidate{Label: label, Distance: dist}
}

// labels turns "A", "B", "" into candidates, "" meaning no match.
func ticksOf(step time.Duration, labels ...string) []Tick {
	ticks := make([]Tick, len(labels))
	for i, l := range labels {
		ticks[i] = Tick{At: t0.Add(time.Duration(i+1) * step)}
		if l != "" {
			ticks[i].Candidate = cand(l, 0.3)
		}
	}
	return ticks
}

func newStartedRecognition(streak int, timeout time.Duration) *Recognition {
	r := NewRecognition(RecognitionConfig{RequiredStreak: streak, Timeout: timeout})
	r.Start(t0)
	return r
}

// stepUntilDone returns the index of the tick that made the session terminal, or -1.
func stepUntilDone(r *Recognition, ticks []Tick) int {
	for i, tk := range ticks {
		if r.Step(tk).Terminal() {
			return i
		}
	}
	return -1
}

func TestRecognition_StreakSequences(t *testing.T) {
	tests := []struct {
		name      string
		streak    int
		labels    []string
		wantIndex int
		wantLabel string
	}{
		{
			name:      "interrupted streak confirms at index 5",
			streak:    3,
			labels:    []string{"A", "A", "B", "A", "A", "A"},
			wantIndex: 5,
			wantLabel: "A",
		},
		{
			name:      "confirms exactly when the streak is reached",
			streak:    5,
			labels:    []string{"A", "A", "A", "A", "A", "A", "A"},
			wantIndex: 4,
			wantLabel: "A",
		},
		{
			name:      "no-match at 4 of 5 starts over",
			streak:    5,
			labels:    []string{"A", "A", "A", "A", "", "A", "A", "A", "A", "A"},
			wantIndex: 9,
			wantLabel: "A",
		},
		{
			name:      "alternating faces never confirm",
			streak:    2,
			labels:    []string{"A", "B", "A", "B", "A", "B"},
			wantIndex: -1,
		},
		{
			name:      "label change counts as a fresh streak of one",
			streak:    2,
			labels:    []string{"A", "B", "B"},
			wantIndex: 2,
			wantLabel: "B",
		},
		{
			name:      "single tick suffices for streak one",
			streak:    1,
			labels:    []string{"", "C"},
			wantIndex: 1,
			wantLabel: "C",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newStartedRecognition(tt.streak, time.Minute)
			idx := stepUntilDone(r, ticksOf(100*time.Millisecond, tt.labels...))

			assert.Equal(t, tt.wantIndex, idx)
			if tt.wantIndex < 0 {
				assert.Equal(t, PhaseSearching, r.Phase())
				return
			}

			res := r.Result()
			assert.Equal(t, domain.OutcomeConfirmed, res.Outcome)
			assert.Equal(t, tt.wantLabel, res.Label)
			assert.Equal(t, tt.wantIndex+1, res.Ticks)
		})
	}
}

func TestRecognition_NoMatchResetsStreakAndLabel(t *testing.T) {
	r := newStartedRecognition(5, time.Minute)

	for _, tk := range ticksOf(time.Second, "A", "A", "A", "A") {
		r.Step(tk)
	}
	assert.Equal(t, 4, r.Streak())
	assert.Equal(t, "A", r.Label())

	r.Step(Tick{At: t0.Add(5 * time.Second)})
	assert.Equal(t, 0, r.Streak())
	assert.Empty(t, r.Label())
}

func TestRecognition_Timeout(t *testing.T) {
	const d = 10 * time.Second
	r := newStartedRecognition(3, d)

	// alternating labels keep the session searching
	for i := 1; i < 10; i++ {
		label := "A"
		if i%2 == 0 {
			label = "B"
		}
		r.Step(Tick{At: t0.Add(time.Duration(i) * time.Second), Candidate: cand(label, 0.2)})
		require.Equal(t, PhaseSearching, r.Phase())
	}

	assert.False(t, r.Preempt(t0.Add(d-time.Nanosecond), false), "never before D")
	assert.Equal(t, PhaseTimedOut, r.Step(Tick{At: t0.Add(d), Candidate: cand("A", 0.2)}), "at D, even with a candidate")

	res := r.Result()
	assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)
	assert.Empty(t, res.Label)
	assert.Nil(t, res.Distance)
	assert.Equal(t, d, res.Elapsed)
	assert.Equal(t, ReasonTimeout, res.Reason)
}

func TestRecognition_CancelTakesPriorityOverMatch(t *testing.T) {
	r := newStartedRecognition(3, time.Minute)
	r.Step(Tick{At: t0.Add(time.Second), Candidate: cand("A", 0.1)})
	r.Step(Tick{At: t0.Add(2 * time.Second), Candidate: cand("A", 0.1)})

	phase := r.Step(Tick{At: t0.Add(3 * time.Second), Cancelled: true, Candidate: cand("A", 0.1)})

	assert.Equal(t, PhaseCancelled, phase)
	assert.Equal(t, domain.OutcomeCancelled, r.Result().Outcome)
	assert.Empty(t, r.Result().Label)
	assert.Equal(t, 2, r.Ticks(), "the cancelled tick is not evaluated")
}

func TestRecognition_TimeoutCheckedBeforeCancel(t *testing.T) {
	r := newStartedRecognition(3, time.Second)
	assert.True(t, r.Preempt(t0.Add(2*time.Second), true))
	assert.Equal(t, PhaseTimedOut, r.Phase())
}

func TestRecognition_TerminalStateAbsorbsTicks(t *testing.T) {
	r := newStartedRecognition(1, time.Minute)
	require.Equal(t, PhaseConfirmed, r.Step(Tick{At: t0.Add(time.Second), Candidate: cand("A", 0.25)}))

	r.Step(Tick{At: t0.Add(2 * time.Second), Candidate: cand("B", 0.1)})
	r.Step(Tick{At: t0.Add(2 * time.Minute), Cancelled: true})
	r.Abort(t0.Add(3*time.Minute), ReasonExhausted)

	res := r.Result()
	assert.Equal(t, domain.OutcomeConfirmed, res.Outcome)
	assert.Equal(t, "A", res.Label)
	require.NotNil(t, res.Distance)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.25, *res.Distance, 1e-9)
	assert.InDelta(t, 0.75, *res.Confidence, 1e-9)
	assert.Equal(t, time.Second, res.Elapsed)
}

func TestRecognition_ReportsLastDistance(t *testing.T) {
	r := newStartedRecognition(3, time.Minute)
	r.Step(Tick{At: t0.Add(1 * time.Second), Candidate: cand("A", 0.4)})
	r.Step(Tick{At: t0.Add(2 * time.Second), Candidate: cand("A", 0.3)})
	r.Step(Tick{At: t0.Add(3 * time.Second), Candidate: cand("A", 0.2)})

	require.NotNil(t, r.Result().Distance)
	assert.InDelta(t, 0.2, *r.Result().Distance, 1e-9)
}

func TestRecognition_StepStartsIdleSession(t *testing.T) {
	r := NewRecognition(RecognitionConfig{RequiredStreak: 2, Timeout: time.Second})
	assert.Equal(t, PhaseIdle, r.Phase())

	r.Step(Tick{At: t0, Candidate: cand("A", 0.1)})
	assert.Equal(t, PhaseSearching, r.Phase())
	assert.Equal(t, time.Second, r.Remaining(t0))
}

func TestRecognition_AbortIsCancelled(t *testing.T) {
	r := newStartedRecognition(3, time.Minute)
	r.Abort(t0.Add(time.Second), ReasonExhausted)

	res := r.Result()
	assert.Equal(t, domain.OutcomeCancelled, res.Outcome)
	assert.Equal(t, ReasonExhausted, res.Reason)
}
