package level

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-10

var epoch = time.Unix(0, 0).UTC()

func dose(at time.Time, mg, halfLife float64) DosingEvent {
	return DosingEvent{Time: at, AmountMg: mg, HalfLifeHours: halfLife}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func TestLevelAt_NoEvents(t *testing.T) {
	assert.Equal(t, 0.0, CurrentLevel(time.Now(), nil))
	assert.Equal(t, 0.0, LevelAt(epoch, []DosingEvent{}))
}

func TestLevelAt_ImmediatelyAfterDose(t *testing.T) {
	e := dose(epoch, 1.0, 168)
	assert.InDelta(t, 1.0, LevelAt(epoch, []DosingEvent{e}), tol)
}

func TestLevelAt_HalfLifeDecay(t *testing.T) {
	tests := []struct {
		name     string
		amount   float64
		halfLife float64
		elapsed  float64 // in half-lives
		want     float64
	}{
		{"semaglutide one half-life", 10, 168, 1, 5},
		{"tirzepatide two half-lives", 8, 120, 2, 2},
		{"short peptide three half-lives", 4, 4, 3, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := dose(epoch, tt.amount, tt.halfLife)
			at := epoch.Add(hours(tt.halfLife * tt.elapsed))
			assert.InDelta(t, tt.want, LevelAt(at, []DosingEvent{e}), tol)
		})
	}
}

func TestLevelAt_FutureDoseIgnored(t *testing.T) {
	now := time.Now()
	e := dose(now.Add(24*time.Hour), 10, 168)
	assert.Equal(t, 0.0, LevelAt(now, []DosingEvent{e}))
	assert.Equal(t, 0.0, Contribution(dose(now.Add(time.Nanosecond), 10, 168), now))
}

func TestLevelAt_UnresolvedHalfLife(t *testing.T) {
	now := time.Now()
	events := []DosingEvent{
		dose(now, 5, 0),
		dose(now, 5, -12),
		dose(now, 5, math.NaN()),
	}
	assert.Equal(t, 0.0, LevelAt(now, events))

	events = append(events, dose(now, 2, 168))
	assert.InDelta(t, 2.0, LevelAt(now, events), tol)
}

func TestLevelAt_Superposition(t *testing.T) {
	second := epoch.Add(168 * time.Hour)
	events := []DosingEvent{
		dose(epoch, 10, 168),
		dose(second, 10, 168),
	}
	assert.InDelta(t, 15.0, LevelAt(second, events), tol)
}

func TestLevelAt_MixedCompounds(t *testing.T) {
	events := []DosingEvent{
		dose(epoch, 1, 168),
		dose(epoch, 2.5, 120),
	}
	at := epoch.Add(120 * time.Hour)
	want := math.Exp(-math.Ln2*120/168) + 1.25
	assert.InDelta(t, want, LevelAt(at, events), tol)
}

func TestLevelAt_LongRunDecay(t *testing.T) {
	e := dose(epoch, 10, 168)
	at := epoch.Add(168 * 100 * time.Hour)
	got := LevelAt(at, []DosingEvent{e})
	assert.False(t, math.IsNaN(got))
	assert.GreaterOrEqual(t, got, 0.0)
	assert.InDelta(t, 0.0, got, 1e-20)

	// Far enough out the exponential underflows to exactly zero.
	e = dose(epoch, 10, 2)
	assert.Equal(t, 0.0, LevelAt(epoch.Add(20*365*24*time.Hour), []DosingEvent{e}))
}

func TestContribution_NegativeAmount(t *testing.T) {
	assert.Equal(t, 0.0, Contribution(dose(epoch, -3, 168), epoch))
	assert.Equal(t, 0.0, Contribution(dose(epoch, math.Inf(1), 168), epoch))
}

func TestHalfLivesElapsed(t *testing.T) {
	e := dose(epoch, 1, 120)
	assert.InDelta(t, 2.0, HalfLivesElapsed(e, epoch.Add(240*time.Hour)), tol)
	assert.Equal(t, 0.0, HalfLivesElapsed(e, epoch.Add(-time.Hour)))
	assert.Equal(t, 0.0, HalfLivesElapsed(dose(epoch, 1, 0), epoch.Add(time.Hour)))
}

func TestCurve_SampleCount(t *testing.T) {
	e := dose(epoch, 10, 168)
	curve := Curve([]DosingEvent{e}, epoch, epoch.Add(24*time.Hour), 12*time.Hour)

	require.Len(t, curve, 3)
	assert.Equal(t, epoch, curve[0].Time)
	assert.Equal(t, epoch.Add(12*time.Hour), curve[1].Time)
	assert.Equal(t, epoch.Add(24*time.Hour), curve[2].Time)
	assert.InDelta(t, 10.0, curve[0].LevelMg, tol)
	assert.Less(t, curve[1].LevelMg, curve[0].LevelMg)
	assert.Less(t, curve[2].LevelMg, curve[1].LevelMg)
}

func TestCurve_LastSampleDoesNotPassEnd(t *testing.T) {
	end := epoch.Add(25 * time.Hour)
	curve := Curve(nil, epoch, end, 12*time.Hour)
	require.Len(t, curve, 3)
	assert.Equal(t, epoch.Add(24*time.Hour), curve[2].Time)
	for _, s := range curve {
		assert.Equal(t, 0.0, s.LevelMg)
	}
}

func TestCurve_InvalidBounds(t *testing.T) {
	e := dose(epoch, 10, 168)
	events := []DosingEvent{e}

	assert.Empty(t, Curve(events, epoch, epoch.Add(time.Hour), -time.Hour))
	assert.Empty(t, Curve(events, epoch, epoch, time.Hour))
	assert.Empty(t, Curve(events, epoch.Add(time.Hour), epoch, time.Hour))
	assert.Empty(t, Curve(events, epoch, epoch.Add(24*time.Hour), 0))
	assert.Empty(t, CurveAuto(events, epoch, epoch))
	assert.Empty(t, CurveAuto(events, epoch.Add(time.Hour), epoch))
}

func TestCurveAuto(t *testing.T) {
	curve := CurveAuto(nil, epoch, epoch.Add(48*time.Hour))
	assert.Len(t, curve, 49)

	curve = CurveAuto(nil, epoch, epoch.Add(30*24*time.Hour))
	assert.Len(t, curve, 121)

	n := 0
	for range SamplesAuto([]DosingEvent{dose(epoch, 1, 168)}, epoch, epoch.Add(90*24*time.Hour)) {
		n++
	}
	assert.Equal(t, 91, n)
}

func TestSamples_Restartable(t *testing.T) {
	events := []DosingEvent{dose(epoch, 1, 24)}
	seq := Samples(events, epoch, epoch.Add(72*time.Hour), 6*time.Hour)

	var first, second []Sample
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 13)
}

func TestSamples_EarlyStop(t *testing.T) {
	seq := Samples(nil, epoch, epoch.Add(365*24*time.Hour), time.Hour)
	n := 0
	for range seq {
		n++
		if n == 5 {
			break
		}
	}
	assert.Equal(t, 5, n)
}

func TestSamples_InputMutationDoesNotLeak(t *testing.T) {
	events := []DosingEvent{dose(epoch, 4, 24)}
	seq := Samples(events, epoch, epoch.Add(24*time.Hour), 24*time.Hour)
	events[0].AmountMg = 400

	var got []Sample
	for s := range seq {
		got = append(got, s)
	}
	require.Len(t, got, 2)
	assert.InDelta(t, 4.0, got[0].LevelMg, tol)
	assert.InDelta(t, 2.0, got[1].LevelMg, tol)
}

func TestDefaultResolution(t *testing.T) {
	tests := []struct {
		span time.Duration
		want time.Duration
	}{
		{time.Hour, time.Hour},
		{168 * time.Hour, time.Hour},
		{169 * time.Hour, 6 * time.Hour},
		{720 * time.Hour, 6 * time.Hour},
		{744 * time.Hour, 6 * time.Hour},
		{745 * time.Hour, 24 * time.Hour},
		{2000 * time.Hour, 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.span.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultResolution(tt.span))
		})
	}
}

func TestEstimateNextTrough_Empty(t *testing.T) {
	_, ok := EstimateNextTrough(nil)
	assert.False(t, ok)

	_, ok = EstimateNextTrough([]DosingEvent{dose(epoch, 1, 0)})
	assert.False(t, ok)
}

func TestEstimateNextTrough_SingleDose(t *testing.T) {
	e := dose(epoch, 10, 168)
	trough, ok := EstimateNextTrough([]DosingEvent{e})
	require.True(t, ok)
	assert.Equal(t, epoch.Add(168*time.Hour), trough.Time)
	assert.Equal(t, 168*time.Hour, trough.Interval)
	assert.InDelta(t, 5.0, trough.LevelMg, tol)
}

func TestEstimateNextTrough_HugeHalfLife(t *testing.T) {
	e := dose(epoch, 1, 1e7)
	trough, ok := EstimateNextTrough([]DosingEvent{e})
	require.True(t, ok)
	assert.Equal(t, time.Duration(math.MaxInt64), trough.Interval)
	assert.True(t, trough.Time.After(epoch), "trough %v must follow the dose", trough.Time)
	assert.Greater(t, trough.LevelMg, 0.0)
	assert.LessOrEqual(t, trough.LevelMg, 1.0)
}

func TestHoursDuration(t *testing.T) {
	tests := []struct {
		hours float64
		want  time.Duration
	}{
		{0, 0},
		{-5, 0},
		{math.NaN(), 0},
		{1.5, 90 * time.Minute},
		{168, 168 * time.Hour},
		{1e7, time.Duration(math.MaxInt64)},
		{math.Inf(1), time.Duration(math.MaxInt64)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HoursDuration(tt.hours), "HoursDuration(%v)", tt.hours)
	}
}

func TestEstimateNextTrough_InfersInterval(t *testing.T) {
	// Unsorted input; the two latest doses are 5 days apart.
	events := []DosingEvent{
		dose(epoch.Add(10*24*time.Hour), 2, 120),
		dose(epoch, 2, 120),
		dose(epoch.Add(5*24*time.Hour), 2, 120),
	}
	trough, ok := EstimateNextTrough(events)
	require.True(t, ok)
	assert.Equal(t, 5*24*time.Hour, trough.Interval)
	assert.Equal(t, epoch.Add(15*24*time.Hour), trough.Time)
	// Three doses at 120h spacing with a 120h half-life: 1 + 0.5 + 0.25.
	assert.InDelta(t, 1.75, trough.LevelMg, tol)
}

func TestEstimateNextTrough_SkipsUnresolvedForInterval(t *testing.T) {
	events := []DosingEvent{
		dose(epoch, 4, 168),
		dose(epoch.Add(24*time.Hour), 4, 0),
	}
	trough, ok := EstimateNextTrough(events)
	require.True(t, ok)
	assert.Equal(t, epoch.Add(168*time.Hour), trough.Time)
	assert.InDelta(t, 2.0, trough.LevelMg, tol)
}

func TestEstimateSteadyStateTrough(t *testing.T) {
	assert.InDelta(t, 1.0, EstimateSteadyStateTrough(1, 7, 168), tol)

	// Doubling the interval relative to half-life: d = 0.25, 0.25/0.75.
	assert.InDelta(t, 1.0/3.0, EstimateSteadyStateTrough(1, 14, 168), tol)
}

func TestEstimateSteadyStateTrough_Degenerate(t *testing.T) {
	tests := []struct {
		name                    string
		dose, interval, halfLife float64
	}{
		{"zero half-life", 1, 7, 0},
		{"negative half-life", 1, 7, -168},
		{"zero interval", 1, 0, 168},
		{"negative interval", 1, -7, 168},
		{"NaN half-life", 1, 7, math.NaN()},
		{"zero dose", 0, 7, 168},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.0, EstimateSteadyStateTrough(tt.dose, tt.interval, tt.halfLife))
			assert.Equal(t, 0.0, EstimateSteadyStatePeak(tt.dose, tt.interval, tt.halfLife))
		})
	}
}

func TestEstimateSteadyState_TinyHalfLife(t *testing.T) {
	got := EstimateSteadyStateTrough(1, 7, 1e-300)
	assert.False(t, math.IsNaN(got))
	assert.Equal(t, 0.0, got)
}

func TestEstimateSteadyStatePeak(t *testing.T) {
	peak := EstimateSteadyStatePeak(1, 7, 168)
	assert.InDelta(t, 2.0, peak, tol)
	assert.InDelta(t, peak-1, EstimateSteadyStateTrough(1, 7, 168), tol)
}

func TestSteadyState_MatchesSimulation(t *testing.T) {
	var events []DosingEvent
	for i := 0; i < 60; i++ {
		events = append(events, dose(epoch.Add(time.Duration(i)*7*24*time.Hour), 1, 120))
	}
	troughTime := epoch.Add(60 * 7 * 24 * time.Hour)
	assert.InDelta(t, EstimateSteadyStateTrough(1, 7, 120), LevelAt(troughTime, events), 1e-9)
}
