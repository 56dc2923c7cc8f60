package level

import (
	"math"
	"slices"
	"time"
)

// Trough is a projected level just before the next expected dose.
type Trough struct {
	Time     time.Time
	LevelMg  float64
	Interval time.Duration // inferred dosing interval
}

// EstimateNextTrough projects the level at the next expected dose.
//
// The interval is the gap between the two most recent resolvable doses. With a
// single dose it falls back to that dose's half-life, which is a rough
// heuristic rather than a clinical cadence. The level is computed over the full
// input so older doses still contribute their residual. ok is false when no
// event has a resolvable half-life.
func EstimateNextTrough(events []DosingEvent) (Trough, bool) {
	resolved := make([]DosingEvent, 0, len(events))
	for _, e := range events {
		if e.Resolvable() {
			resolved = append(resolved, e)
		}
	}
	if len(resolved) == 0 {
		return Trough{}, false
	}
	slices.SortStableFunc(resolved, func(a, b DosingEvent) int {
		return a.Time.Compare(b.Time)
	})

	last := resolved[len(resolved)-1]
	var interval time.Duration
	if len(resolved) >= 2 {
		interval = last.Time.Sub(resolved[len(resolved)-2].Time)
	} else {
		interval = HoursDuration(last.HalfLifeHours)
	}

	at := last.Time.Add(interval)
	return Trough{
		Time:     at,
		LevelMg:  LevelAt(at, events),
		Interval: interval,
	}, true
}

// decayPerInterval returns exp(-ke*tau) and whether the regimen is usable.
func decayPerInterval(doseMg, intervalDays, halfLifeHours float64) (float64, bool) {
	if !(halfLifeHours > 0) || !(intervalDays > 0) || !(doseMg > 0) {
		return 0, false
	}
	d := math.Exp(-ElimRate(halfLifeHours) * intervalDays * hoursPerDay)
	if !(d < 1) {
		return 0, false
	}
	return d, true
}

// EstimateSteadyStateTrough is the trough reached after infinitely many doses
// of doseMg every intervalDays: dose·d / (1 − d) with d = exp(−ke·τ).
// Degenerate regimens return 0.
func EstimateSteadyStateTrough(doseMg, intervalDays, halfLifeHours float64) float64 {
	d, ok := decayPerInterval(doseMg, intervalDays, halfLifeHours)
	if !ok {
		return 0
	}
	return finiteOrZero(doseMg * d / (1 - d))
}

// EstimateSteadyStatePeak is the level right after a dose at steady state:
// dose / (1 − d). Degenerate regimens return 0.
func EstimateSteadyStatePeak(doseMg, intervalDays, halfLifeHours float64) float64 {
	d, ok := decayPerInterval(doseMg, intervalDays, halfLifeHours)
	if !ok {
		return 0
	}
	return finiteOrZero(doseMg / (1 - d))
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
