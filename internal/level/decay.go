// Package level estimates medication levels from an injection history.
//
// The model is one-compartment with instantaneous absorption and first-order
// elimination, volume of distribution normalized to 1. Levels are therefore
// dose-equivalent milligrams, not true plasma concentrations. Every function
// is pure: it reads only its arguments and is safe for concurrent use.
package level

import (
	"math"
	"time"
)

const hoursPerDay = 24.0

// DosingEvent is a single administered dose. A non-positive or NaN
// HalfLifeHours marks the event as unresolved (for example an injection whose
// medication record no longer exists); such events contribute nothing.
type DosingEvent struct {
	Time          time.Time
	AmountMg      float64
	HalfLifeHours float64
}

// Resolvable reports whether the event carries a usable half-life.
func (e DosingEvent) Resolvable() bool {
	return e.HalfLifeHours > 0
}

// ElimRate returns the first-order elimination constant ke = ln2 / t½ in 1/h,
// or 0 for a non-positive half-life.
func ElimRate(halfLifeHours float64) float64 {
	if !(halfLifeHours > 0) {
		return 0
	}
	return math.Ln2 / halfLifeHours
}

// Contribution is the remaining amount of a single dose at t.
// Doses administered after t, unresolved events and non-positive amounts
// contribute exactly 0.
func Contribution(e DosingEvent, t time.Time) float64 {
	if !e.Resolvable() || !(e.AmountMg > 0) || math.IsInf(e.AmountMg, 0) {
		return 0
	}
	if t.Before(e.Time) {
		return 0
	}
	hours := t.Sub(e.Time).Hours()
	c := e.AmountMg * math.Exp(-ElimRate(e.HalfLifeHours)*hours)
	if !(c > 0) || math.IsInf(c, 0) {
		return 0
	}
	return c
}

// HalfLivesElapsed returns how many half-lives have passed between the dose and t.
// It is 0 for unresolved events and for t before the dose.
func HalfLivesElapsed(e DosingEvent, t time.Time) float64 {
	if !e.Resolvable() || t.Before(e.Time) {
		return 0
	}
	return t.Sub(e.Time).Hours() / e.HalfLifeHours
}

// LevelAt sums the decayed contribution of every event at t.
func LevelAt(t time.Time, events []DosingEvent) float64 {
	var total float64
	for _, e := range events {
		total += Contribution(e, t)
	}
	return total
}

// CurrentLevel is LevelAt(now, events). The caller owns the clock.
func CurrentLevel(now time.Time, events []DosingEvent) float64 {
	return LevelAt(now, events)
}

// HoursDuration converts hours to a Duration, saturating at the largest
// Duration instead of overflowing. Non-positive and NaN inputs give 0.
func HoursDuration(h float64) time.Duration {
	if !(h > 0) {
		return 0
	}
	ns := h * float64(time.Hour)
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}
