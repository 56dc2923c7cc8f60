package models

import (
	"fmt"
	"time"

	"github.com/rewired-gh/doseoracle/internal/level"
)

// ReminderKind identifies which injection reminder fired.
type ReminderKind string

const (
	ReminderDayBefore ReminderKind = "day_before"
	ReminderDue       ReminderKind = "due"
	ReminderMissed    ReminderKind = "missed"
)

// Reminder is a notice about an upcoming or overdue injection.
type Reminder struct {
	Kind           ReminderKind
	MedicationID   string
	MedicationName string
	DueAt          time.Time
	TroughLevelMg  float64
	LastDoseMg     float64
	CreatedAt      time.Time
}

// Key deduplicates reminders: one per kind, medication and due time.
func (r Reminder) Key() string {
	return fmt.Sprintf("%s:%s:%d", r.Kind, r.MedicationID, r.DueAt.Unix())
}

// LevelReport summarizes the modeled level of one medication.
type LevelReport struct {
	Medication     Medication
	GeneratedAt    time.Time
	CurrentLevelMg float64

	Trough    level.Trough
	HasTrough bool

	LastDose       *Injection
	HalfLivesSince float64 // half-lives elapsed since LastDose
	Injections     []*Injection // newest first, within the lookback window
	InjectionCount int
	NextDueAt      time.Time // last dose plus the planned interval
	DueLevelMg     float64   // modeled level at NextDueAt

	SteadyStateTroughMg float64
	SteadyStatePeakMg   float64

	IntervalMean   time.Duration
	IntervalStdDev time.Duration

	History   []level.Sample
	Projected []level.Sample
}

// PercentOfSteadyState is the current level relative to the steady-state
// peak, 0-100+. It is 0 when no steady state is defined.
func (r *LevelReport) PercentOfSteadyState() float64 {
	if r.SteadyStatePeakMg <= 0 {
		return 0
	}
	return r.CurrentLevelMg / r.SteadyStatePeakMg * 100
}

// NextDoseIn is the time until the projected trough, negative when overdue.
func (r *LevelReport) NextDoseIn() time.Duration {
	if !r.HasTrough {
		return 0
	}
	return r.Trough.Time.Sub(r.GeneratedAt)
}

// DueIn is the time until the planned next injection, negative when overdue.
func (r *LevelReport) DueIn() time.Duration {
	if r.NextDueAt.IsZero() {
		return 0
	}
	return r.NextDueAt.Sub(r.GeneratedAt)
}
