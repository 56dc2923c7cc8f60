// Package models defines the core domain entities: medications, injections,
// reminders and level reports.
package models

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/rewired-gh/doseoracle/internal/level"
)

// MedicationType classifies a medication.
type MedicationType string

const (
	Semaglutide MedicationType = "semaglutide"
	Tirzepatide MedicationType = "tirzepatide"
	Custom      MedicationType = "custom"
)

// DefaultIntervalDays is the planned cadence for weekly GLP-1 injections.
const DefaultIntervalDays = 7

// Upper bounds for medication parameters.
const (
	MaxHalfLifeHours = 24 * 365 * 10
	MaxIntervalDays  = 365
)

// Medication is a compound the user injects. HalfLifeHours drives the level
// model for every injection that references it.
type Medication struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	BrandName      string         `json:"brand_name,omitempty"`
	Type           MedicationType `json:"type"`
	HalfLifeHours  float64        `json:"half_life_hours"`
	DefaultDosages []float64      `json:"default_dosages,omitempty"`
	IsCompound     bool           `json:"is_compound"`
	IntervalDays   float64        `json:"interval_days"`
}

// Validate checks medication field constraints.
func (m *Medication) Validate() error {
	if m.ID == "" {
		return errors.New("medication ID must not be empty")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("medication name must not be empty")
	}
	switch m.Type {
	case Semaglutide, Tirzepatide, Custom:
	default:
		return errors.New("medication type must be semaglutide, tirzepatide or custom")
	}
	if !(m.HalfLifeHours > 0) || math.IsInf(m.HalfLifeHours, 0) {
		return errors.New("half-life must be a positive number of hours")
	}
	if m.HalfLifeHours > MaxHalfLifeHours {
		return errors.New("half-life must not exceed ten years")
	}
	if !(m.IntervalDays > 0) {
		return errors.New("dosing interval must be positive")
	}
	if m.IntervalDays > MaxIntervalDays {
		return errors.New("dosing interval must not exceed a year")
	}
	for _, d := range m.DefaultDosages {
		if !(d > 0) {
			return errors.New("default dosages must be positive")
		}
	}
	return nil
}

// Interval is the planned time between injections.
func (m *Medication) Interval() time.Duration {
	return level.HoursDuration(m.IntervalDays * 24)
}

// DisplayName returns "Name (Brand)" when a brand is set.
func (m *Medication) DisplayName() string {
	if m.BrandName == "" {
		return m.Name
	}
	return m.Name + " (" + m.BrandName + ")"
}

// SemaglutideDefault returns the seeded semaglutide entry without an ID.
func SemaglutideDefault() Medication {
	return Medication{
		Name:           "Semaglutide",
		BrandName:      "Ozempic",
		Type:           Semaglutide,
		HalfLifeHours:  168,
		DefaultDosages: []float64{0.25, 0.5, 1.0, 1.7, 2.4},
		IntervalDays:   DefaultIntervalDays,
	}
}

// TirzepatideDefault returns the seeded tirzepatide entry without an ID.
func TirzepatideDefault() Medication {
	return Medication{
		Name:           "Tirzepatide",
		BrandName:      "Mounjaro",
		Type:           Tirzepatide,
		HalfLifeHours:  120,
		DefaultDosages: []float64{2.5, 5.0, 7.5, 10.0, 12.5, 15.0},
		IntervalDays:   DefaultIntervalDays,
	}
}
