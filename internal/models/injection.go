package models

import (
	"errors"
	"math"
	"time"

	"github.com/rewired-gh/doseoracle/internal/level"
)

// Injection is a logged dose. MedicationID may point at a medication that has
// since been deleted; such injections no longer contribute to levels.
type Injection struct {
	ID           string    `json:"id"`
	MedicationID string    `json:"medication_id"`
	Date         time.Time `json:"date"`
	DosageMg     float64   `json:"dosage_mg"`
	Site         string    `json:"site,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks injection field constraints.
func (i *Injection) Validate() error {
	if i.ID == "" {
		return errors.New("injection ID must not be empty")
	}
	if i.MedicationID == "" {
		return errors.New("medication ID must not be empty")
	}
	if i.Date.IsZero() {
		return errors.New("injection date must be set")
	}
	if i.DosageMg < 0 || math.IsNaN(i.DosageMg) || math.IsInf(i.DosageMg, 0) {
		return errors.New("dosage must be a non-negative number of mg")
	}
	return nil
}

// DosingEvent converts the injection for the level engine. A nil medication
// leaves the half-life unresolved.
func (i *Injection) DosingEvent(med *Medication) level.DosingEvent {
	ev := level.DosingEvent{Time: i.Date, AmountMg: i.DosageMg}
	if med != nil {
		ev.HalfLifeHours = med.HalfLifeHours
	}
	return ev
}
