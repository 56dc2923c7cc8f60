// Package reconstitution computes draw volumes for lyophilized peptides
// dissolved in bacteriostatic water.
package reconstitution

import (
	"fmt"
	"math"
	"strings"
)

// UnitsPerMl is the insulin-syringe graduation: 100 units = 1 mL.
const UnitsPerMl = 100.0

// McgPerMg converts a microgram dose to milligrams.
const McgPerMg = 1000.0

// Unit is a dose unit accepted by CalculateDose.
type Unit string

const (
	Milligrams Unit = "mg"
	Micrograms Unit = "mcg"
)

// ParseUnit accepts "mg", "mcg" and the "µg"/"ug" spellings.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mg", "":
		return Milligrams, nil
	case "mcg", "ug", "µg":
		return Micrograms, nil
	default:
		return "", fmt.Errorf("unknown dose unit %q", s)
	}
}

// Dose is an amount with an explicit unit.
type Dose struct {
	Amount float64
	Unit   Unit
}

// Mg returns the dose in milligrams. Unknown units yield NaN so the
// calculator rejects them.
func (d Dose) Mg() float64 {
	switch d.Unit {
	case Milligrams, "":
		return d.Amount
	case Micrograms:
		return d.Amount / McgPerMg
	default:
		return math.NaN()
	}
}

// Result is the outcome of a reconstitution. Valid is false when the inputs
// could not produce a meaningful answer; all other fields are then zero.
type Result struct {
	ConcentrationMgPerMl float64
	DrawVolumeMl         float64
	SyringeUnits         float64
	Valid                bool
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Calculate returns the concentration, draw volume and syringe reading for a
// vial holding peptideMg reconstituted with diluentMl, to deliver doseMg.
// ok is false when any input is not strictly positive.
func Calculate(peptideMg, diluentMl, doseMg float64) (Result, bool) {
	if !positive(peptideMg) || !positive(diluentMl) || !positive(doseMg) {
		return Result{}, false
	}
	concentration := peptideMg / diluentMl
	volume := doseMg / concentration
	return Result{
		ConcentrationMgPerMl: concentration,
		DrawVolumeMl:         volume,
		SyringeUnits:         volume * UnitsPerMl,
		Valid:                true,
	}, true
}

// CalculateMcg is Calculate with the dose given in micrograms.
func CalculateMcg(peptideMg, diluentMl, doseMcg float64) (Result, bool) {
	return Calculate(peptideMg, diluentMl, doseMcg/McgPerMg)
}

// CalculateDose is Calculate with an explicit dose unit.
func CalculateDose(peptideMg, diluentMl float64, dose Dose) (Result, bool) {
	return Calculate(peptideMg, diluentMl, dose.Mg())
}

// DosesPerVial is the number of whole doses of doseMg a vial of peptideMg holds.
func DosesPerVial(peptideMg, doseMg float64) int {
	if !positive(peptideMg) || !positive(doseMg) {
		return 0
	}
	// Nudge by a relative epsilon so 5 / 0.25 is not floored to 19.
	n := math.Floor(peptideMg/doseMg + 1e-9)
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(n)
}
