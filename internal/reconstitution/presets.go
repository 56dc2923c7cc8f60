package reconstitution

import (
	"slices"
	"strings"
)

// Preset holds typical vial and dosing values for a known peptide.
// They only pre-fill calculator inputs.
type Preset struct {
	Name          string
	VialMg        float64
	DiluentMl     float64
	DoseMcg       float64
	HalfLifeHours float64
}

var presets = []Preset{
	{Name: "BPC-157", VialMg: 5, DiluentMl: 2, DoseMcg: 250, HalfLifeHours: 4},
	{Name: "Semaglutide", VialMg: 5, DiluentMl: 2.5, DoseMcg: 250, HalfLifeHours: 168},
	{Name: "Tirzepatide", VialMg: 10, DiluentMl: 2, DoseMcg: 2500, HalfLifeHours: 120},
	{Name: "TB-500", VialMg: 5, DiluentMl: 2, DoseMcg: 2500, HalfLifeHours: 8},
	{Name: "PT-141", VialMg: 10, DiluentMl: 2, DoseMcg: 1750, HalfLifeHours: 2},
	{Name: "Ipamorelin", VialMg: 5, DiluentMl: 2.5, DoseMcg: 200, HalfLifeHours: 2},
	{Name: "CJC-1295", VialMg: 2, DiluentMl: 2, DoseMcg: 100, HalfLifeHours: 144},
	{Name: "GHK-Cu", VialMg: 50, DiluentMl: 5, DoseMcg: 200, HalfLifeHours: 12},
}

// Presets returns a copy of the built-in preset table.
func Presets() []Preset {
	return slices.Clone(presets)
}

// LookupPreset finds a preset by name, ignoring case.
func LookupPreset(name string) (Preset, bool) {
	for _, p := range presets {
		if strings.EqualFold(p.Name, strings.TrimSpace(name)) {
			return p, true
		}
	}
	return Preset{}, false
}

// DoseMg is the typical dose in milligrams.
func (p Preset) DoseMg() float64 {
	return p.DoseMcg / McgPerMg
}

// Calculate runs the calculator with the preset's defaults.
func (p Preset) Calculate() (Result, bool) {
	return CalculateMcg(p.VialMg, p.DiluentMl, p.DoseMcg)
}
