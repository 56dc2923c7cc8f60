package reconstitution

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-10

func TestCalculateMcg(t *testing.T) {
	res, ok := CalculateMcg(5, 2, 250)
	require.True(t, ok)
	assert.True(t, res.Valid)
	assert.InDelta(t, 2.5, res.ConcentrationMgPerMl, tol)
	assert.InDelta(t, 0.1, res.DrawVolumeMl, tol)
	assert.InDelta(t, 10.0, res.SyringeUnits, tol)
}

func TestCalculate_MgDose(t *testing.T) {
	res, ok := Calculate(10, 2, 2.5)
	require.True(t, ok)
	assert.InDelta(t, 5.0, res.ConcentrationMgPerMl, tol)
	assert.InDelta(t, 0.5, res.DrawVolumeMl, tol)
	assert.InDelta(t, 50.0, res.SyringeUnits, tol)
}

func TestCalculate_InvalidInputs(t *testing.T) {
	tests := []struct {
		name                string
		peptide, water, dose float64
	}{
		{"zero peptide", 0, 2, 1},
		{"zero water", 5, 0, 1},
		{"zero dose", 5, 2, 0},
		{"negative peptide", -5, 2, 1},
		{"negative water", 5, -2, 1},
		{"negative dose", 5, 2, -1},
		{"NaN dose", 5, 2, math.NaN()},
		{"infinite water", 5, math.Inf(1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := Calculate(tt.peptide, tt.water, tt.dose)
			assert.False(t, ok)
			assert.False(t, res.Valid)
			assert.Equal(t, Result{}, res)
		})
	}
}

func TestCalculateDose_Units(t *testing.T) {
	mcg, ok := CalculateDose(5, 2, Dose{Amount: 250, Unit: Micrograms})
	require.True(t, ok)
	mg, ok := CalculateDose(5, 2, Dose{Amount: 0.25, Unit: Milligrams})
	require.True(t, ok)
	assert.Equal(t, mg, mcg)

	_, ok = CalculateDose(5, 2, Dose{Amount: 1, Unit: "gr"})
	assert.False(t, ok)
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"mg", Milligrams, false},
		{"MG", Milligrams, false},
		{"", Milligrams, false},
		{"mcg", Micrograms, false},
		{"µg", Micrograms, false},
		{"ug", Micrograms, false},
		{"ml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnit(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDosesPerVial(t *testing.T) {
	assert.Equal(t, 20, DosesPerVial(5, 0.25))
	assert.Equal(t, 4, DosesPerVial(10, 2.5))
	assert.Equal(t, 3, DosesPerVial(10, 3))
	assert.Equal(t, 0, DosesPerVial(0, 1))
	assert.Equal(t, 0, DosesPerVial(5, 0))
}

func TestPresets(t *testing.T) {
	all := Presets()
	require.Len(t, all, 8)

	names := make(map[string]bool)
	for _, p := range all {
		names[p.Name] = true
		assert.Greater(t, p.HalfLifeHours, 0.0, p.Name)
		_, ok := p.Calculate()
		assert.True(t, ok, p.Name)
	}
	for _, want := range []string{"BPC-157", "Semaglutide", "Tirzepatide"} {
		assert.True(t, names[want], want)
	}

	all[0].Name = "mutated"
	_, ok := LookupPreset("BPC-157")
	assert.True(t, ok, "Presets must return a copy")
}

func TestPreset_Calculate(t *testing.T) {
	bpc, ok := LookupPreset("bpc-157")
	require.True(t, ok)
	assert.InDelta(t, 0.25, bpc.DoseMg(), tol)

	res, ok := bpc.Calculate()
	require.True(t, ok)
	assert.InDelta(t, 2.5, res.ConcentrationMgPerMl, tol)
	assert.InDelta(t, 0.1, res.DrawVolumeMl, tol)
	assert.InDelta(t, 10.0, res.SyringeUnits, tol)

	_, ok = LookupPreset("unknown")
	assert.False(t, ok)
}
