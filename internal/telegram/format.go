package telegram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rewired-gh/doseoracle/internal/models"
	"github.com/rewired-gh/doseoracle/internal/reconstitution"
)

const timeLayout = "2006-01-02 15:04"

const helpText = `*doseoracle*
/level \[name\] current modeled level
/trough \[name\] next projected trough
/chart \[name\] level chart
/calc vial\_mg water\_ml dose\[mcg\|mg\] reconstitution
/calc preset\_name preset reconstitution
/presets peptide presets`

func formatReports(reports []*models.LevelReport) string {
	var b strings.Builder
	b.WriteString("💉 *Medication levels*\n\n")
	for i, r := range reports {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(formatReport(r))
	}
	return b.String()
}

// formatReport formats one report into MarkdownV2 lines.
func formatReport(r *models.LevelReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdownV2(r.Medication.DisplayName()))

	levelLine := fmt.Sprintf("Level: %s", mg(r.CurrentLevelMg))
	if pct := r.PercentOfSteadyState(); pct > 0 {
		levelLine += fmt.Sprintf(" (%.0f%% of steady-state peak)", pct)
	}
	b.WriteString(escapeMarkdownV2(levelLine) + "\n")

	if r.LastDose != nil {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("Last dose: %s on %s, %.1f half-lives ago",
			mg(r.LastDose.DosageMg), r.LastDose.Date.Format(timeLayout), r.HalfLivesSince)) + "\n")
	}
	if !r.NextDueAt.IsZero() {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("Next dose: %s (%s)",
			r.NextDueAt.Format(timeLayout), relative(r.DueIn()))) + "\n")
	}
	if r.HasTrough {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("Projected trough: %s at %s",
			mg(r.Trough.LevelMg), r.Trough.Time.Format(timeLayout))) + "\n")
	}
	if r.SteadyStatePeakMg > 0 {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("Steady state: %s to %s",
			mg(r.SteadyStateTroughMg), mg(r.SteadyStatePeakMg))) + "\n")
	}
	if r.InjectionCount > 1 {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("Interval: %s ± %s over %d injections",
			days(r.IntervalMean), days(r.IntervalStdDev), r.InjectionCount)) + "\n")
	}
	return b.String()
}

func formatTroughs(reports []*models.LevelReport) string {
	var b strings.Builder
	b.WriteString("📉 *Next troughs*\n\n")
	for _, r := range reports {
		name := escapeMarkdownV2(r.Medication.DisplayName())
		if !r.HasTrough {
			fmt.Fprintf(&b, "*%s*: %s\n", name, escapeMarkdownV2("no estimate"))
			continue
		}
		fmt.Fprintf(&b, "*%s*: %s\n", name, escapeMarkdownV2(fmt.Sprintf("%s at %s (%s)",
			mg(r.Trough.LevelMg), r.Trough.Time.Format(timeLayout), relative(r.NextDoseIn()))))
	}
	return b.String()
}

func formatReminder(r models.Reminder) string {
	var header, body string
	due := r.DueAt.Format(timeLayout)
	switch r.Kind {
	case models.ReminderDayBefore:
		header = "⏰ *Injection tomorrow*"
		body = fmt.Sprintf("%s is due at %s.", r.MedicationName, due)
	case models.ReminderDue:
		header = "💉 *Injection due*"
		body = fmt.Sprintf("%s was due at %s.", r.MedicationName, due)
	case models.ReminderMissed:
		header = "❗ *Injection missed*"
		body = fmt.Sprintf("No %s injection logged since it was due at %s.", r.MedicationName, due)
	default:
		header = "🔔 *Reminder*"
		body = fmt.Sprintf("%s at %s.", r.MedicationName, due)
	}
	details := fmt.Sprintf("Last dose %s, modeled level at due time %s.", mg(r.LastDoseMg), mg(r.TroughLevelMg))
	return header + "\n" + escapeMarkdownV2(body) + "\n" + escapeMarkdownV2(details)
}

func formatChartCaption(r *models.LevelReport) string {
	return fmt.Sprintf("*%s* %s", escapeMarkdownV2(r.Medication.DisplayName()),
		escapeMarkdownV2(fmt.Sprintf("now %s", mg(r.CurrentLevelMg))))
}

func formatPresets() string {
	var b strings.Builder
	b.WriteString("🧪 *Peptide presets*\n")
	for _, p := range reconstitution.Presets() {
		fmt.Fprintf(&b, "*%s*: %s\n", escapeMarkdownV2(p.Name), escapeMarkdownV2(fmt.Sprintf(
			"%g mg vial, %g mL water, %g mcg dose, t½ %gh", p.VialMg, p.DiluentMl, p.DoseMcg, p.HalfLifeHours)))
	}
	return b.String()
}

// calcReply answers /calc with either a preset name or
// "vial_mg water_ml dose[unit]" arguments.
func calcReply(args string) string {
	vialMg, waterMl, dose, err := parseCalcArgs(args)
	if err != nil {
		return "⚠️ " + escapeMarkdownV2(err.Error()) + "\n" +
			escapeMarkdownV2("Usage: /calc 5 2 250mcg or /calc BPC-157")
	}
	res, ok := reconstitution.CalculateDose(vialMg, waterMl, dose)
	if !ok {
		return "⚠️ " + escapeMarkdownV2("All values must be positive numbers.")
	}
	return formatCalc(vialMg, waterMl, dose, res)
}

func formatCalc(vialMg, waterMl float64, dose reconstitution.Dose, res reconstitution.Result) string {
	var b strings.Builder
	b.WriteString("🧪 *Reconstitution*\n")
	b.WriteString(escapeMarkdownV2(fmt.Sprintf("%g mg in %g mL → %.3f mg/mL",
		vialMg, waterMl, res.ConcentrationMgPerMl)) + "\n")
	b.WriteString(escapeMarkdownV2(fmt.Sprintf("Dose %g %s: draw %.3f mL", dose.Amount, dose.Unit, res.DrawVolumeMl)) + "\n")
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdownV2(fmt.Sprintf("%.1f units on a U-100 syringe", res.SyringeUnits)))
	if n := reconstitution.DosesPerVial(vialMg, dose.Mg()); n > 0 {
		b.WriteString(escapeMarkdownV2(fmt.Sprintf("%d doses per vial", n)) + "\n")
	}
	return b.String()
}

// parseCalcArgs accepts "BPC-157", "5 2 250mcg", "5 2 250 mcg", "5 2 0.25" or
// "5 2 2.5e-1".
// A bare dose is in mg.
func parseCalcArgs(args string) (vialMg, waterMl float64, dose reconstitution.Dose, err error) {
	fields := strings.Fields(args)
	if len(fields) == 1 {
		p, ok := reconstitution.LookupPreset(fields[0])
		if !ok {
			return 0, 0, dose, fmt.Errorf("unknown preset %q", fields[0])
		}
		return p.VialMg, p.DiluentMl, reconstitution.Dose{Amount: p.DoseMcg, Unit: reconstitution.Micrograms}, nil
	}
	if len(fields) < 3 || len(fields) > 4 {
		return 0, 0, dose, fmt.Errorf("expected 3 values, got %d", len(fields))
	}
	if vialMg, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return 0, 0, dose, fmt.Errorf("invalid vial amount %q", fields[0])
	}
	if waterMl, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return 0, 0, dose, fmt.Errorf("invalid water volume %q", fields[1])
	}

	amount, unit := splitUnit(fields[2])
	if len(fields) == 4 {
		unit = fields[3]
	}
	if dose.Amount, err = strconv.ParseFloat(amount, 64); err != nil || !(dose.Amount > 0) {
		return 0, 0, dose, fmt.Errorf("invalid dose %q", fields[2])
	}
	if dose.Unit, err = reconstitution.ParseUnit(unit); err != nil {
		return 0, 0, dose, err
	}
	return vialMg, waterMl, dose, nil
}

// splitUnit splits "250mcg" into "250" and "mcg". The unit is the trailing
// run of letters, so exponents such as "1e-3mg" stay with the number.
func splitUnit(s string) (string, string) {
	i := strings.LastIndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	return s[:i+1], s[i+1:]
}

func mg(v float64) string {
	if v != 0 && math.Abs(v) < 0.01 {
		return fmt.Sprintf("%.4f mg", v)
	}
	return fmt.Sprintf("%.3f mg", v)
}

func days(d time.Duration) string {
	return fmt.Sprintf("%.1fd", d.Hours()/24)
}

// relative renders a duration as "in 2d 4h" or "overdue by 5h 10m".
func relative(d time.Duration) string {
	if d < 0 {
		return "overdue by " + compact(-d)
	}
	return "in " + compact(d)
}

func compact(d time.Duration) string {
	d = d.Round(time.Minute)
	day := d / (24 * time.Hour)
	d -= day * 24 * time.Hour
	hour := d / time.Hour
	d -= hour * time.Hour
	minute := d / time.Minute
	switch {
	case day > 0:
		return fmt.Sprintf("%dd %dh", day, hour)
	case hour > 0:
		return fmt.Sprintf("%dh %dm", hour, minute)
	default:
		return fmt.Sprintf("%dm", minute)
	}
}
