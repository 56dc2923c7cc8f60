package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rewired-gh/doseoracle/internal/chart"
	"github.com/rewired-gh/doseoracle/internal/config"
	"github.com/rewired-gh/doseoracle/internal/models"
	"github.com/rewired-gh/doseoracle/internal/monitor"
	"github.com/rewired-gh/doseoracle/internal/reconstitution"
	"github.com/rewired-gh/doseoracle/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valueStyle = lipgloss.NewStyle().Bold(true)
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func row(label, value string) string {
	return labelStyle.Render(fmt.Sprintf("%-20s", label)) + " " + valueStyle.Render(value) + "\n"
}

const whenLayout = "2006-01-02 15:04"

// parseWhen accepts RFC3339, "2006-01-02 15:04" or "2006-01-02" in local
// time. An empty string means now.
func parseWhen(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{whenLayout, "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC3339 or %q)", s, whenLayout)
}

// runLog records one injection.
func runLog(store *storage.Storage, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	med := fs.String("med", "", "Medication name or ID (required)")
	dose := fs.Float64("dose", 0, "Dose amount (required)")
	unit := fs.String("unit", "mg", "Dose unit: mg or mcg")
	at := fs.String("at", "", "Injection time (default now)")
	site := fs.String("site", "", "Injection site")
	notes := fs.String("notes", "", "Free-form notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *med == "" {
		return errors.New("-med is required")
	}

	medication, err := store.FindMedication(*med)
	if err != nil {
		return err
	}
	u, err := reconstitution.ParseUnit(*unit)
	if err != nil {
		return err
	}
	doseMg := reconstitution.Dose{Amount: *dose, Unit: u}.Mg()
	if !(doseMg > 0) {
		return errors.New("-dose must be positive")
	}
	when, err := parseWhen(*at, time.Now())
	if err != nil {
		return err
	}

	prev, err := store.GetLastInjection(medication.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}

	inj := &models.Injection{
		MedicationID: medication.ID,
		Date:         when,
		DosageMg:     doseMg,
		Site:         *site,
		Notes:        *notes,
	}
	if err := store.AddInjection(inj); err != nil {
		return err
	}

	fmt.Fprint(out, titleStyle.Render("Injection logged")+"\n")
	fmt.Fprint(out, row("Medication", medication.DisplayName()))
	fmt.Fprint(out, row("Dose", fmt.Sprintf("%.3f mg", doseMg)))
	fmt.Fprint(out, row("Time", when.Format(whenLayout)))
	if prev != nil {
		gap := when.Sub(prev.Date).Hours() / 24
		fmt.Fprint(out, row("Previous dose", fmt.Sprintf("%.3f mg, %.1f days earlier", prev.DosageMg, gap)))
	}
	fmt.Fprint(out, row("ID", inj.ID))
	return nil
}

// runLevel prints level reports and optionally writes a chart.
func runLevel(store *storage.Storage, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("level", flag.ContinueOnError)
	med := fs.String("med", "", "Only this medication (name or ID)")
	at := fs.String("at", "", "Evaluate at this time instead of now")
	chartPath := fs.String("chart", "", "Write a PNG chart to this path")
	days := fs.Int("days", cfg.Monitor.ProjectionDays, "Projection length in days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	when, err := parseWhen(*at, time.Now())
	if err != nil {
		return err
	}
	mcfg := monitorConfig(cfg)
	mcfg.ProjectionDays = *days
	mon := monitor.New(store, mcfg, func() time.Time { return when })

	var reports []*models.LevelReport
	if *med != "" {
		medication, err := store.FindMedication(*med)
		if err != nil {
			return err
		}
		r, err := mon.BuildReport(medication)
		if err != nil {
			return err
		}
		reports = append(reports, r)
	} else if reports, err = mon.BuildReports(); err != nil {
		return err
	}

	if len(reports) == 0 {
		fmt.Fprintln(out, noteStyle.Render("No injections logged yet."))
		return nil
	}
	for _, r := range reports {
		printReport(out, r)
	}

	if *chartPath != "" {
		if len(reports) > 1 {
			return errors.New("-chart needs a single medication, use -med")
		}
		png, err := chart.Render(reports[0], cfg.Chart.Width, cfg.Chart.Height)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*chartPath, png, 0o644); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
		fmt.Fprintln(out, noteStyle.Render("Chart written to "+*chartPath))
	}
	return nil
}

func printReport(out io.Writer, r *models.LevelReport) {
	fmt.Fprint(out, titleStyle.Render(r.Medication.DisplayName())+"\n")
	fmt.Fprint(out, row("Current level", fmt.Sprintf("%.3f mg", r.CurrentLevelMg)))
	if pct := r.PercentOfSteadyState(); pct > 0 {
		fmt.Fprint(out, row("Of steady state", fmt.Sprintf("%.0f%%", pct)))
	}
	if r.LastDose != nil {
		fmt.Fprint(out, row("Last dose", fmt.Sprintf("%.3f mg on %s", r.LastDose.DosageMg, r.LastDose.Date.Format(whenLayout))))
		fmt.Fprint(out, row("Half-lives since", fmt.Sprintf("%.2f", r.HalfLivesSince)))
	}
	if !r.NextDueAt.IsZero() {
		due := r.NextDueAt.Format(whenLayout)
		if r.DueIn() < 0 {
			due += " " + noteStyle.Render("(overdue)")
		}
		fmt.Fprint(out, row("Next dose", due))
		fmt.Fprint(out, row("Level at next dose", fmt.Sprintf("%.3f mg", r.DueLevelMg)))
	}
	if r.HasTrough {
		fmt.Fprint(out, row("Projected trough", fmt.Sprintf("%.3f mg at %s", r.Trough.LevelMg, r.Trough.Time.Format(whenLayout))))
	}
	if r.SteadyStatePeakMg > 0 {
		fmt.Fprint(out, row("Steady state", fmt.Sprintf("%.3f to %.3f mg", r.SteadyStateTroughMg, r.SteadyStatePeakMg)))
	}
	if r.InjectionCount > 1 {
		fmt.Fprint(out, row("Dosing interval", fmt.Sprintf("%.1f ± %.1f days (%d injections)",
			r.IntervalMean.Hours()/24, r.IntervalStdDev.Hours()/24, r.InjectionCount)))
	}
	fmt.Fprintln(out)
}

// runMedications lists medications, or adds, updates or deletes one.
func runMedications(store *storage.Storage, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("medications", flag.ContinueOnError)
	add := fs.String("add", "", "Add a custom medication with this name")
	update := fs.String("update", "", "Update the medication with this name or ID")
	brand := fs.String("brand", "", "Brand name for -add or -update")
	halfLife := fs.Float64("half-life", 0, "Half-life in hours for -add or -update")
	interval := fs.Float64("interval", models.DefaultIntervalDays, "Dosing interval in days for -add or -update")
	compound := fs.Bool("compound", false, "Mark -add or -update as a compounded medication")
	del := fs.String("delete", "", "Delete the medication with this name or ID; its injections are kept")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *update != "":
		med, err := store.FindMedication(*update)
		if err != nil {
			return err
		}
		changed := 0
		fs.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "brand":
				med.BrandName = *brand
			case "half-life":
				med.HalfLifeHours = *halfLife
			case "interval":
				med.IntervalDays = *interval
			case "compound":
				med.IsCompound = *compound
			default:
				return
			}
			changed++
		})
		if changed == 0 {
			return errors.New("-update needs at least one of -brand, -half-life, -interval or -compound")
		}
		if err := store.UpdateMedication(med); err != nil {
			return err
		}
		saved, err := store.GetMedication(med.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, noteStyle.Render("Updated "+saved.DisplayName()))
		fmt.Fprint(out, row(saved.DisplayName(), medicationDetail(saved)))
		return nil
	case *add != "":
		med := &models.Medication{
			Name:          *add,
			BrandName:     *brand,
			Type:          models.Custom,
			HalfLifeHours: *halfLife,
			IntervalDays:  *interval,
			IsCompound:    *compound,
		}
		if err := store.AddMedication(med); err != nil {
			return err
		}
		fmt.Fprintln(out, noteStyle.Render(fmt.Sprintf("Added %s (%s)", med.DisplayName(), med.ID)))
		return nil
	case *del != "":
		med, err := store.FindMedication(*del)
		if err != nil {
			return err
		}
		if err := store.DeleteMedication(med.ID); err != nil {
			return err
		}
		fmt.Fprintln(out, noteStyle.Render("Deleted "+med.DisplayName()))
		return nil
	}

	meds, err := store.ListMedications()
	if err != nil {
		return err
	}
	fmt.Fprint(out, titleStyle.Render("Medications")+"\n")
	for _, m := range meds {
		fmt.Fprint(out, row(m.DisplayName(), medicationDetail(m)))
	}
	return nil
}

func medicationDetail(m *models.Medication) string {
	detail := fmt.Sprintf("t½ %gh, every %g days", m.HalfLifeHours, m.IntervalDays)
	if len(m.DefaultDosages) > 0 {
		detail += fmt.Sprintf(", doses %v mg", m.DefaultDosages)
	}
	if m.IsCompound {
		detail += ", compounded"
	}
	return detail
}

// runInjections lists logged injections newest first, or deletes one.
func runInjections(store *storage.Storage, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("injections", flag.ContinueOnError)
	med := fs.String("med", "", "Only this medication (name or ID)")
	limit := fs.Int("limit", 20, "Show at most this many injections (0 for all)")
	del := fs.String("delete", "", "Delete the injection with this ID")
	if err := fs.Parse(args); err != nil {
		return err
	}

	names := map[string]string{}
	meds, err := store.ListMedications()
	if err != nil {
		return err
	}
	for _, m := range meds {
		names[m.ID] = m.DisplayName()
	}
	nameOf := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return "deleted medication"
	}

	if *del != "" {
		inj, err := store.GetInjection(*del)
		if err != nil {
			return err
		}
		if err := store.DeleteInjection(inj.ID); err != nil {
			return err
		}
		fmt.Fprintln(out, noteStyle.Render(fmt.Sprintf("Deleted %.3f mg of %s on %s",
			inj.DosageMg, nameOf(inj.MedicationID), inj.Date.Format(whenLayout))))
		return nil
	}

	var medID string
	if *med != "" {
		m, err := store.FindMedication(*med)
		if err != nil {
			return err
		}
		medID = m.ID
	}
	injections, err := store.GetInjections(medID, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	if len(injections) == 0 {
		fmt.Fprintln(out, noteStyle.Render("No injections logged yet."))
		return nil
	}
	if *limit > 0 && len(injections) > *limit {
		injections = injections[:*limit]
	}

	fmt.Fprint(out, titleStyle.Render("Injections")+"\n")
	for _, inj := range injections {
		detail := fmt.Sprintf("%.3f mg %s", inj.DosageMg, nameOf(inj.MedicationID))
		if inj.Site != "" {
			detail += ", " + inj.Site
		}
		fmt.Fprint(out, row(inj.Date.Format(whenLayout), detail))
		fmt.Fprint(out, "  "+labelStyle.Render(inj.ID)+"\n")
	}
	return nil
}

// runCalc runs the reconstitution calculator.
func runCalc(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("calc", flag.ContinueOnError)
	preset := fs.String("preset", "", "Start from a peptide preset")
	vial := fs.Float64("vial", 0, "Peptide in the vial (mg)")
	water := fs.Float64("water", 0, "Bacteriostatic water added (mL)")
	dose := fs.Float64("dose", 0, "Desired dose")
	unit := fs.String("unit", "mcg", "Dose unit: mg or mcg")
	if err := fs.Parse(args); err != nil {
		return err
	}

	u, err := reconstitution.ParseUnit(*unit)
	if err != nil {
		return err
	}
	d := reconstitution.Dose{Amount: *dose, Unit: u}

	if *preset != "" {
		p, ok := reconstitution.LookupPreset(*preset)
		if !ok {
			return fmt.Errorf("unknown preset %q", *preset)
		}
		if *vial == 0 {
			*vial = p.VialMg
		}
		if *water == 0 {
			*water = p.DiluentMl
		}
		if *dose == 0 {
			d = reconstitution.Dose{Amount: p.DoseMg(), Unit: reconstitution.Milligrams}
		}
	}

	res, ok := reconstitution.CalculateDose(*vial, *water, d)
	if !ok {
		return errors.New("-vial, -water and -dose must all be positive")
	}

	fmt.Fprint(out, titleStyle.Render("Reconstitution")+"\n")
	fmt.Fprint(out, row("Concentration", fmt.Sprintf("%.3f mg/mL", res.ConcentrationMgPerMl)))
	fmt.Fprint(out, row("Draw volume", fmt.Sprintf("%.3f mL", res.DrawVolumeMl)))
	fmt.Fprint(out, row("Syringe (U-100)", fmt.Sprintf("%.1f units", res.SyringeUnits)))
	fmt.Fprint(out, row("Doses per vial", fmt.Sprintf("%d", reconstitution.DosesPerVial(*vial, d.Mg()))))
	return nil
}

func runPresets(out io.Writer) error {
	fmt.Fprint(out, titleStyle.Render("Peptide presets")+"\n")
	for _, p := range reconstitution.Presets() {
		fmt.Fprint(out, row(p.Name, fmt.Sprintf("%g mg vial, %g mL water, %g mcg dose, t½ %gh",
			p.VialMg, p.DiluentMl, p.DoseMcg, p.HalfLifeHours)))
	}
	return nil
}

type testNotifier interface {
	SendTestNotification() error
}

// runNotifyTest shows a desktop notification so the setup can be checked.
func runNotifyTest(n testNotifier, out io.Writer) error {
	if err := n.SendTestNotification(); err != nil {
		return err
	}
	fmt.Fprintln(out, noteStyle.Render("Test notification sent"))
	return nil
}
