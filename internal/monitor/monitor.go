// Package monitor builds medication level reports and decides which
// injection reminders are due.
package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rewired-gh/doseoracle/internal/level"
	"github.com/rewired-gh/doseoracle/internal/logger"
	"github.com/rewired-gh/doseoracle/internal/models"
)

// Store is the persistence the monitor reads from and records reminders to.
type Store interface {
	ListMedications() ([]*models.Medication, error)
	GetInjections(medicationID string, from, to time.Time) ([]*models.Injection, error)
	DosingEvents(medicationID string, from, to time.Time) ([]level.DosingEvent, error)
	HasReminder(key string) (bool, error)
	RecordReminder(r models.Reminder) error
	RotateReminders() error
}

// Clock returns the current time.
type Clock func() time.Time

type Config struct {
	LookbackDays   int
	ProjectionDays int
	HistoryDays    int
	Medications    []string

	RemindersEnabled bool
	DayBefore        bool
	LeadTime         time.Duration
	Due              bool
	Missed           bool
	MissedGrace      time.Duration
}

func DefaultConfig() Config {
	return Config{
		LookbackDays:     180,
		ProjectionDays:   7,
		HistoryDays:      30,
		RemindersEnabled: true,
		DayBefore:        true,
		LeadTime:         24 * time.Hour,
		Due:              true,
		Missed:           true,
		MissedGrace:      24 * time.Hour,
	}
}

type Monitor struct {
	store  Store
	now    Clock
	mu     sync.RWMutex
	config Config
}

// New creates a Monitor. A nil clock uses time.Now.
func New(s Store, config Config, now Clock) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{store: s, config: config, now: now}
}

// UpdateConfig swaps the configuration used by subsequent calls.
func (m *Monitor) UpdateConfig(config Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
}

func (m *Monitor) settings() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// BuildReports returns one report per monitored medication. When no
// medication names are configured, medications without injections are skipped.
func (m *Monitor) BuildReports() ([]*models.LevelReport, error) {
	meds, err := m.store.ListMedications()
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}

	cfg := m.settings()
	var reports []*models.LevelReport
	for _, med := range meds {
		if !watched(cfg.Medications, med) {
			continue
		}
		report, err := m.buildReport(med, cfg)
		if err != nil {
			return nil, err
		}
		if len(cfg.Medications) == 0 && report.InjectionCount == 0 {
			continue
		}
		reports = append(reports, report)
	}
	logger.Debug("Built %d level reports from %d medications", len(reports), len(meds))
	return reports, nil
}

func watched(names []string, med *models.Medication) bool {
	if len(names) == 0 {
		return true
	}
	for _, name := range names {
		if strings.EqualFold(strings.TrimSpace(name), med.Name) || name == med.ID {
			return true
		}
	}
	return false
}

// BuildReport computes the level report for one medication at the current time.
func (m *Monitor) BuildReport(med *models.Medication) (*models.LevelReport, error) {
	return m.buildReport(med, m.settings())
}

func (m *Monitor) buildReport(med *models.Medication, cfg Config) (*models.LevelReport, error) {
	now := m.now()
	var from time.Time
	if cfg.LookbackDays > 0 {
		from = now.AddDate(0, 0, -cfg.LookbackDays)
	}

	events, err := m.store.DosingEvents(med.ID, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load dosing events for %s: %w", med.Name, err)
	}
	injections, err := m.store.GetInjections(med.ID, from, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load injections for %s: %w", med.Name, err)
	}

	report := &models.LevelReport{
		Medication:     *med,
		GeneratedAt:    now,
		CurrentLevelMg: level.CurrentLevel(now, events),
		Injections:     injections,
		InjectionCount: len(injections),
	}
	report.Trough, report.HasTrough = level.EstimateNextTrough(events)

	if len(injections) > 0 {
		last := injections[0] // newest first
		report.LastDose = last
		report.HalfLivesSince = level.HalfLivesElapsed(last.DosingEvent(med), now)
		report.NextDueAt = last.Date.Add(med.Interval())
		report.DueLevelMg = level.LevelAt(report.NextDueAt, events)
		report.SteadyStateTroughMg = level.EstimateSteadyStateTrough(last.DosageMg, med.IntervalDays, med.HalfLifeHours)
		report.SteadyStatePeakMg = level.EstimateSteadyStatePeak(last.DosageMg, med.IntervalDays, med.HalfLifeHours)
	}

	stats := IntervalStatsOf(injections)
	report.IntervalMean = stats.MeanDuration()
	report.IntervalStdDev = stats.StdDevDuration()

	if len(events) > 0 {
		start := now.AddDate(0, 0, -max(cfg.HistoryDays, 1))
		if first := events[0].Time; first.After(start) {
			start = first
		}
		report.History = level.CurveAuto(events, start, now)
	}
	if cfg.ProjectionDays > 0 && len(events) > 0 {
		end := now.AddDate(0, 0, cfg.ProjectionDays)
		report.Projected = level.CurveAuto(events, now, end)
	}

	return report, nil
}

// DueReminders returns the reminders that should fire now and have not been
// sent before.
func (m *Monitor) DueReminders(reports []*models.LevelReport) ([]models.Reminder, error) {
	cfg := m.settings()
	if !cfg.RemindersEnabled {
		return nil, nil
	}
	now := m.now()

	var due []models.Reminder
	for _, report := range reports {
		kind, ok := reminderKind(cfg, report, now)
		if !ok {
			continue
		}
		r := models.Reminder{
			Kind:           kind,
			MedicationID:   report.Medication.ID,
			MedicationName: report.Medication.DisplayName(),
			DueAt:          report.NextDueAt,
			TroughLevelMg:  report.DueLevelMg,
			LastDoseMg:     report.LastDose.DosageMg,
			CreatedAt:      now,
		}

		sent, err := m.store.HasReminder(r.Key())
		if err != nil {
			return nil, fmt.Errorf("failed to check reminder %s: %w", r.Key(), err)
		}
		if sent {
			continue
		}
		due = append(due, r)
	}
	return due, nil
}

// reminderKind picks at most one reminder for the report's planned due time.
func reminderKind(cfg Config, report *models.LevelReport, now time.Time) (models.ReminderKind, bool) {
	if report.LastDose == nil || report.NextDueAt.IsZero() {
		return "", false
	}
	dueAt := report.NextDueAt
	switch {
	case now.Before(dueAt):
		if cfg.DayBefore && !now.Before(dueAt.Add(-cfg.LeadTime)) {
			return models.ReminderDayBefore, true
		}
	case now.Before(dueAt.Add(cfg.MissedGrace)):
		if cfg.Due {
			return models.ReminderDue, true
		}
	default:
		if cfg.Missed {
			return models.ReminderMissed, true
		}
	}
	return "", false
}

// RecordNotified persists sent reminders so they are not repeated, then trims
// the reminder log.
func (m *Monitor) RecordNotified(reminders []models.Reminder) error {
	for _, r := range reminders {
		if err := m.store.RecordReminder(r); err != nil {
			return fmt.Errorf("failed to record reminder %s: %w", r.Key(), err)
		}
	}
	if len(reminders) == 0 {
		return nil
	}
	if err := m.store.RotateReminders(); err != nil {
		logger.Warn("Failed to rotate reminders: %v", err)
	}
	return nil
}
