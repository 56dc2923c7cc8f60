// Package storage provides SQLite-backed persistence for medications,
// injections and sent reminders.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/doseoracle/internal/level"
	"github.com/rewired-gh/doseoracle/internal/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db           *sql.DB
	maxReminders int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/doseoracle/data.db.
func New(maxReminders int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "doseoracle", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxReminders: maxReminders}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS medications (
			id              TEXT PRIMARY KEY,
			name            TEXT NOT NULL UNIQUE COLLATE NOCASE,
			brand_name      TEXT,
			type            TEXT NOT NULL,
			half_life_hours REAL NOT NULL,
			default_dosages TEXT NOT NULL DEFAULT '[]',
			is_compound     INTEGER NOT NULL DEFAULT 0,
			interval_days   REAL NOT NULL
		)`,
		// medication_id is deliberately not a foreign key: deleting a medication
		// keeps its injection history, which then resolves to no half-life.
		`CREATE TABLE IF NOT EXISTS injections (
			id              TEXT PRIMARY KEY,
			medication_id   TEXT NOT NULL,
			date            INTEGER NOT NULL,
			dosage_mg       REAL NOT NULL,
			site            TEXT,
			notes           TEXT,
			created_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_injections_date ON injections(date)`,
		`CREATE INDEX IF NOT EXISTS idx_injections_med_date ON injections(medication_id, date)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			key             TEXT PRIMARY KEY,
			kind            TEXT NOT NULL,
			medication_id   TEXT NOT NULL,
			due_at          INTEGER NOT NULL,
			sent_at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_sent_at ON reminders(sent_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ─── Medications ────────────────────────────────────────────────────────────

// AddMedication inserts a medication, assigning an ID when empty.
func (s *Storage) AddMedication(med *models.Medication) error {
	if med.ID == "" {
		med.ID = uuid.New().String()
	}
	if med.Type == "" {
		med.Type = models.Custom
	}
	if med.IntervalDays == 0 {
		med.IntervalDays = models.DefaultIntervalDays
	}
	if err := med.Validate(); err != nil {
		return fmt.Errorf("invalid medication: %w", err)
	}
	dosagesJSON, err := json.Marshal(med.DefaultDosages)
	if err != nil {
		return fmt.Errorf("failed to marshal default dosages: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO medications
			(id, name, brand_name, type, half_life_hours, default_dosages, is_compound, interval_days)
		VALUES (?,?,?,?,?,?,?,?)`,
		med.ID, med.Name, med.BrandName, string(med.Type), med.HalfLifeHours,
		string(dosagesJSON), boolToInt(med.IsCompound), med.IntervalDays,
	)
	if err != nil {
		return fmt.Errorf("failed to insert medication: %w", err)
	}
	return nil
}

// UpdateMedication replaces a medication's fields.
func (s *Storage) UpdateMedication(med *models.Medication) error {
	if err := med.Validate(); err != nil {
		return fmt.Errorf("invalid medication: %w", err)
	}
	dosagesJSON, err := json.Marshal(med.DefaultDosages)
	if err != nil {
		return fmt.Errorf("failed to marshal default dosages: %w", err)
	}
	res, err := s.db.Exec(`
		UPDATE medications SET
			name=?, brand_name=?, type=?, half_life_hours=?, default_dosages=?,
			is_compound=?, interval_days=?
		WHERE id=?`,
		med.Name, med.BrandName, string(med.Type), med.HalfLifeHours, string(dosagesJSON),
		boolToInt(med.IsCompound), med.IntervalDays, med.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update medication: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("medication %s: %w", med.ID, ErrNotFound)
	}
	return nil
}

func (s *Storage) GetMedication(id string) (*models.Medication, error) {
	row := s.db.QueryRow(`SELECT `+medicationCols+` FROM medications WHERE id = ?`, id)
	m, err := scanMedication(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("medication %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medication: %w", err)
	}
	return m, nil
}

// FindMedication looks a medication up by ID, then by case-insensitive name.
func (s *Storage) FindMedication(ref string) (*models.Medication, error) {
	ref = strings.TrimSpace(ref)
	row := s.db.QueryRow(`SELECT `+medicationCols+` FROM medications
		WHERE id = ? OR name = ? COLLATE NOCASE
		ORDER BY id = ? DESC LIMIT 1`, ref, ref, ref)
	m, err := scanMedication(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("medication %q: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find medication: %w", err)
	}
	return m, nil
}

// ListMedications returns every medication sorted by name.
func (s *Storage) ListMedications() ([]*models.Medication, error) {
	rows, err := s.db.Query(`SELECT ` + medicationCols + ` FROM medications ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to query medications: %w", err)
	}
	defer rows.Close()
	meds := []*models.Medication{}
	for rows.Next() {
		m, err := scanMedication(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medication: %w", err)
		}
		meds = append(meds, m)
	}
	return meds, rows.Err()
}

// DeleteMedication removes a medication. Its injections are kept.
func (s *Storage) DeleteMedication(id string) error {
	res, err := s.db.Exec(`DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete medication: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("medication %s: %w", id, ErrNotFound)
	}
	return nil
}

// SeedDefaultMedications inserts semaglutide and tirzepatide when the
// medications table is empty. It returns the number inserted.
func (s *Storage) SeedDefaultMedications() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM medications`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count medications: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	defaults := []models.Medication{models.SemaglutideDefault(), models.TirzepatideDefault()}
	for i := range defaults {
		if err := s.AddMedication(&defaults[i]); err != nil {
			return i, fmt.Errorf("failed to seed %s: %w", defaults[i].Name, err)
		}
	}
	return len(defaults), nil
}

// ─── Injections ─────────────────────────────────────────────────────────────

// AddInjection inserts an injection, assigning ID and CreatedAt when empty.
func (s *Storage) AddInjection(inj *models.Injection) error {
	if inj.ID == "" {
		inj.ID = uuid.New().String()
	}
	if inj.CreatedAt.IsZero() {
		inj.CreatedAt = time.Now()
	}
	if err := inj.Validate(); err != nil {
		return fmt.Errorf("invalid injection: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO injections (id, medication_id, date, dosage_mg, site, notes, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		inj.ID, inj.MedicationID, inj.Date.UnixNano(), inj.DosageMg,
		inj.Site, inj.Notes, inj.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert injection: %w", err)
	}
	return nil
}

func (s *Storage) GetInjection(id string) (*models.Injection, error) {
	row := s.db.QueryRow(`SELECT `+injectionCols+` FROM injections WHERE id = ?`, id)
	inj, err := scanInjection(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("injection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get injection: %w", err)
	}
	return inj, nil
}

// GetInjections returns injections with from <= date <= to, newest first.
// A zero bound is open. An empty medicationID matches every medication.
func (s *Storage) GetInjections(medicationID string, from, to time.Time) ([]*models.Injection, error) {
	lo, hi := bounds(from, to)
	rows, err := s.db.Query(`SELECT `+injectionCols+` FROM injections
		WHERE date >= ? AND date <= ? AND (? = '' OR medication_id = ?)
		ORDER BY date DESC`, lo, hi, medicationID, medicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query injections: %w", err)
	}
	defer rows.Close()
	injections := []*models.Injection{}
	for rows.Next() {
		inj, err := scanInjection(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan injection: %w", err)
		}
		injections = append(injections, inj)
	}
	return injections, rows.Err()
}

// GetLastInjection returns the most recent injection, optionally for one medication.
func (s *Storage) GetLastInjection(medicationID string) (*models.Injection, error) {
	row := s.db.QueryRow(`SELECT `+injectionCols+` FROM injections
		WHERE (? = '' OR medication_id = ?)
		ORDER BY date DESC LIMIT 1`, medicationID, medicationID)
	inj, err := scanInjection(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("last injection: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last injection: %w", err)
	}
	return inj, nil
}

func (s *Storage) DeleteInjection(id string) error {
	res, err := s.db.Exec(`DELETE FROM injections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete injection: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("injection %s: %w", id, ErrNotFound)
	}
	return nil
}

// DosingEvents returns injections in [from, to] resolved against their
// medication's half-life, oldest first. Injections whose medication no longer
// exists carry a zero half-life and contribute nothing to levels.
func (s *Storage) DosingEvents(medicationID string, from, to time.Time) ([]level.DosingEvent, error) {
	lo, hi := bounds(from, to)
	rows, err := s.db.Query(`
		SELECT i.date, i.dosage_mg, COALESCE(m.half_life_hours, 0)
		FROM injections i LEFT JOIN medications m ON m.id = i.medication_id
		WHERE i.date >= ? AND i.date <= ? AND (? = '' OR i.medication_id = ?)
		ORDER BY i.date ASC`, lo, hi, medicationID, medicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dosing events: %w", err)
	}
	defer rows.Close()
	events := []level.DosingEvent{}
	for rows.Next() {
		var dateNano int64
		var ev level.DosingEvent
		if err := rows.Scan(&dateNano, &ev.AmountMg, &ev.HalfLifeHours); err != nil {
			return nil, fmt.Errorf("failed to scan dosing event: %w", err)
		}
		ev.Time = time.Unix(0, dateNano)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ─── Reminders ──────────────────────────────────────────────────────────────

// HasReminder reports whether a reminder with this key was already sent.
func (s *Storage) HasReminder(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM reminders WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query reminder: %w", err)
	}
	return true, nil
}

// RecordReminder marks a reminder as sent. Recording the same key twice is a no-op.
func (s *Storage) RecordReminder(r models.Reminder) error {
	sentAt := r.CreatedAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO reminders (key, kind, medication_id, due_at, sent_at)
		VALUES (?,?,?,?,?)`,
		r.Key(), string(r.Kind), r.MedicationID, r.DueAt.UnixNano(), sentAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record reminder: %w", err)
	}
	return nil
}

// RotateReminders keeps at most maxReminders newest reminder records.
func (s *Storage) RotateReminders() error {
	_, err := s.db.Exec(`
		DELETE FROM reminders WHERE key NOT IN (
			SELECT key FROM reminders ORDER BY sent_at DESC LIMIT ?
		)`, s.maxReminders)
	if err != nil {
		return fmt.Errorf("failed to rotate reminders: %w", err)
	}
	return nil
}

// CountReminders returns the number of stored reminder records.
func (s *Storage) CountReminders() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reminders`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reminders: %w", err)
	}
	return n, nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

const medicationCols = `id, name, brand_name, type, half_life_hours, default_dosages, is_compound, interval_days`

func scanMedication(scan func(...any) error) (*models.Medication, error) {
	var m models.Medication
	var brand sql.NullString
	var medType, dosagesJSON string
	var isCompound int
	err := scan(&m.ID, &m.Name, &brand, &medType, &m.HalfLifeHours, &dosagesJSON, &isCompound, &m.IntervalDays)
	if err != nil {
		return nil, err
	}
	m.BrandName = brand.String
	m.Type = models.MedicationType(medType)
	m.IsCompound = isCompound != 0
	if err := json.Unmarshal([]byte(dosagesJSON), &m.DefaultDosages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default dosages: %w", err)
	}
	return &m, nil
}

const injectionCols = `id, medication_id, date, dosage_mg, site, notes, created_at`

func scanInjection(scan func(...any) error) (*models.Injection, error) {
	var inj models.Injection
	var site, notes sql.NullString
	var dateNano, createdNano int64
	err := scan(&inj.ID, &inj.MedicationID, &dateNano, &inj.DosageMg, &site, &notes, &createdNano)
	if err != nil {
		return nil, err
	}
	inj.Site = site.String
	inj.Notes = notes.String
	inj.Date = time.Unix(0, dateNano)
	inj.CreatedAt = time.Unix(0, createdNano)
	return &inj, nil
}

// bounds converts an optional time range to UnixNano limits.
func bounds(from, to time.Time) (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = from.UnixNano()
	}
	if !to.IsZero() {
		hi = to.UnixNano()
	}
	return lo, hi
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
