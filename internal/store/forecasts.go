package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/ecocast/internal/models"
)

// SaveForecastRun stores a run and its days in one transaction and sets
// run.ID.
func (s *Store) SaveForecastRun(run *models.ForecastRun) error {
	if run.GeneratedAt.IsZero() {
		run.GeneratedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO forecast_runs (generated_at, source, days_count)
		VALUES (?, ?, ?)
	`, run.GeneratedAt.UTC(), run.Source, len(run.Days))
	if err != nil {
		return fmt.Errorf("insert forecast run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO forecast_days (run_id, date, temperature, humidity, pressure, cloud_cover, rain_chance, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare forecast days: %w", err)
	}
	defer stmt.Close()

	for _, d := range run.Days {
		if _, err := stmt.Exec(id, d.Date, d.Temperature, d.Humidity, d.Pressure, d.CloudCover, d.RainChance, d.Summary); err != nil {
			return fmt.Errorf("insert forecast day %s: %w", d.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit forecast run: %w", err)
	}
	run.ID = id
	return nil
}

// LatestForecastRun returns the most recent run with its days, or nil when
// nothing has been generated yet.
func (s *Store) LatestForecastRun() (*models.ForecastRun, error) {
	var run models.ForecastRun
	err := s.db.QueryRow(`
		SELECT id, generated_at, source FROM forecast_runs
		ORDER BY generated_at DESC, id DESC
		LIMIT 1
	`).Scan(&run.ID, &run.GeneratedAt, &run.Source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	days, err := s.forecastDays(run.ID)
	if err != nil {
		return nil, err
	}
	run.Days = days
	return &run, nil
}

func (s *Store) forecastDays(runID int64) ([]models.ForecastDay, error) {
	rows, err := s.db.Query(`
		SELECT date, temperature, humidity, pressure, cloud_cover, rain_chance, summary
		FROM forecast_days
		WHERE run_id = ?
		ORDER BY date
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []models.ForecastDay
	for rows.Next() {
		var d models.ForecastDay
		var date string
		if err := rows.Scan(&date, &d.Temperature, &d.Humidity, &d.Pressure, &d.CloudCover, &d.RainChance, &d.Summary); err != nil {
			return nil, err
		}
		d.Date = normalizeDate(date)
		days = append(days, d)
	}
	return days, rows.Err()
}

// normalizeDate trims a stored DATE back to YYYY-MM-DD; the driver may hand
// back a full timestamp.
func normalizeDate(s string) string {
	if len(s) >= len(models.DateLayout) {
		return s[:len(models.DateLayout)]
	}
	return s
}

// CountForecastRuns returns how many runs are stored.
func (s *Store) CountForecastRuns() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM forecast_runs`).Scan(&n)
	return n, err
}

// PruneForecastRuns keeps the newest keep runs and deletes the rest along
// with their days and narratives.
func (s *Store) PruneForecastRuns(keep int) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM forecast_runs WHERE id NOT IN (
		SELECT id FROM forecast_runs ORDER BY generated_at DESC, id DESC LIMIT ?)`
	if _, err := tx.Exec(`DELETE FROM forecast_days WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("delete forecast days: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM narratives WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("delete narratives: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM forecast_runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("delete forecast runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// SaveNarrative caches the outlook text generated for a run.
func (s *Store) SaveNarrative(runID int64, model, text string) error {
	_, err := s.db.Exec(`
		INSERT INTO narratives (run_id, model, text, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			model = excluded.model,
			text = excluded.text,
			created_at = excluded.created_at
	`, runID, model, text, time.Now().UTC())
	return err
}

// GetNarrative returns the cached outlook for a run, or "" when none exists.
func (s *Store) GetNarrative(runID int64) (string, error) {
	var text string
	err := s.db.QueryRow(`SELECT text FROM narratives WHERE run_id = ?`, runID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return text, err
}
