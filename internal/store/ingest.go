package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// IngestRun audits one provider call or generator run.
type IngestRun struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "owm", "mock", "generator"
	Endpoint          string
	LocationID        sql.NullString // region name, lat/lon label or dataset location
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	RecordsStored     sql.NullInt64
	ParseErrors       sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

func (s *Store) StartIngestRun(source, endpoint string, locationID *string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Endpoint:  endpoint,
	}
	if locationID != nil {
		run.LocationID = sql.NullString{String: *locationID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, source, endpoint, location_id, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.Endpoint, run.LocationID)
	if err != nil {
		return nil, fmt.Errorf("insert ingest run: %w", err)
	}
	if run.ID, err = result.LastInsertId(); err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteIngestRun stamps the finish time and writes the run's outcome.
// A nil run is ignored so callers can pass through a failed Start.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?, http_status = ?, response_size_bytes = ?,
			records_parsed = ?, records_stored = ?, parse_errors = ?,
			success = ?, error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes,
		run.RecordsParsed, run.RecordsStored, run.ParseErrors,
		run.Success, run.ErrorMessage, run.ID)
	if err != nil {
		return fmt.Errorf("update ingest run %d: %w", run.ID, err)
	}
	return nil
}

// SourceHealth summarises the runs of one source and endpoint.
type SourceHealth struct {
	Source      string    `json:"source"`
	Endpoint    string    `json:"endpoint"`
	Runs        int       `json:"runs"`
	Failed      int       `json:"failed"`
	Records     int64     `json:"records"`
	LastSuccess time.Time `json:"last_success,omitzero"`
	LastFailure time.Time `json:"last_failure,omitzero"`
}

// IngestHealth summarises the runs started within window, ordered by source
// and endpoint.
func (s *Store) IngestHealth(window time.Duration) ([]SourceHealth, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := s.db.Query(`
		SELECT source, endpoint, started_at, success, COALESCE(records_stored, 0)
		FROM ingest_runs
		WHERE started_at >= ?
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := make(map[[2]string]*SourceHealth)
	for rows.Next() {
		var (
			source, endpoint string
			started          time.Time
			ok               bool
			records          int64
		)
		if err := rows.Scan(&source, &endpoint, &started, &ok, &records); err != nil {
			return nil, err
		}
		key := [2]string{source, endpoint}
		h := byKey[key]
		if h == nil {
			h = &SourceHealth{Source: source, Endpoint: endpoint}
			byKey[key] = h
		}
		h.Runs++
		h.Records += records
		if ok {
			if started.After(h.LastSuccess) {
				h.LastSuccess = started
			}
		} else {
			h.Failed++
			if started.After(h.LastFailure) {
				h.LastFailure = started
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]SourceHealth, 0, len(byKey))
	for _, h := range byKey {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	return out, nil
}

// RecentIngestErrors returns the newest failed runs first.
func (s *Store) RecentIngestErrors(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, endpoint, location_id,
		       http_status, response_size_bytes, records_parsed, records_stored,
		       parse_errors, success, error_message
		FROM ingest_runs
		WHERE success = FALSE AND finished_at IS NOT NULL
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Endpoint,
			&r.LocationID, &r.HTTPStatus, &r.ResponseSizeBytes, &r.RecordsParsed,
			&r.RecordsStored, &r.ParseErrors, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
