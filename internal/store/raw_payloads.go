package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"
)

// RawPayload is an archived provider response. Payload holds the
// uncompressed bytes.
type RawPayload struct {
	ID          int64
	IngestRunID sql.NullInt64
	FetchedAt   time.Time
	Source      string
	Endpoint    string
	LocationID  sql.NullString
	Hash        string
	Payload     []byte
}

// PayloadHash is the archive key for a response body.
func PayloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// StoreRawPayload archives a response body gzipped and keyed by its hash.
// It returns 0 when an identical body is already archived.
func (s *Store) StoreRawPayload(runID *int64, source, endpoint string, locationID *string, payload []byte) (int64, error) {
	compressed, err := gzipBytes(payload)
	if err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}

	var run sql.NullInt64
	if runID != nil {
		run = sql.NullInt64{Int64: *runID, Valid: true}
	}
	var location sql.NullString
	if locationID != nil {
		location = sql.NullString{String: *locationID, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO raw_payloads
			(ingest_run_id, fetched_at, source, endpoint, location_id, payload_compressed, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(payload_hash) DO NOTHING
	`, run, time.Now().UTC(), source, endpoint, location, compressed, PayloadHash(payload))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil || n == 0 {
		return 0, err
	}
	return result.LastInsertId()
}

// RawPayloadByHash returns the archived body with the given hash, or nil.
func (s *Store) RawPayloadByHash(hash string) (*RawPayload, error) {
	var p RawPayload
	var compressed []byte
	err := s.db.QueryRow(`
		SELECT id, ingest_run_id, fetched_at, source, endpoint, location_id,
		       payload_hash, payload_compressed
		FROM raw_payloads WHERE payload_hash = ?
	`, hash).Scan(&p.ID, &p.IngestRunID, &p.FetchedAt, &p.Source, &p.Endpoint,
		&p.LocationID, &p.Hash, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.Payload, err = gunzipBytes(compressed); err != nil {
		return nil, fmt.Errorf("decompress payload %d: %w", p.ID, err)
	}
	return &p, nil
}

// ArchiveUsage is how much of the archive one source takes up.
type ArchiveUsage struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

type ArchiveStats struct {
	Total    ArchiveUsage            `json:"total"`
	Oldest   time.Time               `json:"oldest,omitzero"`
	Newest   time.Time               `json:"newest,omitzero"`
	BySource map[string]ArchiveUsage `json:"by_source"`
}

func (s *Store) RawPayloadStats() (*ArchiveStats, error) {
	rows, err := s.db.Query(`
		SELECT source, fetched_at, LENGTH(payload_compressed)
		FROM raw_payloads
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &ArchiveStats{BySource: make(map[string]ArchiveUsage)}
	for rows.Next() {
		var source string
		var fetched time.Time
		var size int64
		if err := rows.Scan(&source, &fetched, &size); err != nil {
			return nil, err
		}
		u := stats.BySource[source]
		u.Count++
		u.Bytes += size
		stats.BySource[source] = u

		stats.Total.Count++
		stats.Total.Bytes += size
		if stats.Oldest.IsZero() || fetched.Before(stats.Oldest) {
			stats.Oldest = fetched
		}
		if fetched.After(stats.Newest) {
			stats.Newest = fetched
		}
	}
	return stats, rows.Err()
}

// PruneRawPayloads deletes bodies fetched more than maxAge ago.
func (s *Store) PruneRawPayloads(maxAge time.Duration) (int64, error) {
	result, err := s.db.Exec(`DELETE FROM raw_payloads WHERE fetched_at < ?`, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("prune raw payloads: %w", err)
	}
	return result.RowsAffected()
}
