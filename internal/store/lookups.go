package store

import (
	"database/sql"
	"time"

	"github.com/lox/ecocast/internal/models"
)

// RecordLookup stores one answered or failed map click.
func (s *Store) RecordLookup(l models.Lookup) (int64, error) {
	if l.RequestedAt.IsZero() {
		l.RequestedAt = time.Now().UTC()
	}
	var temp, humidity, pressure, cloud sql.NullFloat64
	var desc sql.NullString
	if l.Sample != nil {
		temp = sql.NullFloat64{Float64: l.Sample.Temperature, Valid: true}
		humidity = sql.NullFloat64{Float64: l.Sample.Humidity, Valid: true}
		pressure = sql.NullFloat64{Float64: l.Sample.Pressure, Valid: true}
		cloud = sql.NullFloat64{Float64: l.Sample.CloudCover, Valid: true}
		desc = sql.NullString{String: l.Sample.Description, Valid: true}
	}

	result, err := s.db.Exec(`
		INSERT INTO lookups (kind, location, latitude, longitude, requested_at, temperature, humidity, pressure, cloud_cover, description, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.Kind, l.Location, l.Latitude, l.Longitude, l.RequestedAt.UTC(), temp, humidity, pressure, cloud, desc, l.Error)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// RecentLookups returns the newest lookups first.
func (s *Store) RecentLookups(limit int) ([]models.Lookup, error) {
	rows, err := s.db.Query(`
		SELECT id, kind, location, latitude, longitude, requested_at, temperature, humidity, pressure, cloud_cover, description, error
		FROM lookups
		ORDER BY requested_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Lookup
	for rows.Next() {
		var l models.Lookup
		var temp, humidity, pressure, cloud sql.NullFloat64
		var desc sql.NullString
		if err := rows.Scan(&l.ID, &l.Kind, &l.Location, &l.Latitude, &l.Longitude, &l.RequestedAt,
			&temp, &humidity, &pressure, &cloud, &desc, &l.Error); err != nil {
			return nil, err
		}
		if temp.Valid {
			l.Sample = &models.WeatherSample{
				Location:    l.Location,
				Temperature: temp.Float64,
				Humidity:    humidity.Float64,
				Pressure:    pressure.Float64,
				CloudCover:  cloud.Float64,
				Description: desc.String,
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
