package models

import (
	"database/sql"
	"time"
)

// DateLayout is the wire format for ForecastDay.Date.
const DateLayout = "2006-01-02"

// ForecastDay is one day of a forecast as rendered by the forecast view.
// Humidity and CloudCover are fractions (0-1), RainChance is a percentage.
type ForecastDay struct {
	Date        string  `json:"date"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	CloudCover  float64 `json:"cloudCover"`
	RainChance  float64 `json:"rainChance"`
	Summary     string  `json:"summary"`
}

// Time parses Date. The zero time is returned for malformed dates.
func (d ForecastDay) Time() time.Time {
	t, err := time.Parse(DateLayout, d.Date)
	if err != nil {
		return time.Time{}
	}
	return t
}

// WeatherSample is the result of a single map click.
type WeatherSample struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	CloudCover  float64 `json:"cloudCover"`
	Description string  `json:"description"`
}

type StateCoordinate struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// HourlyRecord is one row of the historical dataset the generator trains on.
type HourlyRecord struct {
	Time        time.Time
	Summary     string
	PrecipType  string
	Temperature float64
	Humidity    float64
	Pressure    float64
	CloudCover  float64
}

type ForecastRun struct {
	ID          int64
	GeneratedAt time.Time
	Source      string // "generator", "file"
	Days        []ForecastDay
}

// Lookup records one answered (or failed) map click.
type Lookup struct {
	ID          int64
	Kind        string // "region" or "world"
	Location    string
	Latitude    sql.NullFloat64
	Longitude   sql.NullFloat64
	RequestedAt time.Time
	Sample      *WeatherSample
	Error       sql.NullString
}
