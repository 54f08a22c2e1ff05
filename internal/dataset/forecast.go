package dataset

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/ecocast/internal/models"
)

//go:embed data/forecast.json
var defaultForecast []byte

// DefaultForecast returns the bundled 15-day forecast.
func DefaultForecast() []models.ForecastDay {
	days, err := ParseForecast(bytes.NewReader(defaultForecast))
	if err != nil {
		panic(fmt.Sprintf("embedded forecast: %v", err))
	}
	return days
}

// Column names written by the original pandas export. Accepted alongside
// the ForecastDay field names so older forecast files keep loading.
var legacyColumns = map[string]string{
	"Date":                 "date",
	"Temperature (C)":      "temperature",
	"Humidity":             "humidity",
	"Pressure (millibars)": "pressure",
	"Cloud Cover":          "cloudCover",
	"Rain Chance (%)":      "rainChance",
	"Daily Summary":        "summary",
}

// ParseForecast decodes a JSON array of forecast days, sorted by date.
func ParseForecast(r io.Reader) ([]models.ForecastDay, error) {
	var raw []map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode forecast: %w", err)
	}

	days := make([]models.ForecastDay, 0, len(raw))
	for i, rec := range raw {
		fields := make(map[string]any, len(rec))
		for k, v := range rec {
			if name, ok := legacyColumns[k]; ok {
				k = name
			}
			fields[k] = v
		}

		date, err := parseDate(fields["date"])
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		day := models.ForecastDay{
			Date:        date,
			Temperature: number(fields["temperature"]),
			Humidity:    number(fields["humidity"]),
			Pressure:    number(fields["pressure"]),
			CloudCover:  number(fields["cloudCover"]),
			RainChance:  number(fields["rainChance"]),
		}
		if s, ok := fields["summary"].(string); ok {
			day.Summary = s
		}
		days = append(days, day)
	}

	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

// WriteForecast encodes days in the ForecastDay wire format.
func WriteForecast(w io.Writer, days []models.ForecastDay) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(days)
}

func parseDate(v any) (string, error) {
	switch d := v.(type) {
	case string:
		if len(d) >= 10 {
			if t, err := time.Parse(models.DateLayout, d[:10]); err == nil {
				return t.Format(models.DateLayout), nil
			}
		}
		return "", fmt.Errorf("invalid date %q", d)
	case float64:
		// pandas epoch-millisecond dates
		return time.UnixMilli(int64(d)).UTC().Format(models.DateLayout), nil
	default:
		return "", fmt.Errorf("missing date")
	}
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 0
}
