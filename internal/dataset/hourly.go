package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lox/ecocast/internal/models"
)

const (
	colDate        = "Formatted Date"
	colSummary     = "Summary"
	colPrecipType  = "Precip Type"
	colTemperature = "Temperature (C)"
	colHumidity    = "Humidity"
	colPressure    = "Pressure (millibars)"
	colCloudCover  = "Cloud Cover"
)

var requiredColumns = []string{colDate, colSummary, colPrecipType, colTemperature, colHumidity, colPressure, colCloudCover}

var dateLayouts = []string{
	"2006-01-02 15:04:05.000 -0700",
	"2006-01-02 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// ParseHourly reads the historical hourly CSV. Rows are sorted by time,
// empty cells take the previous row's value and rows that are still
// incomplete are dropped.
func ParseHourly(r io.Reader) ([]models.HourlyRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	type row struct {
		t      time.Time
		fields map[string]string
	}
	var rows []row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		t, ok := parseTime(cell(rec, idx[colDate]))
		if !ok {
			continue
		}
		fields := make(map[string]string, len(requiredColumns))
		for _, c := range requiredColumns[1:] {
			fields[c] = cell(rec, idx[c])
		}
		rows = append(rows, row{t: t, fields: fields})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].t.Before(rows[j].t) })

	last := make(map[string]string, len(requiredColumns))
	records := make([]models.HourlyRecord, 0, len(rows))
	for _, r := range rows {
		complete := true
		for _, c := range requiredColumns[1:] {
			if r.fields[c] == "" {
				r.fields[c] = last[c]
			} else {
				last[c] = r.fields[c]
			}
			if r.fields[c] == "" {
				complete = false
			}
		}
		if !complete {
			continue
		}

		rec := models.HourlyRecord{
			Time:       r.t,
			Summary:    r.fields[colSummary],
			PrecipType: r.fields[colPrecipType],
		}
		var perr error
		rec.Temperature, perr = parseFloat(r.fields[colTemperature], perr)
		rec.Humidity, perr = parseFloat(r.fields[colHumidity], perr)
		rec.Pressure, perr = parseFloat(r.fields[colPressure], perr)
		rec.CloudCover, perr = parseFloat(r.fields[colCloudCover], perr)
		if perr != nil {
			return nil, fmt.Errorf("row %s: %w", r.t.Format(time.RFC3339), perr)
		}
		records = append(records, rec)
	}
	return records, nil
}

func cell(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseFloat(s string, prev error) (float64, error) {
	if prev != nil {
		return 0, prev
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return f, nil
}
