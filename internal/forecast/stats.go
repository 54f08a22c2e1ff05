package forecast

import (
	"fmt"

	"github.com/lox/ecocast/internal/models"
)

// Averages are the forecast-wide means shown on the summary cards.
// Humidity is a fraction, RainChance a percentage.
type Averages struct {
	Count       int     `json:"count"`
	Temperature float64 `json:"temperature"`
	RainChance  float64 `json:"rainChance"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

// Summarize averages the forecast. An empty forecast yields zero values.
func Summarize(days []models.ForecastDay) Averages {
	a := Averages{Count: len(days)}
	if len(days) == 0 {
		return a
	}
	for _, d := range days {
		a.Temperature += d.Temperature
		a.RainChance += d.RainChance
		a.Humidity += d.Humidity
		a.Pressure += d.Pressure
	}
	n := float64(len(days))
	a.Temperature /= n
	a.RainChance /= n
	a.Humidity /= n
	a.Pressure /= n
	return a
}

func (a Averages) TemperatureText() string { return fmt.Sprintf("%.1f°C", a.Temperature) }
func (a Averages) RainChanceText() string  { return fmt.Sprintf("%.1f%%", a.RainChance) }
func (a Averages) HumidityText() string    { return fmt.Sprintf("%.1f%%", a.Humidity*100) }
func (a Averages) PressureText() string    { return fmt.Sprintf("%.0f mb", a.Pressure) }

// Row is one formatted line of the detailed forecast table.
type Row struct {
	Date        string
	Temperature string
	Humidity    string
	Pressure    string
	CloudCover  string
	RainChance  string
	Summary     string
	Palette     Palette
}

// Rows formats the forecast for the detailed table.
func Rows(days []models.ForecastDay) []Row {
	rows := make([]Row, 0, len(days))
	for _, d := range days {
		date := d.Date
		if t := d.Time(); !t.IsZero() {
			date = t.Format("Mon, Jan 2")
		}
		rows = append(rows, Row{
			Date:        date,
			Temperature: fmt.Sprintf("%.1f", d.Temperature),
			Humidity:    fmt.Sprintf("%.1f", d.Humidity*100),
			Pressure:    fmt.Sprintf("%.1f", d.Pressure),
			CloudCover:  fmt.Sprintf("%.1f", d.CloudCover*100),
			RainChance:  fmt.Sprintf("%.1f", d.RainChance),
			Summary:     d.Summary,
			Palette:     PaletteFor(d.Summary),
		})
	}
	return rows
}

// Series is a named line for a chart.
type Series struct {
	Name   string
	Unit   string
	Labels []string
	Values []float64
}

func TemperatureSeries(days []models.ForecastDay) Series {
	return series("Temperature", "°C", days, func(d models.ForecastDay) float64 { return d.Temperature })
}

func RainSeries(days []models.ForecastDay) Series {
	return series("Rain Probability", "%", days, func(d models.ForecastDay) float64 { return d.RainChance })
}

func series(name, unit string, days []models.ForecastDay, value func(models.ForecastDay) float64) Series {
	s := Series{Name: name, Unit: unit}
	for _, d := range days {
		label := d.Date
		if t := d.Time(); !t.IsZero() {
			label = t.Format("Jan 2")
		}
		s.Labels = append(s.Labels, label)
		s.Values = append(s.Values, value(d))
	}
	return s
}
