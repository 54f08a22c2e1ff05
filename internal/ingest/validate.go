package ingest

import "github.com/lox/ecocast/internal/models"

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagCloudInvalid       = "cloud_cover_invalid"
	FlagNoDescription      = "description_missing"
)

// ValidateSample flags provider values that are physically implausible.
// Flagged samples are still shown; the flags feed logs and metrics.
func ValidateSample(s models.WeatherSample) []string {
	var flags []string

	if s.Temperature < -90 || s.Temperature > 60 {
		flags = append(flags, FlagTempOutOfRange)
	}
	if s.Humidity < 0 || s.Humidity > 100 {
		flags = append(flags, FlagHumidityInvalid)
	}
	if s.Pressure < 870 || s.Pressure > 1085 {
		flags = append(flags, FlagPressureOutOfRange)
	}
	if s.CloudCover < 0 || s.CloudCover > 100 {
		flags = append(flags, FlagCloudInvalid)
	}
	if s.Description == "" {
		flags = append(flags, FlagNoDescription)
	}

	return flags
}
