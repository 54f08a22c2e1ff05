package forecast

// Daily summaries, from wettest to clearest.
const (
	SummaryHeavyRain    = "Heavy Rain Expected"
	SummaryRainLikely   = "Rain Likely"
	SummaryShowers      = "Scattered Showers"
	SummaryMostlyCloudy = "Mostly Cloudy"
	SummaryPartlyCloudy = "Partly Cloudy"
	SummaryClear        = "Clear Skies"
)

// DailySummary describes a day from its mean rain chance (percent) and mean
// cloud cover (fraction). Rain takes precedence over cloud.
func DailySummary(rainChance, cloudCover float64) string {
	switch {
	case rainChance > 80:
		return SummaryHeavyRain
	case rainChance > 60:
		return SummaryRainLikely
	case rainChance > 30:
		return SummaryShowers
	case cloudCover > 0.6:
		return SummaryMostlyCloudy
	case cloudCover > 0.4:
		return SummaryPartlyCloudy
	default:
		return SummaryClear
	}
}
