package forecast

// Palette colours a summary badge.
type Palette struct {
	Background string
	Text       string
	Accent     string
}

// DefaultPalette is used for summaries outside the generator's vocabulary.
var DefaultPalette = Palette{
	Background: "#eef2f7",
	Text:       "#334155",
	Accent:     "#64748b",
}

var palettes = map[string]Palette{
	SummaryHeavyRain: {
		Background: "#dbe4ff", // deep blue wash
		Text:       "#1e3a8a",
		Accent:     "#1d4ed8",
	},
	SummaryRainLikely: {
		Background: "#e0efff",
		Text:       "#1e40af",
		Accent:     "#2563eb",
	},
	SummaryShowers: {
		Background: "#e0f7fa",
		Text:       "#155e75",
		Accent:     "#0891b2",
	},
	SummaryMostlyCloudy: {
		Background: "#e5e7eb",
		Text:       "#374151",
		Accent:     "#6b7280",
	},
	SummaryPartlyCloudy: {
		Background: "#f1f5f9",
		Text:       "#475569",
		Accent:     "#94a3b8",
	},
	SummaryClear: {
		Background: "#fef9c3", // sunny
		Text:       "#854d0e",
		Accent:     "#eab308",
	},
}

// PaletteFor returns the badge colours for a daily summary.
func PaletteFor(summary string) Palette {
	if p, ok := palettes[summary]; ok {
		return p
	}
	return DefaultPalette
}
