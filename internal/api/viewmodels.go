package api

import (
	"time"

	"github.com/lox/ecocast/internal/forecast"
	"github.com/lox/ecocast/internal/ingest"
	"github.com/lox/ecocast/internal/models"
	"github.com/lox/ecocast/internal/regions"
	"github.com/lox/ecocast/internal/store"
)

// Map canvas size in SVG user units.
const (
	mapWidth   = 800
	mapHeight  = 800
	mapPadding = 20
)

type Feature struct {
	Title       string
	Description string
	Href        string
	Link        string
}

type IndexPage struct {
	Features []Feature
	Averages forecast.Averages
}

type ForecastPage struct {
	Source      string
	GeneratedAt time.Time
	Averages    forecast.Averages
	Rows        []forecast.Row
	Narrative   string
}

type MapPage struct {
	Width    int
	Height   int
	Shapes   []regions.Shape
	Selected string
	Result   *ingest.Result
}

// Continent is a decorative polygon on the world canvas.
type Continent struct {
	Path string
	Fill string
}

type Marker struct {
	X, Y float64
}

type WorldPage struct {
	Width      int
	Height     int
	Continents []Continent
	Marker     *Marker
	Result     *ingest.Result
}

type HealthStatus struct {
	Status         string   `json:"status"`
	ForecastSource string   `json:"forecast_source"`
	ForecastDays   int      `json:"forecast_days"`
	Errors         []string `json:"errors,omitempty"`
}

type ForecastResponse struct {
	Source      string               `json:"source"`
	GeneratedAt *time.Time           `json:"generatedAt,omitempty"`
	Averages    forecast.Averages    `json:"averages"`
	Days        []models.ForecastDay `json:"days"`
	Narrative   string               `json:"narrative,omitempty"`
}

type RegionInfo struct {
	Name   string   `json:"name"`
	Mapped bool     `json:"mapped"`
	Lat    *float64 `json:"lat,omitempty"`
	Lon    *float64 `json:"lon,omitempty"`
}

type LookupInfo struct {
	ID          int64                 `json:"id"`
	Kind        string                `json:"kind"`
	Location    string                `json:"location"`
	RequestedAt time.Time             `json:"requestedAt"`
	Sample      *models.WeatherSample `json:"sample,omitempty"`
	Error       string                `json:"error,omitempty"`
}

var features = []Feature{
	{
		Title:       "15-Day Forecast",
		Description: "Daily temperature, humidity, pressure and rain outlook with charts and a detailed table.",
		Href:        "/forecast",
		Link:        "View forecast",
	},
	{
		Title:       "India Weather Map",
		Description: "Pick a state on the map to see its current conditions.",
		Href:        "/map",
		Link:        "Open map",
	},
	{
		Title:       "World Weather",
		Description: "Click anywhere on the world map for a quick weather reading.",
		Href:        "/world",
		Link:        "Explore",
	},
}

var continents = []Continent{
	{Path: "M100 200 L300 180 L350 220 L280 280 L150 300 Z", Fill: "#22c55e"},
	{Path: "M350 150 L600 140 L650 200 L580 250 L400 260 Z", Fill: "#16a34a"},
	{Path: "M650 180 L800 170 L850 220 L780 270 L700 250 Z", Fill: "#15803d"},
	{Path: "M200 320 L400 310 L450 380 L350 420 L250 400 Z", Fill: "#166534"},
	{Path: "M750 300 L900 290 L950 350 L850 390 L800 360 Z", Fill: "#14532d"},
}

type IngestReport struct {
	Window   string               `json:"window"`
	Sources  []store.SourceHealth `json:"sources"`
	Archive  *store.ArchiveStats  `json:"archive"`
	Failures []IngestFailure      `json:"recent_failures"`
}

type IngestFailure struct {
	Source    string    `json:"source"`
	Location  string    `json:"location,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Error     string    `json:"error"`
}
