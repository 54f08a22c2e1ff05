package ingest

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lox/ecocast/internal/metrics"
	"github.com/lox/ecocast/internal/models"
)

// World canvas the click coordinates are measured against.
const (
	WorldWidth  = 1000
	WorldHeight = 500
)

var mockDescriptions = []string{"Sunny", "Cloudy", "Rainy", "Partly Cloudy"}

// Mock answers any coordinate with random plausible conditions after a
// simulated network delay.
type Mock struct {
	Latency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMock(latency time.Duration, seed uint64) *Mock {
	return &Mock{
		Latency: latency,
		rng:     rand.New(rand.NewPCG(seed, seed+1)),
	}
}

func (m *Mock) Name() string     { return "mock" }
func (m *Mock) Endpoint() string { return "mock/current" }

func (m *Mock) Current(ctx context.Context, lat, lon float64) (*Observation, error) {
	start := time.Now()
	defer func() {
		metrics.ProviderLatency.WithLabelValues(m.Name()).Observe(time.Since(start).Seconds())
	}()

	if m.Latency > 0 {
		t := time.NewTimer(m.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			metrics.ProviderCallsTotal.WithLabelValues(m.Name(), "error").Inc()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	m.mu.Lock()
	sample := models.WeatherSample{
		Location:    FormatLatLon(lat, lon),
		Temperature: math.Round(m.rng.Float64()*30 + 5),
		Humidity:    math.Round(m.rng.Float64()*80 + 20),
		Pressure:    math.Round(m.rng.Float64()*50 + 1000),
		CloudCover:  math.Round(m.rng.Float64() * 100),
		Description: mockDescriptions[m.rng.IntN(len(mockDescriptions))],
	}
	m.mu.Unlock()

	metrics.ProviderCallsTotal.WithLabelValues(m.Name(), "200").Inc()
	return &Observation{Sample: sample}, nil
}

// PixelToLatLon converts a click on an equirectangular world canvas of the
// given size into latitude and longitude.
func PixelToLatLon(x, y, width, height float64) (lat, lon float64) {
	lon = (x/width)*360 - 180
	lat = 90 - (y/height)*180
	return lat, lon
}

// FormatLatLon renders coordinates the way the world map labels a click.
func FormatLatLon(lat, lon float64) string {
	return fmt.Sprintf("%.2f°, %.2f°", lat, lon)
}
