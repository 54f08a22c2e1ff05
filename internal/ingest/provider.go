package ingest

import (
	"context"
	"fmt"

	"github.com/lox/ecocast/internal/models"
)

// Provider answers a single current-weather request for a coordinate.
type Provider interface {
	Name() string
	Endpoint() string
	Current(ctx context.Context, lat, lon float64) (*Observation, error)
}

// Observation is a provider response normalised to a WeatherSample.
// Raw holds the response body when the provider made a network call.
type Observation struct {
	Sample     models.WeatherSample
	Raw        []byte
	HTTPStatus int
}

// StatusError is returned for non-200 provider responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}
