package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/ecocast/internal/httputil"
	"github.com/lox/ecocast/internal/metrics"
	"github.com/lox/ecocast/internal/models"
)

const (
	DefaultOWMBaseURL = "https://api.openweathermap.org"
	owmEndpoint       = "data/2.5/weather"
)

// OpenWeatherMap fetches current conditions from the OpenWeatherMap API.
// By default a failed call is final; Retries enables exponential backoff for
// rate limits and server errors.
type OpenWeatherMap struct {
	apiKey  string
	baseURL string
	client  *http.Client
	Retries uint64
}

func NewOpenWeatherMap(apiKey, baseURL string) *OpenWeatherMap {
	if baseURL == "" {
		baseURL = DefaultOWMBaseURL
	}
	return &OpenWeatherMap{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  httputil.NewClient(),
	}
}

func (o *OpenWeatherMap) Name() string     { return "owm" }
func (o *OpenWeatherMap) Endpoint() string { return owmEndpoint }

type owmResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp     float64 `json:"temp"`
		Pressure float64 `json:"pressure"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

func (o *OpenWeatherMap) weatherURL(lat, lon float64) string {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")
	return o.baseURL + "/" + owmEndpoint + "?" + q.Encode()
}

func (o *OpenWeatherMap) Current(ctx context.Context, lat, lon float64) (*Observation, error) {
	start := time.Now()
	obs := &Observation{}

	operation := func() error {
		req, err := httputil.NewGetRequest(ctx, o.weatherURL(lat, lon))
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := o.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch weather: %w", err))
		}
		defer resp.Body.Close()

		obs.HTTPStatus = resp.StatusCode
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		obs.Raw = body

		if resp.StatusCode != http.StatusOK {
			serr := &StatusError{Code: resp.StatusCode, Body: string(body)}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if o.Retries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 250 * time.Millisecond
		exp.MaxElapsedTime = 30 * time.Second
		bo = backoff.WithMaxRetries(exp, o.Retries)
	}
	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))
	metrics.ProviderLatency.WithLabelValues(o.Name()).Observe(time.Since(start).Seconds())
	metrics.ProviderCallsTotal.WithLabelValues(o.Name(), statusLabel(obs.HTTPStatus)).Inc()
	if err != nil {
		return obs, err
	}

	sample, err := parseOWM(obs.Raw)
	if err != nil {
		return obs, err
	}
	obs.Sample = sample
	return obs, nil
}

func parseOWM(body []byte) (models.WeatherSample, error) {
	var data owmResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return models.WeatherSample{}, fmt.Errorf("unmarshal: %w", err)
	}
	if len(data.Weather) == 0 {
		return models.WeatherSample{}, errors.New("response has no weather conditions")
	}
	return models.WeatherSample{
		Location:    data.Name,
		Temperature: data.Main.Temp,
		Humidity:    data.Main.Humidity,
		Pressure:    data.Main.Pressure,
		CloudCover:  data.Clouds.All,
		Description: data.Weather[0].Description,
	}, nil
}

func statusLabel(code int) string {
	if code == 0 {
		return "error"
	}
	return strconv.Itoa(code)
}
