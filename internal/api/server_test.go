package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lox/ecocast/internal/api"
	"github.com/lox/ecocast/internal/ingest"
	"github.com/lox/ecocast/internal/models"
	"github.com/lox/ecocast/internal/store"
)

type fakeProvider struct {
	calls  int
	sample models.WeatherSample
	err    error
}

func (p *fakeProvider) Name() string     { return "fake" }
func (p *fakeProvider) Endpoint() string { return "fake/current" }
func (p *fakeProvider) Current(ctx context.Context, lat, lon float64) (*ingest.Observation, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return &ingest.Observation{Sample: p.sample, HTTPStatus: http.StatusOK}, nil
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func newTestServer(t *testing.T, st *store.Store, region ingest.Provider) *api.Server {
	t.Helper()
	srv, err := api.NewServer(context.Background(), st, api.Config{
		Port:    "0",
		Lookups: ingest.NewLookups(st, region, ingest.NewMock(0, 1)),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func get(t *testing.T, srv *api.Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", target, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, setupTestStore(t), nil)

	w := get(t, srv, "/health")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var resp api.HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", resp.Status)
	}
	if resp.ForecastSource != api.SourceEmbedded {
		t.Errorf("forecast source = %q, want %q", resp.ForecastSource, api.SourceEmbedded)
	}
	if resp.ForecastDays != 15 {
		t.Errorf("forecast days = %d, want 15", resp.ForecastDays)
	}
}

func TestIndexPage(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := get(t, srv, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{`href="/forecast"`, `href="/map"`, `href="/world"`, "15 Days", "Real-time", "ML Powered"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %s", want)
		}
	}

	if w := get(t, srv, "/nope"); w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", w.Code)
	}
}

func TestForecastPage_EmbeddedAverages(t *testing.T) {
	srv := newTestServer(t, setupTestStore(t), nil)

	w := get(t, srv, "/forecast")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()

	for _, want := range []string{
		"27.0°C",
		"72.7%",
		"53.0%",
		"986 mb",
		"Mon, Jun 23",
		"/charts/temperature.png",
		"/charts/rain.png",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("forecast page missing %q", want)
		}
	}
}

func TestForecastPage_PrefersLatestRun(t *testing.T) {
	st := setupTestStore(t)
	run := &models.ForecastRun{
		GeneratedAt: time.Date(2025, 7, 1, 6, 0, 0, 0, time.UTC),
		Source:      "generator",
		Days: []models.ForecastDay{
			{Date: "2025-07-01", Temperature: 31, Humidity: 0.5, Pressure: 1000, CloudCover: 0.2, RainChance: 10, Summary: "Clear"},
			{Date: "2025-07-02", Temperature: 33, Humidity: 0.7, Pressure: 1002, CloudCover: 0.3, RainChance: 20, Summary: "Clear"},
		},
	}
	if err := st.SaveForecastRun(run); err != nil {
		t.Fatalf("SaveForecastRun: %v", err)
	}
	srv := newTestServer(t, st, nil)

	body := get(t, srv, "/forecast").Body.String()
	for _, want := range []string{"32.0°C", "15.0%", "60.0%", "1001 mb", "Tue, Jul 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("forecast page missing %q", want)
		}
	}
	if strings.Contains(body, "27.0°C") {
		t.Error("forecast page still shows embedded averages")
	}
}

func TestLookupPartial(t *testing.T) {
	tests := []struct {
		name      string
		region    string
		provider  *fakeProvider
		wantCalls int
		want      []string
	}{
		{
			name:      "unmapped region",
			region:    "Rajasthan",
			provider:  &fakeProvider{},
			wantCalls: 0,
			want:      []string{"Rajasthan Weather", ingest.MsgNoCoordinates},
		},
		{
			name:      "fetch failure",
			region:    "Karnataka",
			provider:  &fakeProvider{err: errors.New("connection refused")},
			wantCalls: 1,
			want:      []string{"Karnataka Weather", ingest.MsgFetchFailed},
		},
		{
			name:   "success",
			region: "Karnataka",
			provider: &fakeProvider{sample: models.WeatherSample{
				Location: "Bengaluru", Temperature: 24.5, Humidity: 78, Pressure: 1011, CloudCover: 40, Description: "scattered clouds",
			}},
			wantCalls: 1,
			want: []string{
				"Karnataka Weather",
				"Temperature: 24.5°C",
				"Condition: scattered clouds",
				"Humidity: 78%",
				"Pressure: 1011 hPa",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, setupTestStore(t), tt.provider)

			w := get(t, srv, "/partials/lookup?region="+strings.ReplaceAll(tt.region, " ", "+"))
			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			body := w.Body.String()
			for _, want := range tt.want {
				if !strings.Contains(body, want) {
					t.Errorf("partial missing %q in:\n%s", want, body)
				}
			}
			if tt.provider.calls != tt.wantCalls {
				t.Errorf("provider calls = %d, want %d", tt.provider.calls, tt.wantCalls)
			}
			if strings.Contains(body, `class="error"`) && strings.Contains(body, "Temperature:") {
				t.Error("panel shows both an error and a sample")
			}
		})
	}
}

func TestLookupPartial_MissingRegion(t *testing.T) {
	srv := newTestServer(t, nil, &fakeProvider{})
	if w := get(t, srv, "/partials/lookup"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestMapPage(t *testing.T) {
	p := &fakeProvider{}
	srv := newTestServer(t, nil, p)

	w := get(t, srv, "/map")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<path") || !strings.Contains(body, "Karnataka") {
		t.Error("map page missing state outlines")
	}
	if !strings.Contains(body, "Click on a state to view weather data") {
		t.Error("map page missing empty state")
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times without a selection", p.calls)
	}

	// Non-JS fallback renders the result inline.
	body = get(t, srv, "/map?region=Rajasthan").Body.String()
	if !strings.Contains(body, ingest.MsgNoCoordinates) {
		t.Error("map page missing unmapped region message")
	}
}

func TestWorldPage(t *testing.T) {
	st := setupTestStore(t)
	srv := newTestServer(t, st, nil)

	body := get(t, srv, "/world").Body.String()
	if !strings.Contains(body, "Click on the map to view weather data") {
		t.Error("world page missing empty state")
	}

	w := get(t, srv, "/world?pt.x=500&pt.y=250")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body = w.Body.String()
	for _, want := range []string{"0.00°, 0.00°", "Temperature", "Cloud Cover", "Conditions", "/world.svg?x=500"} {
		if !strings.Contains(body, want) {
			t.Errorf("world page missing %q", want)
		}
	}

	lookups, err := st.RecentLookups(10)
	if err != nil {
		t.Fatalf("RecentLookups: %v", err)
	}
	if len(lookups) != 1 || lookups[0].Kind != ingest.KindWorld {
		t.Errorf("lookups = %+v, want one world lookup", lookups)
	}
}

func TestWorldSVG(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := get(t, srv, "/world.svg")
	if ct := w.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if strings.Count(body, "<path") != 5 {
		t.Errorf("expected 5 continents, got %d", strings.Count(body, "<path"))
	}
	if strings.Contains(body, "<circle") {
		t.Error("marker drawn without a point")
	}

	body = get(t, srv, "/world.svg?x=120&y=80").Body.String()
	if !strings.Contains(body, `cx="120.0"`) || !strings.Contains(body, `fill="#ef4444"`) {
		t.Errorf("marker missing:\n%s", body)
	}

	// Off-canvas points are ignored.
	body = get(t, srv, "/world.svg?x=5000&y=80").Body.String()
	if strings.Contains(body, "<circle") {
		t.Error("marker drawn for off-canvas point")
	}
}

func TestCharts(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, path := range []string{"/charts/temperature.png", "/charts/rain.png", "/og-image.png"} {
		for range 2 {
			w := get(t, srv, path)
			if w.Code != http.StatusOK {
				t.Fatalf("%s: status %d", path, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("%s: Content-Type = %q", path, ct)
			}
			if _, err := png.Decode(bytes.NewReader(w.Body.Bytes())); err != nil {
				t.Errorf("%s: decode: %v", path, err)
			}
		}
	}
}

func TestAPIForecast(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := get(t, srv, "/api/forecast")
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp api.ForecastResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Source != api.SourceEmbedded {
		t.Errorf("source = %q", resp.Source)
	}
	if len(resp.Days) != 15 || resp.Days[0].Date != "2025-06-23" {
		t.Errorf("days = %d starting %v", len(resp.Days), resp.Days)
	}
	if resp.Averages.Count != 15 {
		t.Errorf("averages count = %d", resp.Averages.Count)
	}
	if resp.GeneratedAt != nil {
		t.Error("embedded forecast should have no generation time")
	}
}

func newAssetServer(t *testing.T, asset string) *api.Server {
	t.Helper()
	srv, err := api.NewServer(context.Background(), nil, api.Config{
		Port:          "0",
		ForecastAsset: asset,
		Lookups:       ingest.NewLookups(nil, nil, ingest.NewMock(0, 1)),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv
}

func forecastSource(t *testing.T, srv *api.Server) api.ForecastResponse {
	t.Helper()
	var resp api.ForecastResponse
	if err := json.NewDecoder(get(t, srv, "/api/forecast").Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestForecastAsset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.json")
	body := `[{"date":"2025-07-01","temperature":31,"humidity":0.5,"pressure":1002,"cloudCover":0.4,"rainChance":20,"summary":"Partly Cloudy"}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := forecastSource(t, newAssetServer(t, path))
	if resp.Source != api.SourceFile || len(resp.Days) != 1 || resp.Days[0].Date != "2025-07-01" {
		t.Errorf("source=%q days=%v", resp.Source, resp.Days)
	}
}

func TestForecastAsset_EmptyFallsBackToEmbedded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.json")
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := newAssetServer(t, path)

	resp := forecastSource(t, srv)
	if resp.Source != api.SourceEmbedded || len(resp.Days) != 15 {
		t.Errorf("source=%q days=%d, want embedded 15", resp.Source, len(resp.Days))
	}
	for _, chart := range []string{"/charts/temperature.png", "/charts/rain.png"} {
		if w := get(t, srv, chart); w.Code != http.StatusOK {
			t.Errorf("%s status = %d", chart, w.Code)
		}
	}
}

func TestForecastAsset_FailedLoadNotRetriedPerRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast.json")
	srv := newAssetServer(t, path)

	if resp := forecastSource(t, srv); resp.Source != api.SourceEmbedded {
		t.Fatalf("missing asset: source = %q", resp.Source)
	}

	body := `[{"date":"2025-07-01","temperature":31,"humidity":0.5,"pressure":1002,"cloudCover":0.4,"rainChance":20,"summary":"Clear"}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	// The failed attempt is remembered until the asset TTL passes.
	if resp := forecastSource(t, srv); resp.Source != api.SourceEmbedded {
		t.Errorf("source = %q, want embedded until the next check", resp.Source)
	}
}

func TestAPIRegions(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	var regions []api.RegionInfo
	if err := json.NewDecoder(get(t, srv, "/api/regions").Body).Decode(&regions); err != nil {
		t.Fatalf("decode: %v", err)
	}
	mapped := 0
	for _, r := range regions {
		if r.Mapped {
			mapped++
			if r.Lat == nil || r.Lon == nil {
				t.Errorf("%s mapped without coordinates", r.Name)
			}
		}
	}
	if mapped != 5 {
		t.Errorf("mapped regions = %d, want 5", mapped)
	}
}

func TestAPIWeather(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		provider   *fakeProvider
		wantStatus int
		wantError  string
	}{
		{"missing region", "/api/weather", &fakeProvider{}, http.StatusBadRequest, "region required"},
		{"unmapped", "/api/weather?region=Rajasthan", &fakeProvider{}, http.StatusNotFound, ingest.MsgNoCoordinates},
		{"fetch failure", "/api/weather?region=Delhi", &fakeProvider{err: errors.New("boom")}, http.StatusBadGateway, ingest.MsgFetchFailed},
		{"ok", "/api/weather?region=Delhi", &fakeProvider{sample: models.WeatherSample{Temperature: 35, Description: "haze"}}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil, tt.provider)

			w := get(t, srv, tt.target)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body struct {
				Error  string                `json:"error"`
				Sample *models.WeatherSample `json:"sample"`
			}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("error = %q, want %q", body.Error, tt.wantError)
			}
			if tt.wantError == "" && (body.Sample == nil || body.Sample.Location != "Delhi") {
				t.Errorf("sample = %+v", body.Sample)
			}
		})
	}
}

func TestAPIWorld(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	if w := get(t, srv, "/api/world?x=-1&y=10"); w.Code != http.StatusBadRequest {
		t.Errorf("off-canvas status = %d, want 400", w.Code)
	}

	w := get(t, srv, "/api/world?x=0&y=0")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var res ingest.Result
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Location != "90.00°, -180.00°" || res.Sample == nil {
		t.Errorf("result = %+v", res)
	}
}

func TestAPILocate(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := get(t, srv, "/api/locate?lat=12.9716&lon=77.5946")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var info api.RegionInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Name != "Karnataka" || !info.Mapped {
		t.Errorf("locate = %+v", info)
	}

	if w := get(t, srv, "/api/locate?lat=0&lon=0"); w.Code != http.StatusNotFound {
		t.Errorf("ocean status = %d, want 404", w.Code)
	}
	if w := get(t, srv, "/api/locate?lat=abc&lon=0"); w.Code != http.StatusBadRequest {
		t.Errorf("bad lat status = %d, want 400", w.Code)
	}
}

func TestAPILookups(t *testing.T) {
	st := setupTestStore(t)
	srv := newTestServer(t, st, &fakeProvider{})

	get(t, srv, "/partials/lookup?region=Rajasthan")
	get(t, srv, "/api/world?x=10&y=10")

	var lookups []api.LookupInfo
	if err := json.NewDecoder(get(t, srv, "/api/lookups").Body).Decode(&lookups); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(lookups) != 2 {
		t.Fatalf("lookups = %d, want 2", len(lookups))
	}
	var sawUnmapped bool
	for _, l := range lookups {
		if l.Kind == ingest.KindRegion && l.Error == ingest.MsgNoCoordinates {
			sawUnmapped = true
		}
	}
	if !sawUnmapped {
		t.Errorf("unmapped region lookup not recorded: %+v", lookups)
	}

	if w := get(t, srv, "/api/lookups?limit=0"); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0 status = %d, want 400", w.Code)
	}
}

func TestStaticAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	if w := get(t, srv, "/static/style.css"); w.Code != http.StatusOK {
		t.Errorf("style.css status = %d", w.Code)
	}
	if w := get(t, srv, "/static/india-states.geojson"); w.Code != http.StatusOK {
		t.Errorf("geojson status = %d", w.Code)
	}

	get(t, srv, "/forecast")
	w := get(t, srv, "/metrics")
	if !strings.Contains(w.Body.String(), "ecocast_page_renders_total") {
		t.Error("metrics missing page render counter")
	}
}

func TestRequestID(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := get(t, srv, "/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing generated request ID")
	}

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("request ID = %q, want abc-123", got)
	}
}

func TestAPIIngest(t *testing.T) {
	st := setupTestStore(t)
	srv := newTestServer(t, st, &fakeProvider{err: errors.New("timeout")})

	get(t, srv, "/api/weather?region=Karnataka")
	get(t, srv, "/api/world?x=100&y=100")

	w := get(t, srv, "/api/ingest")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var report api.IngestReport
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(report.Sources) != 2 {
		t.Fatalf("sources = %+v, want fake and mock", report.Sources)
	}
	for _, h := range report.Sources {
		switch h.Source {
		case "fake":
			if h.Failed != 1 {
				t.Errorf("fake failed = %d, want 1", h.Failed)
			}
		case "mock":
			if h.Failed != 0 || h.Runs != 1 {
				t.Errorf("mock health = %+v", h)
			}
		}
	}
	if len(report.Failures) != 1 || report.Failures[0].Location != "Karnataka" {
		t.Errorf("failures = %+v", report.Failures)
	}

	// A failed lookup in the last hour degrades health.
	var health api.HealthStatus
	json.NewDecoder(get(t, srv, "/health").Body).Decode(&health)
	if health.Status != "degraded" || len(health.Errors) != 1 {
		t.Errorf("health = %+v", health)
	}

	if w := get(t, newTestServer(t, nil, nil), "/api/ingest"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no store status = %d, want 503", w.Code)
	}
}
