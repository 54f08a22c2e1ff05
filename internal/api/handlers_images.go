package api

import (
	"log/slog"
	"net/http"

	"github.com/lox/ecocast/internal/forecast"
	"github.com/lox/ecocast/internal/imagegen"
	"github.com/lox/ecocast/internal/metrics"
)

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	run := s.currentForecast(r.Context())

	var (
		name   string
		series forecast.Series
		style  imagegen.ChartStyle
	)
	switch r.URL.Path {
	case "/charts/temperature.png":
		name, series, style = "temperature", forecast.TemperatureSeries(run.Days), imagegen.TemperatureStyle
	case "/charts/rain.png":
		name, series, style = "rain", forecast.RainSeries(run.Days), imagegen.RainStyle
	default:
		http.NotFound(w, r)
		return
	}

	key := imagegen.Key(name+":"+run.Source, series.Values)
	if data, ok := s.charts.Get(key); ok {
		metrics.ChartRendersTotal.WithLabelValues(name, "hit").Inc()
		writePNG(w, data)
		return
	}

	data, err := imagegen.RenderLineChart(series, style)
	if err != nil {
		slog.Error("failed to render chart", "chart", name, "error", err)
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	s.charts.Set(key, data)
	metrics.ChartRendersTotal.WithLabelValues(name, "miss").Inc()
	writePNG(w, data)
}

func (s *Server) handleOGImage(w http.ResponseWriter, r *http.Request) {
	run := s.currentForecast(r.Context())
	avg := forecast.Summarize(run.Days)

	key := imagegen.Key("og", []float64{avg.Temperature, avg.RainChance, avg.Humidity, avg.Pressure})
	if data, ok := s.charts.Get(key); ok {
		metrics.ChartRendersTotal.WithLabelValues("og", "hit").Inc()
		writePNG(w, data)
		return
	}

	data, err := imagegen.GenerateOGImage(avg)
	if err != nil {
		slog.Error("failed to generate og image", "error", err)
		http.Error(w, "failed to generate image", http.StatusInternalServerError)
		return
	}
	s.charts.Set(key, data)
	metrics.ChartRendersTotal.WithLabelValues("og", "miss").Inc()
	writePNG(w, data)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}
