package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/ecocast/internal/forecast"
	"github.com/lox/ecocast/internal/ingest"
	"github.com/lox/ecocast/internal/metrics"
	"github.com/lox/ecocast/internal/models"
	"github.com/lox/ecocast/internal/regions"
)

const narrativeTimeout = 15 * time.Second

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	run := s.currentForecast(r.Context())
	s.render(w, "index.html", "index", IndexPage{
		Features: features,
		Averages: forecast.Summarize(run.Days),
	})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	run := s.currentForecast(r.Context())

	s.render(w, "forecast.html", "forecast", ForecastPage{
		Source:      run.Source,
		GeneratedAt: run.GeneratedAt,
		Averages:    forecast.Summarize(run.Days),
		Rows:        forecast.Rows(run.Days),
		Narrative:   s.narrativeFor(r.Context(), run),
	})
}

// narrativeFor returns the written outlook, or "" when it is disabled or
// unavailable.
func (s *Server) narrativeFor(ctx context.Context, run *models.ForecastRun) string {
	if s.narrative == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, narrativeTimeout)
	defer cancel()

	text, err := s.narrative.ForRun(ctx, run)
	if err != nil {
		slog.Warn("narrative unavailable", "source", run.Source, "error", err)
		return ""
	}
	return text
}

// handleMap renders the state map. Without JavaScript each state links back
// here with ?region= and the result is rendered server side.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	page := MapPage{
		Width:    mapWidth,
		Height:   mapHeight,
		Shapes:   s.regions.Shapes(s.projection()),
		Selected: r.URL.Query().Get("region"),
	}
	if page.Selected != "" {
		res := s.lookups.Region(r.Context(), page.Selected)
		page.Result = &res
	}
	s.render(w, "map.html", "map", page)
}

func (s *Server) projection() regions.Projection {
	return regions.NewProjection(s.regions.Bound, mapWidth, mapHeight, mapPadding)
}

// handleLookupPartial answers an htmx request from the map with just the
// result panel.
func (s *Server) handleLookupPartial(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("region")
	if name == "" {
		http.Error(w, "region required", http.StatusBadRequest)
		return
	}
	res := s.lookups.Region(r.Context(), name)
	s.render(w, "lookup.html", "lookup", &res)
}

// handleWorld renders the world map. The map is an image submit button, so a
// click arrives as pt.x and pt.y in canvas pixels.
func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	page := WorldPage{
		Width:      ingest.WorldWidth,
		Height:     ingest.WorldHeight,
		Continents: continents,
	}
	if x, y, ok := worldPoint(r, "pt.x", "pt.y"); ok {
		page.Marker = &Marker{X: x, Y: y}
		res := s.lookups.World(r.Context(), x, y)
		page.Result = &res
	}
	s.render(w, "world.html", "world", page)
}

func (s *Server) handleWorldSVG(w http.ResponseWriter, r *http.Request) {
	page := WorldPage{
		Width:      ingest.WorldWidth,
		Height:     ingest.WorldHeight,
		Continents: continents,
	}
	if x, y, ok := worldPoint(r, "x", "y"); ok {
		page.Marker = &Marker{X: x, Y: y}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if err := s.tmpl.ExecuteTemplate(w, "world.svg", page); err != nil {
		slog.Error("render world.svg", "error", err)
	}
}

// worldPoint reads a click position, rejecting anything off the canvas.
func worldPoint(r *http.Request, xKey, yKey string) (float64, float64, bool) {
	q := r.URL.Query()
	x, err := strconv.ParseFloat(q.Get(xKey), 64)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.ParseFloat(q.Get(yKey), 64)
	if err != nil {
		return 0, 0, false
	}
	if x < 0 || x > ingest.WorldWidth || y < 0 || y > ingest.WorldHeight {
		return 0, 0, false
	}
	return x, y, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	run := s.currentForecast(r.Context())
	status := HealthStatus{
		Status:         "ok",
		ForecastSource: run.Source,
		ForecastDays:   len(run.Days),
	}

	if s.store != nil {
		if err := s.store.Ping(); err != nil {
			status.Status = "error"
			status.Errors = append(status.Errors, "database: "+err.Error())
		} else if failed, err := s.store.RecentIngestErrors(5); err == nil {
			for _, run := range failed {
				if run.ErrorMessage.Valid && time.Since(run.StartedAt) < time.Hour {
					status.Errors = append(status.Errors, run.Source+": "+run.ErrorMessage.String)
				}
			}
		}
	}
	if len(status.Errors) > 0 && status.Status == "ok" {
		status.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if status.Status == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(status)
}

func (s *Server) render(w http.ResponseWriter, name, page string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("template error", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
	metrics.PageRendersTotal.WithLabelValues(page).Inc()
}
