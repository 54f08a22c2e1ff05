package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/ecocast/internal/forecast"
	"github.com/lox/ecocast/internal/ingest"
	"github.com/lox/ecocast/internal/regions"
)

const (
	defaultLookupLimit = 20
	maxLookupLimit     = 100
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleAPIForecast(w http.ResponseWriter, r *http.Request) {
	run := s.currentForecast(r.Context())

	resp := ForecastResponse{
		Source:    run.Source,
		Averages:  forecast.Summarize(run.Days),
		Days:      run.Days,
		Narrative: s.narrativeFor(r.Context(), run),
	}
	if !run.GeneratedAt.IsZero() {
		resp.GeneratedAt = &run.GeneratedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIRegions(w http.ResponseWriter, r *http.Request) {
	names := s.regions.Names()
	out := make([]RegionInfo, 0, len(names))
	for _, name := range names {
		info := RegionInfo{Name: name}
		if c, ok := regions.Lookup(name); ok {
			info.Mapped = true
			info.Lat, info.Lon = &c.Lat, &c.Lon
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAPIWeather looks up a state. The body is always a lookup result; the
// status says whether it carries a sample.
func (s *Server) handleAPIWeather(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("region")
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "region required")
		return
	}

	res := s.lookups.Region(r.Context(), name)
	writeJSON(w, resultStatus(res), res)
}

func (s *Server) handleAPIWorld(w http.ResponseWriter, r *http.Request) {
	x, y, ok := worldPoint(r, "x", "y")
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "x and y must be within the world canvas")
		return
	}

	res := s.lookups.World(r.Context(), x, y)
	writeJSON(w, resultStatus(res), res)
}

func resultStatus(res ingest.Result) int {
	switch res.Error {
	case "":
		return http.StatusOK
	case ingest.MsgNoCoordinates:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

// handleAPILocate resolves a coordinate to the state containing it.
func (s *Server) handleAPILocate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid lat")
		return
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid lon")
		return
	}

	region, ok := s.regions.Locate(lon, lat)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no region at that point")
		return
	}
	info := RegionInfo{Name: region.Name}
	if c, ok := regions.Lookup(region.Name); ok {
		info.Mapped = true
		info.Lat, info.Lon = &c.Lat, &c.Lon
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAPILookups(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []LookupInfo{})
		return
	}

	limit := defaultLookupLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxLookupLimit)
	}

	lookups, err := s.store.RecentLookups(limit)
	if err != nil {
		slog.Error("failed to list lookups", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to list lookups")
		return
	}

	out := make([]LookupInfo, 0, len(lookups))
	for _, l := range lookups {
		info := LookupInfo{
			ID:          l.ID,
			Kind:        l.Kind,
			Location:    l.Location,
			RequestedAt: l.RequestedAt,
			Sample:      l.Sample,
		}
		if l.Error.Valid {
			info.Error = l.Error.String
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

const ingestWindow = 7 * 24 * time.Hour

// handleAPIIngest reports provider and generator health from the audit log.
func (s *Server) handleAPIIngest(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	report := IngestReport{Window: ingestWindow.String(), Failures: []IngestFailure{}}

	var err error
	if report.Sources, err = s.store.IngestHealth(ingestWindow); err != nil {
		slog.Error("failed to load ingest health", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load ingest health")
		return
	}
	if report.Archive, err = s.store.RawPayloadStats(); err != nil {
		slog.Error("failed to load archive stats", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load archive stats")
		return
	}

	failed, err := s.store.RecentIngestErrors(10)
	if err != nil {
		slog.Error("failed to load ingest errors", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to load ingest errors")
		return
	}
	for _, run := range failed {
		report.Failures = append(report.Failures, IngestFailure{
			Source:    run.Source,
			Location:  run.LocationID.String,
			StartedAt: run.StartedAt,
			Error:     run.ErrorMessage.String,
		})
	}

	writeJSON(w, http.StatusOK, report)
}
