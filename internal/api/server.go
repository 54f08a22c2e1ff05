package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/ecocast/internal/assets"
	"github.com/lox/ecocast/internal/imagegen"
	"github.com/lox/ecocast/internal/ingest"
	"github.com/lox/ecocast/internal/models"
	"github.com/lox/ecocast/internal/narrative"
	"github.com/lox/ecocast/internal/regions"
	"github.com/lox/ecocast/internal/store"
)

//go:embed static/*
var staticFS embed.FS

const defaultRegionsFile = "static/india-states.geojson"

// Config wires the server's optional collaborators.
type Config struct {
	Port string
	// ForecastAsset is a file path or URL of a forecast JSON array used when
	// the store has no generated run.
	ForecastAsset string
	// RegionsAsset overrides the embedded state outline.
	RegionsAsset string

	Loader    *assets.Loader
	Lookups   *ingest.Lookups
	Narrative *narrative.Writer
}

type Server struct {
	store     *store.Store
	port      string
	tmpl      *template.Template
	loader    *assets.Loader
	lookups   *ingest.Lookups
	narrative *narrative.Writer
	regions   *regions.Map
	charts    *imagegen.Cache

	forecastAsset  string
	assetMu        sync.Mutex
	assetRun       *models.ForecastRun
	assetCheckedAt time.Time
}

func NewServer(ctx context.Context, st *store.Store, cfg Config) (*Server, error) {
	if cfg.Loader == nil {
		cfg.Loader = assets.NewLoader()
	}
	if cfg.Lookups == nil {
		cfg.Lookups = ingest.NewLookups(st, nil, ingest.NewMock(time.Second, uint64(time.Now().UnixNano())))
	}

	var data []byte
	var err error
	if cfg.RegionsAsset != "" {
		data, err = cfg.Loader.ReadAll(ctx, cfg.RegionsAsset)
	} else {
		data, err = staticFS.ReadFile(defaultRegionsFile)
	}
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	m, err := regions.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse regions: %w", err)
	}

	return &Server{
		store:         st,
		port:          cfg.Port,
		tmpl:          newTemplates(),
		loader:        cfg.Loader,
		lookups:       cfg.Lookups,
		narrative:     cfg.Narrative,
		regions:       m,
		charts:        imagegen.NewCache(10 * time.Minute),
		forecastAsset: cfg.ForecastAsset,
	}, nil
}

func (s *Server) Handler() http.Handler {
	static, _ := fs.Sub(staticFS, "static")

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/forecast", s.handleForecast)
	mux.HandleFunc("/map", s.handleMap)
	mux.HandleFunc("/world", s.handleWorld)
	mux.HandleFunc("/world.svg", s.handleWorldSVG)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/partials/lookup", s.handleLookupPartial)
	mux.HandleFunc("/api/forecast", s.handleAPIForecast)
	mux.HandleFunc("/api/regions", s.handleAPIRegions)
	mux.HandleFunc("/api/weather", s.handleAPIWeather)
	mux.HandleFunc("/api/world", s.handleAPIWorld)
	mux.HandleFunc("/api/locate", s.handleAPILocate)
	mux.HandleFunc("/api/lookups", s.handleAPILookups)
	mux.HandleFunc("/api/ingest", s.handleAPIIngest)
	mux.HandleFunc("/charts/temperature.png", s.handleChart)
	mux.HandleFunc("/charts/rain.png", s.handleChart)
	mux.HandleFunc("/og-image.png", s.handleOGImage)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.Handle("/metrics", promhttp.Handler())
	return withRequestLog(mux)
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown", "error", err)
		}
	}()

	slog.Info("starting server", "addr", server.Addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
