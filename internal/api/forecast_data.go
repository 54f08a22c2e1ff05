package api

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/lox/ecocast/internal/dataset"
	"github.com/lox/ecocast/internal/models"
)

const (
	SourceEmbedded = "embedded"
	SourceFile     = "file"

	assetTTL = 5 * time.Minute
)

// currentForecast returns the forecast the views render: the latest generated
// run, then the configured asset, then the embedded dataset.
func (s *Server) currentForecast(ctx context.Context) *models.ForecastRun {
	if s.store != nil {
		run, err := s.store.LatestForecastRun()
		if err != nil {
			slog.Warn("failed to load latest forecast run", "error", err)
		} else if run != nil && len(run.Days) > 0 {
			return run
		}
	}

	if s.forecastAsset != "" {
		if run := s.assetForecast(ctx); run != nil && len(run.Days) > 0 {
			return run
		}
	}

	return &models.ForecastRun{Source: SourceEmbedded, Days: dataset.DefaultForecast()}
}

// assetForecast loads the configured forecast asset at most once per
// assetTTL. Failed attempts count too, so an unreachable asset is not
// retried on every request.
func (s *Server) assetForecast(ctx context.Context) *models.ForecastRun {
	s.assetMu.Lock()
	defer s.assetMu.Unlock()

	if !s.assetCheckedAt.IsZero() && time.Since(s.assetCheckedAt) < assetTTL {
		return s.assetRun
	}
	s.assetCheckedAt = time.Now()

	data, err := s.loader.ReadAll(ctx, s.forecastAsset)
	if err != nil {
		slog.Warn("failed to load forecast asset", "location", s.forecastAsset, "error", err)
		return s.assetRun
	}
	days, err := dataset.ParseForecast(bytes.NewReader(data))
	if err != nil {
		slog.Warn("failed to parse forecast asset", "location", s.forecastAsset, "error", err)
		return s.assetRun
	}
	if len(days) == 0 {
		slog.Warn("forecast asset has no days", "location", s.forecastAsset)
		return s.assetRun
	}

	s.assetRun = &models.ForecastRun{
		GeneratedAt: time.Now().UTC(),
		Source:      SourceFile,
		Days:        days,
	}
	return s.assetRun
}
