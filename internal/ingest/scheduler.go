package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lox/ecocast/internal/assets"
	"github.com/lox/ecocast/internal/dataset"
	"github.com/lox/ecocast/internal/forecast"
	"github.com/lox/ecocast/internal/metrics"
	"github.com/lox/ecocast/internal/models"
	"github.com/lox/ecocast/internal/store"
)

const (
	generatorSource   = "generator"
	generatorEndpoint = "forecast/daily"

	// DefaultRegenInterval is used when the scheduler is given a
	// non-positive interval.
	DefaultRegenInterval = 24 * time.Hour
)

// RunHook is called after every stored forecast run.
type RunHook func(ctx context.Context, run *models.ForecastRun)

// Scheduler regenerates the forecast from the hourly dataset at startup
// and then on every interval, and does daily housekeeping of the archive.
type Scheduler struct {
	store    *store.Store
	loader   *assets.Loader
	dataset  string
	interval time.Duration

	// KeepRuns bounds how many forecast runs are retained.
	KeepRuns int
	// PayloadRetentionDays bounds how long raw provider payloads are kept.
	PayloadRetentionDays int

	now   func() time.Time
	mu    sync.Mutex // serialises generator runs
	hooks []RunHook
}

func NewScheduler(st *store.Store, loader *assets.Loader, datasetLocation string, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultRegenInterval
	}
	return &Scheduler{
		store:                st,
		loader:               loader,
		dataset:              datasetLocation,
		interval:             interval,
		KeepRuns:             30,
		PayloadRetentionDays: 30,
		now:                  time.Now,
	}
}

// OnRun registers a hook for new forecast runs.
func (s *Scheduler) OnRun(h RunHook) {
	s.hooks = append(s.hooks, h)
}

func (s *Scheduler) Run(ctx context.Context) {
	s.regenerate(ctx)
	s.housekeeping()

	regenTicker := time.NewTicker(s.interval)
	dailyTicker := time.NewTicker(24 * time.Hour)
	defer regenTicker.Stop()
	defer dailyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return
		case <-regenTicker.C:
			s.regenerate(ctx)
		case <-dailyTicker.C:
			s.housekeeping()
		}
	}
}

func (s *Scheduler) regenerate(ctx context.Context) {
	if _, err := s.RegenerateOnce(ctx); err != nil {
		slog.Error("forecast regeneration failed", "dataset", s.dataset, "error", err)
	}
}

// RegenerateOnce trains on the dataset, stores the resulting run and
// notifies hooks.
func (s *Scheduler) RegenerateOnce(ctx context.Context) (*models.ForecastRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now().UTC()
	slog.Info("regenerating forecast", "dataset", s.dataset)

	run, err := s.store.StartIngestRun(generatorSource, generatorEndpoint, &s.dataset)
	if err != nil {
		slog.Error("start ingest run", "source", generatorSource, "error", err)
	}
	days, records, err := LoadAndGenerate(ctx, s.loader, s.dataset, forecast.GenerateOptions{
		Start: start,
		Seed:  uint64(start.UnixNano()),
	})
	metrics.GeneratorDuration.Observe(time.Since(start).Seconds())

	if run != nil {
		run.RecordsParsed = sql.NullInt64{Int64: int64(records), Valid: records > 0}
	}
	if err != nil {
		metrics.GeneratorRunsTotal.WithLabelValues("error").Inc()
		s.completeRun(run, 0, err)
		return nil, err
	}

	fr := &models.ForecastRun{GeneratedAt: start, Source: generatorSource, Days: days}
	if err := s.store.SaveForecastRun(fr); err != nil {
		metrics.GeneratorRunsTotal.WithLabelValues("error").Inc()
		s.completeRun(run, 0, err)
		return nil, fmt.Errorf("save forecast run: %w", err)
	}
	metrics.GeneratorRunsTotal.WithLabelValues("ok").Inc()
	s.completeRun(run, len(days), nil)
	slog.Info("forecast regenerated", "run", fr.ID, "days", len(days), "records", records, "took", time.Since(start).Round(time.Millisecond))

	for _, h := range s.hooks {
		h(ctx, fr)
	}
	return fr, nil
}

func (s *Scheduler) completeRun(run *store.IngestRun, stored int, err error) {
	if run == nil {
		return
	}
	run.Success = err == nil
	run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
	if err != nil {
		run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
	}
	if cerr := s.store.CompleteIngestRun(run); cerr != nil {
		slog.Error("complete ingest run", "error", cerr)
	}
}

func (s *Scheduler) housekeeping() {
	if n, err := s.store.PruneRawPayloads(time.Duration(s.PayloadRetentionDays) * 24 * time.Hour); err != nil {
		slog.Error("cleanup raw payloads", "error", err)
	} else if n > 0 {
		slog.Info("cleaned up raw payloads", "deleted", n)
	}
	if n, err := s.store.PruneForecastRuns(s.KeepRuns); err != nil {
		slog.Error("prune forecast runs", "error", err)
	} else if n > 0 {
		slog.Info("pruned forecast runs", "deleted", n)
	}
}

// LoadAndGenerate reads the hourly CSV at location and runs the generator.
// It also returns how many usable hourly rows the dataset had.
func LoadAndGenerate(ctx context.Context, loader *assets.Loader, location string, opts forecast.GenerateOptions) ([]models.ForecastDay, int, error) {
	rc, err := loader.Open(ctx, location)
	if err != nil {
		return nil, 0, fmt.Errorf("open dataset: %w", err)
	}
	defer rc.Close()

	records, err := dataset.ParseHourly(rc)
	if err != nil {
		return nil, 0, fmt.Errorf("parse dataset: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, len(records), err
	}

	days, err := forecast.Generate(records, opts)
	if err != nil {
		return nil, len(records), fmt.Errorf("generate: %w", err)
	}
	return days, len(records), nil
}
