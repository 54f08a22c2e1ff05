package ingest

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lox/ecocast/internal/metrics"
	"github.com/lox/ecocast/internal/models"
	"github.com/lox/ecocast/internal/regions"
	"github.com/lox/ecocast/internal/store"
)

// Messages shown in the result panel.
const (
	MsgNoCoordinates = "Coordinates for this state are not available."
	MsgFetchFailed   = "Failed to fetch weather data."
)

const (
	KindRegion = "region"
	KindWorld  = "world"
)

// Result is what a map click resolves to. Exactly one of Sample and Error
// is set.
type Result struct {
	Kind     string                `json:"kind"`
	Location string                `json:"location"`
	Lat      float64               `json:"lat"`
	Lon      float64               `json:"lon"`
	Sample   *models.WeatherSample `json:"sample,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Lookups answers map clicks. Each call makes at most one provider request
// and keeps no state between calls. The store is optional; when set every
// click, provider call and raw response is recorded.
type Lookups struct {
	store  *store.Store
	region Provider
	world  Provider
	hooks  []ResultHook
}

// ResultHook is called with every answered lookup. Hooks must be registered
// before the first lookup.
type ResultHook func(res Result)

func NewLookups(st *store.Store, region, world Provider) *Lookups {
	return &Lookups{store: st, region: region, world: world}
}

func (l *Lookups) OnResult(h ResultHook) {
	l.hooks = append(l.hooks, h)
}

// Region looks up the weather for a named state using its fixed
// coordinates. Unmapped states fail without a provider call.
func (l *Lookups) Region(ctx context.Context, name string) Result {
	res := Result{Kind: KindRegion, Location: name}

	coord, ok := regions.Lookup(name)
	if !ok {
		res.Error = MsgNoCoordinates
		l.finish(res, false, "unmapped")
		return res
	}
	res.Lat, res.Lon = coord.Lat, coord.Lon

	if l.region == nil {
		res.Error = MsgFetchFailed
		l.finish(res, true, "failed")
		return res
	}

	obs, err := l.fetch(ctx, l.region, name, coord.Lat, coord.Lon)
	if err != nil {
		slog.Warn("region lookup failed", "region", name, "provider", l.region.Name(), "error", err)
		res.Error = MsgFetchFailed
		l.finish(res, true, "failed")
		return res
	}

	sample := obs.Sample
	sample.Location = name
	res.Sample = &sample
	l.finish(res, true, "ok")
	return res
}

// World answers a click at pixel (x, y) on the world canvas.
func (l *Lookups) World(ctx context.Context, x, y float64) Result {
	lat, lon := PixelToLatLon(x, y, WorldWidth, WorldHeight)
	res := Result{Kind: KindWorld, Location: FormatLatLon(lat, lon), Lat: lat, Lon: lon}

	if l.world == nil {
		res.Error = MsgFetchFailed
		l.finish(res, true, "failed")
		return res
	}

	obs, err := l.fetch(ctx, l.world, res.Location, lat, lon)
	if err != nil {
		slog.Warn("world lookup failed", "location", res.Location, "error", err)
		res.Error = MsgFetchFailed
		l.finish(res, true, "failed")
		return res
	}

	sample := obs.Sample
	sample.Location = res.Location
	res.Sample = &sample
	l.finish(res, true, "ok")
	return res
}

func (l *Lookups) fetch(ctx context.Context, p Provider, location string, lat, lon float64) (*Observation, error) {
	var run *store.IngestRun
	if l.store != nil {
		var err error
		run, err = l.store.StartIngestRun(p.Name(), p.Endpoint(), &location)
		if err != nil {
			slog.Error("start ingest run", "error", err)
		}
	}

	obs, err := p.Current(ctx, lat, lon)

	if run != nil {
		run.Success = err == nil
		if obs != nil {
			run.HTTPStatus = sql.NullInt64{Int64: int64(obs.HTTPStatus), Valid: obs.HTTPStatus > 0}
			run.ResponseSizeBytes = sql.NullInt64{Int64: int64(len(obs.Raw)), Valid: len(obs.Raw) > 0}
			if len(obs.Raw) > 0 {
				if _, perr := l.store.StoreRawPayload(&run.ID, p.Name(), p.Endpoint(), &location, obs.Raw); perr != nil {
					slog.Error("store raw payload", "provider", p.Name(), "error", perr)
				}
			}
		}
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		} else {
			run.RecordsParsed = sql.NullInt64{Int64: 1, Valid: true}
			run.RecordsStored = sql.NullInt64{Int64: 1, Valid: true}
		}
		if cerr := l.store.CompleteIngestRun(run); cerr != nil {
			slog.Error("complete ingest run", "error", cerr)
		}
	}

	if err != nil {
		return nil, err
	}

	for _, flag := range ValidateSample(obs.Sample) {
		metrics.SampleQualityFlags.WithLabelValues(flag).Inc()
		slog.Warn("implausible sample", "provider", p.Name(), "location", location, "flag", flag)
	}
	return obs, nil
}

func (l *Lookups) finish(res Result, hasCoords bool, outcome string) {
	metrics.LookupsTotal.WithLabelValues(res.Kind, outcome).Inc()
	for _, h := range l.hooks {
		h(res)
	}
	if l.store == nil {
		return
	}

	rec := models.Lookup{
		Kind:        res.Kind,
		Location:    res.Location,
		RequestedAt: time.Now().UTC(),
		Sample:      res.Sample,
	}
	if hasCoords {
		rec.Latitude = sql.NullFloat64{Float64: res.Lat, Valid: true}
		rec.Longitude = sql.NullFloat64{Float64: res.Lon, Valid: true}
	}
	if res.Error != "" {
		rec.Error = sql.NullString{String: res.Error, Valid: true}
	}
	if _, err := l.store.RecordLookup(rec); err != nil {
		slog.Error("record lookup", "kind", res.Kind, "location", res.Location, "error", err)
	}
}
