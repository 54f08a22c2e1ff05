package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecocast_provider_calls_total",
			Help: "Total outbound weather provider calls",
		},
		[]string{"provider", "status"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ecocast_provider_latency_seconds",
			Help:    "Weather provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecocast_lookups_total",
			Help: "Map clicks answered, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SampleQualityFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecocast_sample_quality_flags_total",
			Help: "Provider samples flagged as implausible",
		},
		[]string{"flag"},
	)

	PageRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecocast_page_renders_total",
			Help: "Rendered pages and partials",
		},
		[]string{"page"},
	)

	GeneratorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecocast_generator_runs_total",
			Help: "Forecast generator runs by outcome",
		},
		[]string{"outcome"},
	)

	GeneratorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ecocast_generator_duration_seconds",
			Help:    "Forecast generator wall time",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	ChartRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecocast_chart_renders_total",
			Help: "Chart PNG requests by cache result",
		},
		[]string{"chart", "cache"},
	)
)
