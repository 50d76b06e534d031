package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's collectors on a private registry so tests and
// multiple engines never collide on the global one.
type Metrics struct {
	Registry      *prometheus.Registry
	Compilations  *prometheus.CounterVec
	CompileIssues *prometheus.CounterVec
	MatchDuration prometheus.Histogram
	CatalogCache  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		Registry: registry,
		Compilations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_compilations_total",
				Help: "Order compilations by resulting status",
			},
			[]string{"status"},
		),
		CompileIssues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_compile_issues_total",
				Help: "Compilation issues by code",
			},
			[]string{"code"},
		),
		MatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "concierge_match_duration_seconds",
				Help:    "Time spent matching free text against catalogs",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		CatalogCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "concierge_catalog_cache_total",
				Help: "Catalog snapshot lookups by cache result",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(m.Compilations, m.CompileIssues, m.MatchDuration, m.CatalogCache)
	return m
}
