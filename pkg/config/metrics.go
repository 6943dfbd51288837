package config

import (
	"github.com/marmos91/cephodm/pkg/metrics"
	"github.com/marmos91/cephodm/pkg/storage"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// Storage instruments the storage client (nil if disabled)
	Storage storage.Metrics

	// Query counts truncated listings (nil if disabled)
	Query *metrics.QueryMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// When metrics are enabled it initializes the global registry, so it must
// be called once per process. When disabled every component is nil.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:  metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		Storage: metrics.NewStorageMetrics(),
		Query:   metrics.NewQueryMetrics(),
	}
}
