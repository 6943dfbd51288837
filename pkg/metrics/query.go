package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueryMetrics counts listing queries that stopped before draining a
// bucket. It is registered as a truncation listener on the file query
// engine. A nil *QueryMetrics records nothing.
type QueryMetrics struct {
	truncations *prometheus.CounterVec
}

// NewQueryMetrics creates query metrics on the global registry, or returns
// nil when metrics are disabled.
func NewQueryMetrics() *QueryMetrics {
	if !IsEnabled() {
		return nil
	}
	return NewQueryMetricsWith(GetRegistry())
}

// NewQueryMetricsWith registers query metrics on reg.
func NewQueryMetricsWith(reg prometheus.Registerer) *QueryMetrics {
	return &QueryMetrics{
		truncations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cephodm_query_truncations_total",
				Help: "Total number of file queries that left a bucket listing truncated",
			},
			[]string{"bucket"},
		),
	}
}

// OnQueryTruncated records one truncation per bucket.
func (m *QueryMetrics) OnQueryTruncated(buckets []string) {
	if m == nil {
		return
	}
	for _, b := range buckets {
		m.truncations.WithLabelValues(b).Inc()
	}
}
