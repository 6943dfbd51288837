package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums every series of a counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
		return total
	}
	return 0
}

func TestStorageMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStorageMetricsWith(reg)

	m.ObserveOperation("GetObject", 5*time.Millisecond, nil)
	m.ObserveOperation("PutObject", 5*time.Millisecond, errors.New("boom"))
	m.RecordBytes("put", 42)

	assert.Equal(t, 2.0, counterValue(t, reg, "cephodm_storage_operations_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "cephodm_storage_errors_total"))
	assert.Equal(t, 42.0, counterValue(t, reg, "cephodm_storage_bytes_total"))
}

func TestQueryMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewQueryMetricsWith(reg)

	m.OnQueryTruncated([]string{"mybucket1", "mybucket2"})
	m.OnQueryTruncated([]string{"mybucket1"})

	assert.Equal(t, 3.0, counterValue(t, reg, "cephodm_query_truncations_total"))
}

func TestQueryMetrics_NilIsNoop(t *testing.T) {
	var m *QueryMetrics
	assert.NotPanics(t, func() { m.OnQueryTruncated([]string{"mybucket"}) })
}

func TestHandler_Healthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestNewServer_DefaultPort(t *testing.T) {
	assert.Equal(t, DefaultPort, NewServer(ServerConfig{}).Port())
	assert.Equal(t, 9100, NewServer(ServerConfig{Port: 9100}).Port())
}
