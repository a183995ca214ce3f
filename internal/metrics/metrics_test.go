package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(false)

	m.ObserveUpdate("stock", true)
	m.ObserveUpdate("stock", true)
	m.ObserveUpdate("stock", false)
	m.ObserveRetry("PRICE_API")
	m.ObserveCacheLookup("images", true)
	m.ObserveCacheLookup("images", false)
	m.ObserveCacheLookup("images", false)
	m.SetSessionChanges(4)
	m.ObserveBatch("stock", 300*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.updates.WithLabelValues("stock", OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.updates.WithLabelValues("stock", OutcomeFailure)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.retries.WithLabelValues("PRICE_API")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.cacheLookups.WithLabelValues("images", "miss")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(m.sessionChanges), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.batchDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(false)
	m.ObserveUpdate("price", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gizmo_stock_updates_total{category="price",outcome="success"} 1`)
}

func TestMetrics_InstancesIndependent(t *testing.T) {
	a, b := New(false), New(false)
	a.ObserveRetry("STOCK_API")
	assert.InDelta(t, 0, testutil.ToFloat64(b.retries.WithLabelValues("STOCK_API")), 0)
}
