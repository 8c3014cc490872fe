package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDropIncrementsBothCounters(t *testing.T) {
	m := New()
	m.RecordDrop("ghost_pool")
	m.RecordDrop("ghost_pool")
	m.RecordDrop("stale")

	assert.Equal(t, float64(3), testutil.ToFloat64(m.OpportunitiesFailed))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.DropReasons.WithLabelValues("ghost_pool")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DropReasons.WithLabelValues("stale")))
}

func TestHandlerServesMetrics(t *testing.T) {
	m := New()
	m.OpportunitiesDetected.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "arbengine_opportunities_detected_total")
}

func TestRegistryTierHitsLabelled(t *testing.T) {
	m := New()
	m.RegistryTierHits.WithLabelValues("in_memory").Inc()
	m.RegistryTierHits.WithLabelValues("on_chain").Inc()
	m.RegistryTierHits.WithLabelValues("on_chain").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RegistryTierHits.WithLabelValues("in_memory")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RegistryTierHits.WithLabelValues("on_chain")))
}
