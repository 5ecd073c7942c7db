package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordResolve(false)
	m.RecordResolve(true)
	m.RecordResolve(true)
	m.RecordTypeRegistered()
	m.RecordTypeRegistered()
	m.RecordHandlesReleased(2)
	m.RecordRegistrationFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Resolves.WithLabelValues("fast")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resolves.WithLabelValues("slow")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TypesRegistered))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PinnedHandles))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RegistrationFailures))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.FastResolves)
	assert.Equal(t, int64(1), snap.SlowResolves)
	assert.Equal(t, int64(2), snap.TypesRegistered)
	assert.Equal(t, int64(0), snap.PinnedHandles)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordResolve(true)
		m.RecordTypeRegistered()
		m.RecordRegistrationFailure()
		m.RecordHandlesReleased(3)
		m.IncSurfaces()
		m.DecSurfaces()
		m.IncScriptableObjects()
		m.SetCreateableTypes(1)
		m.RecordPopup("blocked")
	})
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordTypeRegistered()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.TypesRegistered))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TypesRegistered))
}

func TestHandlerExposition(t *testing.T) {
	m := NewMetrics()
	m.RecordHTTPRequest("GET", "/types", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "moonbridge_http_requests_total"))
	assert.True(t, strings.Contains(body, "moonbridge_uptime_seconds"))
}
