package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTransition("approve", "ok")
	m.ObserveTransition("approve", "ok")
	m.ObserveTransition("approve", "invalid_transition")
	m.ObserveNotification("status_change")
	m.ObserveSnapshotWrite("appointments", nil)
	m.ObserveSnapshotWrite("appointments", errors.New("down"))
	m.ObserveReminder()
	m.ObserveHTTP("GET", "/appointments", 200, 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("approve", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshotWrites.WithLabelValues("appointments", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reminders))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTransition("cancel", "ok")
	m.ObserveNotification("reminder")
	m.ObserveSnapshotWrite("users", nil)
	m.ObserveReminder()
	m.ObserveHTTP("POST", "/appointments/slots", 201, 0.2)
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveTransition("request_booking", "ok")

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "clinic_appointments_transitions_total")
}
