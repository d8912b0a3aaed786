package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsByRoute(t *testing.T) {
	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/v1/sos/:id/status", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/api/v1/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "call not found")
	})

	for _, path := range []string{"/api/v1/sos/1/status", "/api/v1/sos/2/status", "/api/v1/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/sos/:id/status", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/missing", "404")))
}

func TestGaugesAndCounters(t *testing.T) {
	m := New()
	m.SetPending("sos", 3)
	m.RecordStatusChange("emergency_call", "DISPATCHED")
	m.RecordStatusChange("emergency_call", "DISPATCHED")
	m.RecordJobRun("dashboard_refresh", nil)
	m.RecordJobRun("dashboard_refresh", errors.New("db down"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.pending.WithLabelValues("sos")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.statusChanges.WithLabelValues("emergency_call", "DISPATCHED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("dashboard_refresh", "error")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.RegisterPoolStats(func() (int32, int32, int32) { return 5, 3, 2 })
	m.SetPending("orders", 1)

	e := echo.New()
	e.GET("/metrics", m.Handler())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `medsos_pending_items{kind="orders"} 1`))
	assert.True(t, strings.Contains(body, "medsos_db_pool_acquired_conns 2"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
