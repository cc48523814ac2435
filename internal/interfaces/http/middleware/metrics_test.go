package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/crmigrate/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"
)

// setupTestMeter sets up a test meter provider and reader.
func setupTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})
	return mp, reader
}

// findMetricByName collects and returns the named metric.
func findMetricByName(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestHTTPMetrics_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)

	for _, cfg := range []HTTPMetricsConfig{
		{Enabled: false},
		{Enabled: true},
		{Enabled: true, MeterProvider: mp},
	} {
		w, _ := serveWith(t, httptest.NewRequest(http.MethodGet, "/test", nil), HTTPMetrics(cfg))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestHTTPMetricsWithMeter(t *testing.T) {
	mp, reader := setupTestMeter(t)
	mw, err := HTTPMetricsWithMeter(mp.Meter("test"))
	require.NoError(t, err)

	router := gin.New()
	router.Use(mw)
	router.GET("/api/v1/migrations/:id", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
	router.POST("/api/v1/migrations/:source", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v1/migrations/a", nil),
		httptest.NewRequest(http.MethodGet, "/api/v1/migrations/b", nil),
		httptest.NewRequest(http.MethodPost, "/api/v1/migrations/jobnimbus", nil),
		httptest.NewRequest(http.MethodGet, "/nowhere", nil),
	} {
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	total := findMetricByName(t, reader, "http_server_request_total")
	require.NotNil(t, total)
	byRoute := map[string]int64{}
	for _, dp := range total.Data.(metricdata.Sum[int64]).DataPoints {
		route, _ := dp.Attributes.Value(telemetry.AttrHTTPRoute)
		method, _ := dp.Attributes.Value(telemetry.AttrHTTPMethod)
		byRoute[method.AsString()+" "+route.AsString()] += dp.Value
	}
	assert.Equal(t, map[string]int64{
		"GET /api/v1/migrations/:id":      2,
		"POST /api/v1/migrations/:source": 1,
		"GET unknown":                     1,
	}, byRoute)

	duration := findMetricByName(t, reader, "http_server_request_duration_seconds")
	require.NotNil(t, duration)
	var count uint64
	for _, dp := range duration.Data.(metricdata.Histogram[float64]).DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(4), count)

	active := findMetricByName(t, reader, "http_server_active_requests")
	require.NotNil(t, active)
	for _, dp := range active.Data.(metricdata.Sum[int64]).DataPoints {
		assert.Zero(t, dp.Value)
	}
}
