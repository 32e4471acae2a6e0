package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("provider", "razorpay"),
		attribute.String("school_id", "456"),
		attribute.String("invoice_id", "789"),
		attribute.String("result", VerificationRecorded),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("provider"), attrs[0].Key)
	assert.Equal(t, attribute.Key("result"), attrs[1].Key)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordPaymentRecorded(ctx, "cash")
	m.RecordGatewayOrder(ctx, "razorpay", errors.New("boom"))
	m.RecordVerification(ctx, "razorpay", "webhook", VerificationDuplicate)
	m.RecordRateLimitDenied(ctx, "gateway_orders", "rate_limited")
}

func TestHTTPMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := newHTTPMetrics(registry, Config{ServiceName: "shiksha", Environment: "test"})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/invoices/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/invoices/"+id, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/api/invoices/:id", "200"))
	assert.Equal(t, float64(2), got)
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := newHTTPMetrics(registry, Config{})
	second := newHTTPMetrics(registry, Config{})
	assert.Same(t, first.requests, second.requests)
}

func TestCountersRecordWithFilteredLabels(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(Config{ServiceName: "shiksha-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordVerification(ctx, " razorpay ", "webhook", VerificationRecorded)
	m.RecordVerification(ctx, "razorpay", "webhook", VerificationRecorded)
	m.RecordGatewayOrder(ctx, "midtrans", errors.New("timeout"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	sums := map[string]metricdata.Sum[int64]{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		if sum, ok := md.Data.(metricdata.Sum[int64]); ok {
			sums[md.Name] = sum
		}
	}

	verifications := sums["shiksha_gateway_verifications_total"]
	require.Len(t, verifications.DataPoints, 1)
	point := verifications.DataPoints[0]
	assert.Equal(t, int64(2), point.Value)
	label, ok := point.Attributes.Value("provider")
	require.True(t, ok)
	assert.Equal(t, "razorpay", label.AsString())

	failures := sums["shiksha_gateway_order_errors_total"]
	require.Len(t, failures.DataPoints, 1)
	assert.Equal(t, int64(1), failures.DataPoints[0].Value)
	assert.NotContains(t, sums, "shiksha_gateway_orders_created_total")
}
