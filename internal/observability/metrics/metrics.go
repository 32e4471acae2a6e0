package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Verification results reported by the gateway verifier.
const (
	VerificationRecorded          = "recorded"
	VerificationDuplicate         = "duplicate"
	VerificationInvalidSignature  = "invalid_signature"
	VerificationAmountMismatch    = "amount_mismatch"
	VerificationOrderClosed       = "order_closed"
	VerificationReconciliationErr = "reconciliation_pending"
	VerificationIgnored           = "ignored"
	VerificationFailed            = "failed"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the fee and payment instruments.
type Metrics struct {
	invoicesCreated   metric.Int64Counter
	paymentsRecorded  metric.Int64Counter
	gatewayOrders     metric.Int64Counter
	gatewayOrderFails metric.Int64Counter
	verifications     metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "shiksha"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.invoicesCreated, "shiksha_invoices_created_total", "Invoices issued."},
		{&m.paymentsRecorded, "shiksha_payments_recorded_total", "Payments applied to invoices."},
		{&m.gatewayOrders, "shiksha_gateway_orders_created_total", "Gateway orders opened."},
		{&m.gatewayOrderFails, "shiksha_gateway_order_errors_total", "Gateway order requests that failed."},
		{&m.verifications, "shiksha_gateway_verifications_total", "Gateway callback and webhook verifications."},
		{&m.rateLimitDenied, "shiksha_rate_limit_denied_total", "Requests rejected by the checkout limiter."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", c.name, err)
		}
		*c.target = counter
	}
	return m, nil
}

// NewNoop returns instruments backed by a noop provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordInvoiceCreated(ctx context.Context) {
	if m != nil {
		m.invoicesCreated.Add(ctx, 1)
	}
}

// RecordPaymentRecorded counts applied payments by mode.
func (m *Metrics) RecordPaymentRecorded(ctx context.Context, mode string) {
	if m != nil {
		count(ctx, m.paymentsRecorded, "mode", mode)
	}
}

// RecordGatewayOrder counts gateway orders by provider. Failed attempts go to
// a separate counter.
func (m *Metrics) RecordGatewayOrder(ctx context.Context, provider string, err error) {
	if m == nil {
		return
	}
	counter := m.gatewayOrders
	if err != nil {
		counter = m.gatewayOrderFails
	}
	count(ctx, counter, "provider", provider)
}

// RecordVerification counts verifications by provider, source (callback or
// webhook) and result.
func (m *Metrics) RecordVerification(ctx context.Context, provider, source, result string) {
	if m != nil {
		count(ctx, m.verifications, "provider", provider, "source", source, "result", result)
	}
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m != nil {
		count(ctx, m.rateLimitDenied, "endpoint", endpoint, "reason", reason)
	}
}

// count adds one with the given key/value label pairs.
func count(ctx context.Context, counter metric.Int64Counter, pairs ...string) {
	attrs := make([]attribute.KeyValue, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		attrs = append(attrs, attribute.String(pairs[i], strings.TrimSpace(pairs[i+1])))
	}
	counter.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// school_id, invoice_id and student_id are never labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"source":      {},
	"result":      {},
	"mode":        {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
