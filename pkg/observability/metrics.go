package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider is the orchestrator's Prometheus-backed metrics contract:
// HTTP request counters, pre-trade risk denials by reason, event-to-DB
// processing lag, and per-adapter send/receive rates.
//
// Grounded on the teacher's pkg/observability/metrics.go OTel-meter-over-
// Prometheus-registry wiring (same NewMeterProvider/otelprom.New/registry
// shape), generalized from the teacher's AI/browser/Web3 product counters to
// this orchestrator's own domain metrics.
type MetricsProvider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	registry      *prometheus.Registry

	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	riskDenialsTotal  metric.Int64Counter
	eventDBLagSeconds metric.Float64Gauge

	adapterSendTotal    metric.Int64Counter
	adapterReceiveTotal metric.Int64Counter
}

// MetricsConfig contains metrics configuration.
type MetricsConfig struct {
	ServiceName string
	Namespace   string
	Enabled     bool
}

// NewMetricsProvider creates the meter provider and registers every
// orchestrator metric. A disabled config returns a MetricsProvider whose
// Record* methods are all no-ops, so callers never need a nil check.
func NewMetricsProvider(cfg MetricsConfig) (*MetricsProvider, error) {
	if !cfg.Enabled {
		return &MetricsProvider{}, nil
	}

	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
		otelprom.WithNamespace(cfg.Namespace),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	mp := &MetricsProvider{
		meterProvider: meterProvider,
		meter:         meterProvider.Meter(cfg.ServiceName),
		registry:      registry,
	}
	if err := mp.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	return mp, nil
}

func (mp *MetricsProvider) initializeMetrics() error {
	var err error

	mp.httpRequestsTotal, err = mp.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	mp.httpRequestDuration, err = mp.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	mp.riskDenialsTotal, err = mp.meter.Int64Counter(
		"risk_denials_total",
		metric.WithDescription("Total pre-trade risk denials, by reason"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create risk_denials_total counter: %w", err)
	}

	mp.eventDBLagSeconds, err = mp.meter.Float64Gauge(
		"event_db_lag_seconds",
		metric.WithDescription("Seconds between an adapter event's occurrence and its OMS persistence"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create event_db_lag_seconds gauge: %w", err)
	}

	mp.adapterSendTotal, err = mp.meter.Int64Counter(
		"adapter_send_total",
		metric.WithDescription("Total submissions sent to a venue adapter"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create adapter_send_total counter: %w", err)
	}

	mp.adapterReceiveTotal, err = mp.meter.Int64Counter(
		"adapter_receive_total",
		metric.WithDescription("Total events received from a venue adapter"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create adapter_receive_total counter: %w", err)
	}

	return nil
}

// RecordHTTPRequest records one HTTP request's outcome and latency.
func (mp *MetricsProvider) RecordHTTPRequest(ctx context.Context, method, path, status string, duration time.Duration) {
	if mp == nil || mp.httpRequestsTotal == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	}
	mp.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mp.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordRiskDenial increments the denial counter for the given reason
// (§4.4's seven Reason values, the hard-timeout deny included).
func (mp *MetricsProvider) RecordRiskDenial(ctx context.Context, reason string) {
	if mp == nil || mp.riskDenialsTotal == nil {
		return
	}
	mp.riskDenialsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordEventDBLag records the delay between an adapter event's occurrence
// and its durable persistence in the OMS (§4.6).
func (mp *MetricsProvider) RecordEventDBLag(ctx context.Context, venue string, lag time.Duration) {
	if mp == nil || mp.eventDBLagSeconds == nil {
		return
	}
	mp.eventDBLagSeconds.Record(ctx, lag.Seconds(), metric.WithAttributes(attribute.String("venue", venue)))
}

// RecordAdapterSend increments the outbound-submission counter for venue.
func (mp *MetricsProvider) RecordAdapterSend(ctx context.Context, venue string) {
	if mp == nil || mp.adapterSendTotal == nil {
		return
	}
	mp.adapterSendTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", venue)))
}

// RecordAdapterReceive increments the inbound-event counter for venue.
func (mp *MetricsProvider) RecordAdapterReceive(ctx context.Context, venue string) {
	if mp == nil || mp.adapterReceiveTotal == nil {
		return
	}
	mp.adapterReceiveTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", venue)))
}

// StartMetricsServer starts the Prometheus /metrics HTTP server. Callers
// typically run this in its own goroutine alongside the main API server.
func (mp *MetricsProvider) StartMetricsServer(port int) error {
	if mp.registry == nil {
		return fmt.Errorf("metrics not enabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(mp.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	return server.ListenAndServe()
}

// Shutdown gracefully shuts down the meter provider.
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	if mp.meterProvider == nil {
		return nil
	}
	return mp.meterProvider.Shutdown(ctx)
}
