package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ShutdownFunc releases telemetry resources.
type ShutdownFunc func(ctx context.Context) error

// Setup initializes OpenTelemetry with a Prometheus exporter.
// Returns a shutdown function that must be called on exit.
func Setup(ctx context.Context, serviceName string) (ShutdownFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Metrics holds all OTel instruments for the gateway.
type Metrics struct {
	httpRequestsTotal       otelmetric.Int64Counter
	httpRequestDuration     otelmetric.Float64Histogram
	resolutionsTotal        otelmetric.Int64Counter
	loginsTotal             otelmetric.Int64Counter
	apiKeyMintsTotal        otelmetric.Int64Counter
	apiKeyRevocationsTotal  otelmetric.Int64Counter
	rateLimitDecisionsTotal otelmetric.Int64Counter
	proxyRequestsTotal      otelmetric.Int64Counter
	proxyDuration           otelmetric.Float64Histogram
}

// NewMetrics creates and registers all gateway instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("queuegate")
	m := &Metrics{}
	var err error

	latencyBuckets := otelmetric.WithExplicitBucketBoundaries(
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
	)

	if m.httpRequestsTotal, err = meter.Int64Counter("queuegate_http_requests_total",
		otelmetric.WithDescription("Total HTTP requests")); err != nil {
		return nil, fmt.Errorf("creating http_requests_total: %w", err)
	}
	if m.httpRequestDuration, err = meter.Float64Histogram("queuegate_http_request_duration_seconds",
		otelmetric.WithDescription("HTTP request duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating http_request_duration: %w", err)
	}
	if m.resolutionsTotal, err = meter.Int64Counter("queuegate_credential_resolutions_total",
		otelmetric.WithDescription("Total credential resolutions")); err != nil {
		return nil, fmt.Errorf("creating credential_resolutions_total: %w", err)
	}
	if m.loginsTotal, err = meter.Int64Counter("queuegate_logins_total",
		otelmetric.WithDescription("Total provider logins")); err != nil {
		return nil, fmt.Errorf("creating logins_total: %w", err)
	}
	if m.apiKeyMintsTotal, err = meter.Int64Counter("queuegate_apikey_mints_total",
		otelmetric.WithDescription("Total API key mint attempts")); err != nil {
		return nil, fmt.Errorf("creating apikey_mints_total: %w", err)
	}
	if m.apiKeyRevocationsTotal, err = meter.Int64Counter("queuegate_apikey_revocations_total",
		otelmetric.WithDescription("Total API key revocations")); err != nil {
		return nil, fmt.Errorf("creating apikey_revocations_total: %w", err)
	}
	if m.rateLimitDecisionsTotal, err = meter.Int64Counter("queuegate_ratelimit_decisions_total",
		otelmetric.WithDescription("Total rate limit decisions")); err != nil {
		return nil, fmt.Errorf("creating ratelimit_decisions_total: %w", err)
	}
	if m.proxyRequestsTotal, err = meter.Int64Counter("queuegate_proxy_requests_total",
		otelmetric.WithDescription("Total proxied manager requests")); err != nil {
		return nil, fmt.Errorf("creating proxy_requests_total: %w", err)
	}
	if m.proxyDuration, err = meter.Float64Histogram("queuegate_proxy_duration_seconds",
		otelmetric.WithDescription("Proxied manager request duration"), latencyBuckets); err != nil {
		return nil, fmt.Errorf("creating proxy_duration: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(status),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, durationSec, attrs)
}

// RecordResolution records a credential resolution by credential kind.
func (m *Metrics) RecordResolution(ctx context.Context, credential, result string) {
	m.resolutionsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		credentialAttr(credential),
		resultAttr(result),
	))
}

// RecordLogin records a provider login attempt.
func (m *Metrics) RecordLogin(ctx context.Context, result string) {
	m.loginsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordAPIKeyMint records an API key mint attempt.
func (m *Metrics) RecordAPIKeyMint(ctx context.Context, result string) {
	m.apiKeyMintsTotal.Add(ctx, 1, otelmetric.WithAttributes(resultAttr(result)))
}

// RecordAPIKeyRevoke records an API key revocation.
func (m *Metrics) RecordAPIKeyRevoke(ctx context.Context) {
	m.apiKeyRevocationsTotal.Add(ctx, 1)
}

// RecordRateLimitDecision records a rate limit decision.
func (m *Metrics) RecordRateLimitDecision(ctx context.Context, layer, result string) {
	m.rateLimitDecisionsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		layerAttr(layer),
		resultAttr(result),
	))
}

// RecordProxyRequest records a proxied request to the manager.
func (m *Metrics) RecordProxyRequest(ctx context.Context, backend string, status int, durationSec float64) {
	attrs := otelmetric.WithAttributes(
		backendAttr(backend),
		statusAttr(status),
	)
	m.proxyRequestsTotal.Add(ctx, 1, attrs)
	m.proxyDuration.Record(ctx, durationSec, attrs)
}
