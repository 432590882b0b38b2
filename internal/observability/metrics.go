package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/credential-session-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type AppMetrics struct {
	authOperationCounter      metric.Int64Counter
	repositoryOpCounter       metric.Int64Counter
	accessTokenCounter        metric.Int64Counter
	refreshReuseCounter       metric.Int64Counter
	emailTokenIssueCounter    metric.Int64Counter
	notificationCounter       metric.Int64Counter
	rateLimitDecisionCounter  metric.Int64Counter
	maintenancePurgedCounter  metric.Int64Counter
	authOperationLatencyHisto metric.Float64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
	}{
		{&m.authOperationCounter, "auth.operations"},
		{&m.repositoryOpCounter, "repository.operations"},
		{&m.accessTokenCounter, "auth.access_token.validations"},
		{&m.refreshReuseCounter, "auth.refresh.reuse_detected"},
		{&m.emailTokenIssueCounter, "email_token.issue"},
		{&m.notificationCounter, "notification.dispatch"},
		{&m.rateLimitDecisionCounter, "http.rate_limit.decisions"},
		{&m.maintenancePurgedCounter, "maintenance.purged_rows"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name); err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	m.authOperationLatencyHisto, err = meter.Float64Histogram("auth.operation.duration", metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("create histogram auth.operation.duration: %w", err)
	}
	return &m, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthOperation(ctx context.Context, operation, outcome string, elapsedMS float64) {
	m := currentMetrics()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.authOperationCounter.Add(ctx, 1, attrs)
	m.authOperationLatencyHisto.Record(ctx, elapsedMS, attrs)
}

func RecordRepositoryOperation(ctx context.Context, repository, operation, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repository),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, reason string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.accessTokenCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", reason),
	))
}

func RecordRefreshReuse(ctx context.Context) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.refreshReuseCounter.Add(ctx, 1)
}

func RecordEmailTokenIssue(ctx context.Context, tokenType, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.emailTokenIssueCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", tokenType),
		attribute.String("outcome", outcome),
	))
}

func RecordNotificationDispatch(ctx context.Context, kind, transport, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.notificationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("transport", transport),
		attribute.String("outcome", outcome),
	))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision, mode string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.rateLimitDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
		attribute.String("mode", mode),
	))
}

func RecordPurgedRows(ctx context.Context, entity string, rows int64) {
	m := currentMetrics()
	if m == nil || rows <= 0 {
		return
	}
	m.maintenancePurgedCounter.Add(ctx, rows, metric.WithAttributes(attribute.String("entity", entity)))
}
