package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const defaultExportInterval = time.Minute

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ExportInterval    time.Duration
	ServiceName       string
	ServiceVersion    string
	Insecure          bool
}

// MeterProvider owns the OTLP metric pipeline. With export disabled it hands
// out meters from the global provider, so instruments can always be created.
type MeterProvider struct {
	sdk    *sdkmetric.MeterProvider
	logger *zap.Logger
}

// NewMeterProvider starts periodic OTLP export when cfg enables it and
// installs the provider globally.
func NewMeterProvider(ctx context.Context, cfg MetricsConfig, logger *zap.Logger) (*MeterProvider, error) {
	mp := &MeterProvider{logger: logger}
	if !cfg.Enabled {
		logger.Info("Metrics export disabled")
		return mp, nil
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
	}
	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	mp.sdk = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp.sdk)

	logger.Info("Metrics export enabled",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Duration("export_interval", interval),
	)
	return mp, nil
}

// Meter returns a named meter
func (mp *MeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if mp.sdk == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return mp.sdk.Meter(name, opts...)
}

// IsEnabled reports whether metrics are exported
func (mp *MeterProvider) IsEnabled() bool {
	return mp.sdk != nil
}

// ForceFlush exports everything recorded so far
func (mp *MeterProvider) ForceFlush(ctx context.Context) error {
	if mp.sdk == nil {
		return nil
	}
	return mp.sdk.ForceFlush(ctx)
}

// Shutdown flushes pending metrics and stops export. ctx bounds the flush.
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp.sdk == nil {
		return nil
	}
	if err := mp.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}
	mp.logger.Info("Metrics export stopped")
	return nil
}

// Instruments declares a metric set on one meter. Creation errors are
// collected instead of returned, so a set reads as a list of declarations
// followed by a single Err check. A failed instrument records nothing.
type Instruments struct {
	meter metric.Meter
	errs  []error
}

// NewInstruments starts a metric set on meter
func NewInstruments(meter metric.Meter) *Instruments {
	return &Instruments{meter: meter}
}

// Err returns every creation error seen so far
func (in *Instruments) Err() error {
	return errors.Join(in.errs...)
}

func (in *Instruments) check(name string, err error) bool {
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("instrument %s: %w", name, err))
		return false
	}
	return true
}

// Counter is a monotonic count, such as deliveries handled.
type Counter struct {
	inner metric.Int64Counter
}

// Counter declares a counter
func (in *Instruments) Counter(name, description, unit string) *Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if !in.check(name, err) {
		return &Counter{inner: noop.Int64Counter{}}
	}
	return &Counter{inner: c}
}

// Add increments the counter by n
func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	c.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Inc increments the counter by one
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// UpDownCounter tracks a value that rises and falls, such as requests in flight.
type UpDownCounter struct {
	inner metric.Int64UpDownCounter
}

// UpDownCounter declares an up-down counter
func (in *Instruments) UpDownCounter(name, description, unit string) *UpDownCounter {
	c, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if !in.check(name, err) {
		return &UpDownCounter{inner: noop.Int64UpDownCounter{}}
	}
	return &UpDownCounter{inner: c}
}

// Add moves the value by n, which may be negative
func (c *UpDownCounter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	c.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Histogram is a distribution, such as handler latency.
type Histogram struct {
	inner metric.Float64Histogram
}

// Histogram declares a histogram. Empty bounds keep the SDK defaults.
func (in *Instruments) Histogram(name, description, unit string, bounds []float64) *Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(description), metric.WithUnit(unit)}
	if len(bounds) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(bounds...))
	}
	h, err := in.meter.Float64Histogram(name, opts...)
	if !in.check(name, err) {
		return &Histogram{inner: noop.Float64Histogram{}}
	}
	return &Histogram{inner: h}
}

// Record adds one observation
func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	h.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}

// RecordDuration adds d in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Gauge is a sampled point-in-time value, such as the outbox backlog.
type Gauge struct {
	inner metric.Int64Gauge
}

// Gauge declares a gauge
func (in *Instruments) Gauge(name, description, unit string) *Gauge {
	g, err := in.meter.Int64Gauge(name, metric.WithDescription(description), metric.WithUnit(unit))
	if !in.check(name, err) {
		return &Gauge{inner: noop.Int64Gauge{}}
	}
	return &Gauge{inner: g}
}

// Record sets the current value
func (g *Gauge) Record(ctx context.Context, v int64, attrs ...attribute.KeyValue) {
	g.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}

// Attribute keys shared by the sync and HTTP metric sets.
var (
	AttrConsumer     = attribute.Key("consumer")
	AttrEventType    = attribute.Key("event_type")
	AttrOutcome      = attribute.Key("outcome")
	AttrTargetStatus = attribute.Key("target_status")
	AttrEntity       = attribute.Key("entity")
	AttrResolution   = attribute.Key("resolution")
	AttrOutboxStatus = attribute.Key("outbox_status")

	AttrHTTPMethod     = attribute.Key("http.method")
	AttrHTTPRoute      = attribute.Key("http.route")
	AttrHTTPStatusCode = attribute.Key("http.status_code")
)

// Bucket boundaries in seconds. Handlers mostly finish inside one
// transaction; HTTP requests may include a lot with many lines.
var (
	DispatchDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	HTTPDurationBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
)
