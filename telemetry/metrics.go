package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	meterName = "github.com/wolfeidau/hackpad-cli"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// PrometheusTextfile is a path the metrics are written to in the Prometheus
	// text format on shutdown, for the node_exporter textfile collector.
	// If empty, no file is written.
	PrometheusTextfile string

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	cacheLookupsTotal metric.Int64Counter

	storeOpDuration metric.Float64Histogram
	storeOpsTotal   metric.Int64Counter

	upstreamFetchDuration   metric.Float64Histogram
	upstreamFetchTotal      metric.Int64Counter
	upstreamFetchBytesTotal metric.Int64Counter

	syncRunsTotal    metric.Int64Counter
	syncListedPads   metric.Int64Histogram
	syncNewPadsTotal metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	textfile      string
	registry      *prometheus.Registry
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "hackpad"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var registry *prometheus.Registry

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.PrometheusTextfile != "" {
		registry = prometheus.NewRegistry()
		promExp, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.textfile = cfg.PrometheusTextfile
	m.registry = registry

	globalMetrics = m
	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.cacheLookupsTotal, err = meter.Int64Counter(
		"hackpad_cache_lookups_total",
		metric.WithDescription("Pad content lookups by format and cache result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.storeOpDuration, err = meter.Float64Histogram(
		"hackpad_store_op_duration_seconds",
		metric.WithDescription("Duration of pad cache operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1),
	)
	if err != nil {
		return nil, err
	}

	m.storeOpsTotal, err = meter.Int64Counter(
		"hackpad_store_ops_total",
		metric.WithDescription("Total number of pad cache operations"),
		metric.WithUnit("{op}"),
	)
	if err != nil {
		return nil, err
	}

	m.upstreamFetchDuration, err = meter.Float64Histogram(
		"hackpad_upstream_fetch_duration_seconds",
		metric.WithDescription("Duration of requests to the pad API"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, err
	}

	m.upstreamFetchTotal, err = meter.Int64Counter(
		"hackpad_upstream_fetch_total",
		metric.WithDescription("Total number of requests to the pad API"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.upstreamFetchBytesTotal, err = meter.Int64Counter(
		"hackpad_upstream_fetch_bytes_total",
		metric.WithDescription("Total bytes read from the pad API"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.syncRunsTotal, err = meter.Int64Counter(
		"hackpad_sync_runs_total",
		metric.WithDescription("Pad list synchronizations by mode and outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.syncListedPads, err = meter.Int64Histogram(
		"hackpad_sync_listed_pads",
		metric.WithDescription("Number of pads in a fetched listing"),
		metric.WithUnit("{pad}"),
		metric.WithExplicitBucketBoundaries(0, 10, 50, 100, 250, 500, 1000, 5000),
	)
	if err != nil {
		return nil, err
	}

	m.syncNewPadsTotal, err = meter.Int64Counter(
		"hackpad_sync_new_pads_total",
		metric.WithDescription("Pads reported as new by a listing check"),
		metric.WithUnit("{pad}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	m := globalMetrics
	globalMetrics = nil

	var errs []error
	if m.textfile != "" && m.registry != nil {
		if err := prometheus.WriteToTextfile(m.textfile, m.registry); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, m.meterProvider.Shutdown(ctx))
	return errors.Join(errs...)
}

// RecordCacheLookup records whether a pad format was served from the cache.
func RecordCacheLookup(ctx context.Context, format string, result CacheResult) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.cacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("format", format),
		attribute.String("cache_result", string(result)),
	))
}

// RecordStoreOp records pad cache operation metrics.
func RecordStoreOp(ctx context.Context, op, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	globalMetrics.storeOpDuration.Record(ctx, duration.Seconds(), attrs)
	globalMetrics.storeOpsTotal.Add(ctx, 1, attrs)
}

// RecordUpstreamFetch records a request to the pad API. status is the HTTP
// status code, or 0 when no response was received.
func RecordUpstreamFetch(ctx context.Context, endpoint string, status int, duration time.Duration, bytesRead int64, outcome string) {
	if globalMetrics == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("endpoint", endpoint),
		attribute.Int("status_code", status),
		attribute.String("outcome", outcome),
	}
	globalMetrics.upstreamFetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	globalMetrics.upstreamFetchTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if bytesRead > 0 {
		globalMetrics.upstreamFetchBytesTotal.Add(ctx, bytesRead, metric.WithAttributes(attrs...))
	}
}

// RecordSync records a pad list synchronization. newPads is only meaningful
// for checks and is ignored when negative.
func RecordSync(ctx context.Context, mode, outcome string, listed, newPads int) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	)
	globalMetrics.syncRunsTotal.Add(ctx, 1, attrs)
	if outcome != "success" {
		return
	}
	globalMetrics.syncListedPads.Record(ctx, int64(listed), metric.WithAttributes(attribute.String("mode", mode)))
	if newPads >= 0 {
		globalMetrics.syncNewPadsTotal.Add(ctx, int64(newPads), metric.WithAttributes(attribute.String("mode", mode)))
	}
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
