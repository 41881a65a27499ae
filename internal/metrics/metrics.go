// Package metrics holds the OpenTelemetry instruments shared across the
// service. Setup installs the OTLP push pipeline; until it runs the global
// provider is a no-op.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"threatdash/internal/config"
)

const meterName = "threatdash"

type Instruments struct {
	HTTPRequests  metric.Int64Counter
	HTTPDuration  metric.Float64Histogram
	SourceFetches metric.Int64Counter
	SourceErrors  metric.Int64Counter
	IngestedItems metric.Int64Counter
	ExportedFiles metric.Int64Counter
	ScheduledRuns metric.Int64Counter
}

// New creates the instruments on the global meter provider. They follow the
// provider installed later by Setup.
func New() Instruments {
	return NewWith(otel.GetMeterProvider())
}

func NewWith(mp metric.MeterProvider) Instruments {
	meter := mp.Meter(meterName)
	var in Instruments
	in.HTTPRequests, _ = meter.Int64Counter("threatdash_http_requests_total",
		metric.WithDescription("API requests by route and status"),
		metric.WithUnit("1"))
	in.HTTPDuration, _ = meter.Float64Histogram("threatdash_http_request_duration_seconds",
		metric.WithDescription("API request latency"),
		metric.WithUnit("s"))
	in.SourceFetches, _ = meter.Int64Counter("threatdash_source_fetches_total",
		metric.WithDescription("Data source fetches by mode and resource"),
		metric.WithUnit("1"))
	in.SourceErrors, _ = meter.Int64Counter("threatdash_source_errors_total",
		metric.WithDescription("Failed data source fetches"),
		metric.WithUnit("1"))
	in.IngestedItems, _ = meter.Int64Counter("threatdash_ingested_items_total",
		metric.WithDescription("Feed items stored as new articles"),
		metric.WithUnit("1"))
	in.ExportedFiles, _ = meter.Int64Counter("threatdash_exported_files_total",
		metric.WithDescription("JSON files written by the static export"),
		metric.WithUnit("1"))
	in.ScheduledRuns, _ = meter.Int64Counter("threatdash_scheduled_runs_total",
		metric.WithDescription("Pipeline runs by trigger and outcome"),
		metric.WithUnit("1"))
	return in
}

// Setup starts pushing metrics to the configured OTLP gRPC endpoint and
// returns the shutdown func that flushes them. When metrics are disabled it
// does nothing.
func Setup(ctx context.Context, cfg config.MetricsConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	exp, err := otlpmetricgrpc.New(initCtx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metrics exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(time.Duration(cfg.IntervalSec)*time.Second))
	mp := install(reader, version)
	slog.Info("metrics initialized", "endpoint", endpoint, "interval_sec", cfg.IntervalSec)
	return mp.Shutdown, nil
}

// install makes a provider reading through reader the global one.
func install(reader sdkmetric.Reader, version string) *sdkmetric.MeterProvider {
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(serviceResource(version)),
	)
	otel.SetMeterProvider(mp)
	return mp
}

func serviceResource(version string) *sdkresource.Resource {
	res, err := sdkresource.Merge(sdkresource.Default(), sdkresource.NewSchemaless(
		semconv.ServiceName(meterName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return sdkresource.Default()
	}
	return res
}
