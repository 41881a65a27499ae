package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"threatdash/internal/config"
)

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s data = %T", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	t.Fatalf("metric %s not collected", name)
	return 0
}

func TestInstallRoutesGlobalInstruments(t *testing.T) {
	prev := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	ctx := context.Background()
	// Created before install, as openBackend does; the global delegate
	// forwards them to the new provider.
	in := New()
	reader := sdkmetric.NewManualReader()
	mp := install(reader, "test")
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	in.IngestedItems.Add(ctx, 3)
	in.IngestedItems.Add(ctx, 2)
	in.ScheduledRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", "manual")))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := sumOf(t, rm, "threatdash_ingested_items_total"); got != 5 {
		t.Fatalf("ingested = %d, want 5", got)
	}
	if got := sumOf(t, rm, "threatdash_scheduled_runs_total"); got != 1 {
		t.Fatalf("scheduled runs = %d, want 1", got)
	}
	if v, ok := rm.Resource.Set().Value("service.name"); !ok || v.AsString() != "threatdash" {
		t.Fatalf("service.name = %v", v)
	}
}

func TestSetupDisabledIsNoop(t *testing.T) {
	prev := otel.GetMeterProvider()
	shutdown, err := Setup(context.Background(), config.MetricsConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatal(err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if otel.GetMeterProvider() != prev {
		t.Fatal("disabled setup replaced the global provider")
	}
}
