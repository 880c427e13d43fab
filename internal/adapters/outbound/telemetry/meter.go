package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const defaultExportInterval = 15 * time.Second

// MetricConfig configures the global meter provider.
type MetricConfig struct {
	Resource

	// OTLPEndpoint is the collector's gRPC address. Instruments record into the
	// global no-op provider when it is empty.
	OTLPEndpoint string

	// ExportInterval defaults to 15s.
	ExportInterval time.Duration
}

// InitMetrics installs a meter provider that periodically pushes to the
// collector. The returned function flushes and stops it.
func InitMetrics(ctx context.Context, config MetricConfig) (shutdown func(context.Context) error, err error) {
	if config.OTLPEndpoint == "" {
		return noopShutdown, nil
	}
	interval := config.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}

	res, err := config.Resource.build()
	if err != nil {
		return nil, err
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(config.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter for %s: %w", config.OTLPEndpoint, err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)
	return provider.Shutdown, nil
}

func noopShutdown(context.Context) error { return nil }
