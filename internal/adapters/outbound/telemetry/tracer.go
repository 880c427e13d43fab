// tracer.go sets up OpenTelemetry tracing for the oracle pusher.
//
// Spans are exported over OTLP gRPC when an endpoint is configured, or pretty
// printed to stdout for local debugging. With neither, the global no-op
// provider is left in place and the spans opened by the services cost nothing.
//
// Usage:
//
//	shutdown, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
//	    Resource:     telemetry.Resource{Environment: "production"},
//	    OTLPEndpoint: "localhost:4317",
//	})
//	defer shutdown(ctx)
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// TracerConfig configures the global tracer provider.
type TracerConfig struct {
	Resource

	// OTLPEndpoint is the collector's gRPC address, e.g. "localhost:4317".
	OTLPEndpoint string

	// Stdout pretty-prints spans when no OTLP endpoint is set.
	Stdout bool

	// SampleRate in [0, 1]. Zero samples every trace.
	SampleRate float64
}

// Enabled reports whether InitTracer would install an exporter.
func (c TracerConfig) Enabled() bool {
	return c.OTLPEndpoint != "" || c.Stdout
}

// InitTracer initializes the global tracer provider.
// Returns a shutdown function that flushes pending spans.
func InitTracer(ctx context.Context, config TracerConfig) (shutdown func(context.Context) error, err error) {
	if !config.Enabled() {
		return noopShutdown, nil
	}
	if config.SampleRate == 0 {
		config.SampleRate = 1.0
	}

	res, err := config.Resource.build()
	if err != nil {
		return nil, err
	}

	exporter, err := spanExporter(ctx, config.OTLPEndpoint)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter,
			trace.WithBatchTimeout(5*time.Second),
		),
		trace.WithResource(res),
		trace.WithSampler(sampler(config.SampleRate)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// spanExporter dials the collector, or falls back to stdout when endpoint is empty.
func spanExporter(ctx context.Context, endpoint string) (trace.SpanExporter, error) {
	if endpoint == "" {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout span exporter: %w", err)
		}
		return exporter, nil
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dialing trace collector %s: %w", endpoint, err)
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP span exporter: %w", err)
	}
	return exporter, nil
}

func sampler(rate float64) trace.Sampler {
	switch {
	case rate >= 1.0:
		return trace.AlwaysSample()
	case rate <= 0:
		return trace.NeverSample()
	default:
		return trace.ParentBased(trace.TraceIDRatioBased(rate))
	}
}
