package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// DefaultServiceName identifies the oracle pusher in exported telemetry.
const DefaultServiceName = "oracle-pusher"

// Resource describes the process that emits traces and metrics.
type Resource struct {
	// ServiceName defaults to DefaultServiceName.
	ServiceName string

	// ServiceVersion is usually the git commit of the build.
	ServiceVersion string

	// Environment becomes deployment.environment.name, e.g. "production".
	Environment string
}

func (r Resource) build() (*resource.Resource, error) {
	name := r.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(name),
			semconv.ServiceVersion(r.ServiceVersion),
			semconv.DeploymentEnvironmentName(r.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}
	return res, nil
}
