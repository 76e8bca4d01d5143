package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ServiceVersion is stamped on every exported span and metric. Release
// builds override it with -ldflags "-X .../telemetry.ServiceVersion=...".
var ServiceVersion = "dev"

// providerShutdownTimeout bounds the final flush of spans and metrics
const providerShutdownTimeout = 10 * time.Second

func serviceResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}
	return res, nil
}

// flushWithin runs a provider shutdown under the caller's deadline, capped
// at providerShutdownTimeout.
func flushWithin(ctx context.Context, shutdown func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, providerShutdownTimeout)
	defer cancel()
	return shutdown(ctx)
}
