package config

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/pandamime100hp/iracingtelemotron/version"
)

type Telemetry struct {
	ctx           context.Context
	meterProvider *sdkmetric.MeterProvider
}

func (t *Telemetry) Shutdown() {
	if err := t.meterProvider.Shutdown(t.ctx); err != nil {
		os.Stderr.WriteString("could not shutdown meter provider: " + err.Error() + "\n")
	}
}

// SetupTelemetry initializes the global meter provider. Metrics are exported
// via OTLP/gRPC to TelemetryEndpoint, or to stdout when the endpoint is
// literally "stdout" (debugging aid).
func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	var (
		exporter sdkmetric.Exporter
		err      error
	)
	if TelemetryEndpoint == "stdout" {
		exporter, err = stdoutmetric.New()
	} else {
		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName("iracingtelemotron"),
			semconv.ServiceVersion(version.Version),
		))
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(meterProvider)
	return &Telemetry{ctx: ctx, meterProvider: meterProvider}, nil
}
