// Package telemetry provides OpenTelemetry integration for distributed tracing.
//
// It sets up a global TracerProvider that the analysis service uses via
// otel.Tracer(). Options come from the application config; environment
// variables override individual fields so standard OTEL_* deployment
// wiring keeps working:
//
//	OTEL_EXPORTER_OTLP_ENDPOINT     - OTLP collector endpoint
//	OTEL_EXPORTER_OTLP_PROTOCOL     - Protocol: grpc or http/protobuf
//	OTEL_EXPORTER_OTLP_HEADERS      - Headers (e.g., Authorization=Bearer xxx)
//	OTEL_EXPORTER_OTLP_INSECURE     - Use insecure connection
//	OTEL_TRACES_SAMPLER             - Sampler type (default: always_on)
//	OTEL_TRACES_SAMPLER_ARG         - Sampler argument (e.g., ratio)
package telemetry

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Options configures tracing initialization.
type Options struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Protocol       string // grpc or http/protobuf
	Headers        map[string]string
	Insecure       bool
	Sampler        string
	SamplerArg     string
}

// ShutdownFunc is a function that shuts down the TracerProvider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(_ context.Context) error {
	return nil
}

// Init initializes OpenTelemetry and sets up the global TracerProvider.
// When tracing is disabled it returns a no-op shutdown function and the
// global TracerProvider remains the default no-op provider.
func Init(ctx context.Context, opts Options) (ShutdownFunc, error) {
	applyEnvOverrides(&opts)

	if !opts.Enabled {
		return noopShutdown, nil
	}

	res, err := buildResource(opts)
	if err != nil {
		return noopShutdown, err
	}

	exporter, err := createExporter(ctx, opts)
	if err != nil {
		return noopShutdown, err
	}

	tp := trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(exporter),
		trace.WithSampler(createSampler(opts)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		return tp.Shutdown(ctx)
	}, nil
}

// buildResource creates an OpenTelemetry Resource with service information.
func buildResource(opts Options) (*resource.Resource, error) {
	name := opts.ServiceName
	if name == "" {
		name = "heapscope"
	}
	version := opts.ServiceVersion
	if version == "" {
		version = "unknown"
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		attrs = append(attrs, semconv.HostName(hostname))
	}

	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
}

// applyEnvOverrides lets standard OTEL_* variables override config fields.
func applyEnvOverrides(opts *Options) {
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		opts.Endpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL"); v != "" {
		opts.Protocol = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		opts.Headers = ParseKeyValuePairs(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"); v != "" {
		opts.Insecure = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER"); v != "" {
		opts.Sampler = v
	}
	if v := os.Getenv("OTEL_TRACES_SAMPLER_ARG"); v != "" {
		opts.SamplerArg = v
	}
}

// ParseKeyValuePairs parses a comma-separated list of key=value pairs.
// Example: "key1=value1,key2=value2".
func ParseKeyValuePairs(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		// Split on first '=' only to allow '=' in values
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(pair[:idx])
		value := strings.TrimSpace(pair[idx+1:])
		if key != "" {
			result[key] = value
		}
	}
	return result
}
