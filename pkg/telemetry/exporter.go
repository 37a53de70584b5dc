package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc/credentials/insecure"
)

// createExporter creates an OTLP trace exporter based on the options.
func createExporter(ctx context.Context, opts Options) (*otlptrace.Exporter, error) {
	switch strings.ToLower(opts.Protocol) {
	case "http/protobuf", "http":
		return createHTTPExporter(ctx, opts)
	default:
		return createGRPCExporter(ctx, opts)
	}
}

func createGRPCExporter(ctx context.Context, opts Options) (*otlptrace.Exporter, error) {
	grpcOpts := []otlptracegrpc.Option{}

	if opts.Endpoint != "" {
		// The gRPC client wants a bare host:port
		endpoint := strings.TrimPrefix(opts.Endpoint, "https://")
		endpoint = strings.TrimPrefix(endpoint, "http://")
		grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpoint(endpoint))
	}

	if len(opts.Headers) > 0 {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(opts.Headers))
	}

	if opts.Insecure || strings.HasPrefix(opts.Endpoint, "http://") {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	return otlptracegrpc.New(ctx, grpcOpts...)
}

func createHTTPExporter(ctx context.Context, opts Options) (*otlptrace.Exporter, error) {
	httpOpts := []otlptracehttp.Option{}

	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if strings.HasPrefix(endpoint, "https://") {
			endpoint = strings.TrimPrefix(endpoint, "https://")
		} else if strings.HasPrefix(endpoint, "http://") {
			endpoint = strings.TrimPrefix(endpoint, "http://")
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(endpoint))
	}

	if len(opts.Headers) > 0 {
		httpOpts = append(httpOpts, otlptracehttp.WithHeaders(opts.Headers))
	}

	if opts.Insecure {
		httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
	}

	return otlptracehttp.New(ctx, httpOpts...)
}
