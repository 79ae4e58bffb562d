package otelx

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/bakkerme/relaypipe/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

const (
	protocolGRPC = "grpc"
	protocolHTTP = "http/protobuf"

	defaultServiceName = "relaypipe"
	shutdownTimeout    = 5 * time.Second
)

// Shutdown flushes buffered spans. It is safe to call when tracing is off.
type Shutdown func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global OTLP tracer provider when cfg.Enabled is set. The
// returned Shutdown is never nil.
func Init(ctx context.Context, logger *slog.Logger, cfg config.OTelEnvConfig) (Shutdown, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled {
		return noopShutdown, nil
	}

	tp, err := newTracerProvider(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("otel initialized",
		"service_name", serviceName(cfg),
		"otlp_endpoint", endpoint(cfg),
		"otlp_protocol", protocol(cfg),
		"sample_ratio", sampleRatio(cfg),
	)
	return tp.Shutdown, nil
}

// ShutdownWithTimeout runs shutdown on a fresh context bounded by a short
// timeout, logging rather than returning its error.
func ShutdownWithTimeout(logger *slog.Logger, shutdown Shutdown) {
	if shutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := shutdown(ctx); err != nil && logger != nil {
		logger.Warn("otel shutdown failed", "error", err)
	}
}

func newTracerProvider(ctx context.Context, cfg config.OTelEnvConfig) (*sdktrace.TracerProvider, error) {
	exp, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(serviceName(cfg))),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exp, sdktrace.WithBatchTimeout(2*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg)))),
	), nil
}

func newTraceExporter(ctx context.Context, cfg config.OTelEnvConfig) (*otlptrace.Exporter, error) {
	target := endpoint(cfg)
	switch p := protocol(cfg); p {
	case protocolHTTP:
		opts := []otlptracehttp.Option{}
		if strings.Contains(target, "://") {
			opts = append(opts, otlptracehttp.WithEndpointURL(target))
		} else {
			opts = append(opts, otlptracehttp.WithEndpoint(target))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
		}
		return otlptracehttp.New(ctx, opts...)
	case protocolGRPC:
		if strings.Contains(target, "://") {
			u, err := url.Parse(target)
			if err != nil {
				return nil, fmt.Errorf("parse OTEL_EXPORTER_OTLP_ENDPOINT: %w", err)
			}
			target = u.Host
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTEL_EXPORTER_OTLP_PROTOCOL %q (expected grpc or http/protobuf)", p)
	}
}

func serviceName(cfg config.OTelEnvConfig) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return defaultServiceName
}

func sampleRatio(cfg config.OTelEnvConfig) float64 {
	switch {
	case cfg.SampleRatio < 0:
		return 0
	case cfg.SampleRatio > 1:
		return 1
	}
	return cfg.SampleRatio
}

func endpoint(cfg config.OTelEnvConfig) string {
	if v := strings.TrimSpace(cfg.Endpoint); v != "" {
		return v
	}
	if protocol(cfg) == protocolHTTP {
		return "localhost:4318"
	}
	return "localhost:4317"
}

func protocol(cfg config.OTelEnvConfig) string {
	switch v := strings.ToLower(strings.TrimSpace(cfg.Protocol)); v {
	case "":
		return protocolGRPC
	case "http":
		return protocolHTTP
	default:
		return v
	}
}
