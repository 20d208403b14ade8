package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"

	"github.com/tigerroll/datafactory/pkg/etl/core/config"
	metrics "github.com/tigerroll/datafactory/pkg/etl/core/metrics"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/exception"
	"github.com/tigerroll/datafactory/pkg/etl/support/util/logger"
)

// NewRecorder returns a PrometheusRecorder when metrics are enabled and a no-op recorder otherwise.
// The Prometheus recorder writes its textfile when the application stops.
func NewRecorder(lc fx.Lifecycle, cfg *config.Config) metrics.MetricRecorder {
	if !cfg.Metrics.Enabled {
		return metrics.NewNoOpMetricRecorder()
	}
	recorder := NewPrometheusRecorder()
	if cfg.Metrics.Textfile != "" {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return recorder.WriteTextfile(cfg.Metrics.Textfile)
			},
		})
	}
	return recorder
}

// NewTracerProvider builds the SDK tracer provider. Spans are exported over OTLP/HTTP
// only when Tracing.Endpoint is set.
func NewTracerProvider(cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "datafactory"
	}
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	if cfg.Endpoint != "" {
		clientOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(context.Background(), clientOpts...)
		if err != nil {
			return nil, exception.NewPipelineError("metrics", "failed to create OTLP trace exporter", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Infof("Tracing: exporting spans to %s", cfg.Endpoint)
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// NewTracer returns an OpenTelemetryTracer over a provider that is shut down with the application.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tp, err := NewTracerProvider(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return NewOpenTelemetryTracer(tp), nil
}

// Module is an Fx module that provides the metric recorder and tracer selected by configuration.
var Module = fx.Options(
	fx.Provide(NewRecorder),
	fx.Provide(NewTracer),
)
