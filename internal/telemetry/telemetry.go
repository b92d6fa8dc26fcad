package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config selects which exporters are started.
type Config struct {
	ServiceName string
	Version     string

	// OTLP enables the OTLP gRPC trace and metric exporters, configured from the standard
	// OTEL_EXPORTER_OTLP_* environment variables.
	OTLP bool

	// Prometheus enables a pull exporter served by Provider.MetricsHandler.
	Prometheus bool
}

// Provider owns the telemetry pipelines.
type Provider struct {
	shutdowns []func(context.Context) error
	registry  *prometheus.Registry
}

// InitTelemetry initializes OpenTelemetry with the exporters enabled in cfg.
// Configuration for OTLP is read from environment variables:
// - OTEL_EXPORTER_OTLP_ENDPOINT: The OTLP endpoint (e.g., https://api.honeycomb.io)
// - OTEL_EXPORTER_OTLP_HEADERS: Headers for authentication (e.g., x-honeycomb-team=API_KEY)
// - OTEL_SERVICE_NAME: Service name override (defaults to cfg.ServiceName)
//
// Call Shutdown on graceful shutdown.
func InitTelemetry(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
		resource.WithFromEnv(), // Read from OTEL_RESOURCE_ATTRIBUTES env var
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &Provider{}

	if cfg.OTLP {
		traceShutdown, err := initTraceProvider(ctx, res)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize trace provider, continuing without tracing")
		} else {
			p.shutdowns = append(p.shutdowns, traceShutdown)
		}
	}

	readers := make([]sdkmetric.Reader, 0, 2)

	if cfg.OTLP {
		metricExporter, err := otlpmetricgrpc.New(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to create OTLP metric exporter, continuing without it")
		} else {
			readers = append(readers, sdkmetric.NewPeriodicReader(
				metricExporter,
				sdkmetric.WithInterval(10*time.Second), // Export metrics every 10 seconds
			))
		}
	}

	if cfg.Prometheus {
		p.registry = prometheus.NewRegistry()
		promExporter, err := otelprom.New(otelprom.WithRegisterer(p.registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		readers = append(readers, promExporter)
	}

	if len(readers) > 0 {
		opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
		for _, r := range readers {
			opts = append(opts, sdkmetric.WithReader(r))
		}
		mp := sdkmetric.NewMeterProvider(opts...)
		otel.SetMeterProvider(mp)
		p.shutdowns = append(p.shutdowns, mp.Shutdown)
	}

	// Set global propagator for distributed tracing
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info().
		Str("service", cfg.ServiceName).
		Str("version", cfg.Version).
		Bool("otlp", cfg.OTLP).
		Bool("prometheus", cfg.Prometheus).
		Msg("OpenTelemetry initialized")

	return p, nil
}

// MetricsHandler serves the prometheus scrape endpoint, or nil when prometheus is disabled.
func (p *Provider) MetricsHandler() http.Handler {
	if p.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops every exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range p.shutdowns {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("telemetry shutdown errors: %w", err)
	}
	return nil
}

// initTraceProvider initializes the trace provider with OTLP exporter
func initTraceProvider(ctx context.Context, res *resource.Resource) (func(context.Context) error, error) {
	traceExporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// Create trace provider with batch span processor
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter,
			sdktrace.WithBatchTimeout(5*time.Second),
			sdktrace.WithMaxExportBatchSize(512),
		),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
