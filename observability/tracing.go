package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/saintparish4/wifisim/logging"
)

const tracerName = "github.com/saintparish4/wifisim"

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string    // stdout
	Writer      io.Writer // stdout exporter destination, defaults to os.Stdout
	SampleRatio float64
}

// TracingConfigFromEnv reads WIFISIM_TRACING_* variables.
func TracingConfigFromEnv() TracingConfig {
	service := os.Getenv("WIFISIM_TRACING_SERVICE_NAME")
	if service == "" {
		service = "wifisim"
	}
	exporter := strings.ToLower(os.Getenv("WIFISIM_TRACING_EXPORTER"))
	if exporter == "" {
		exporter = "stdout"
	}
	return TracingConfig{
		Enabled:     strings.EqualFold(os.Getenv("WIFISIM_TRACING_ENABLED"), "true"),
		ServiceName: service,
		Exporter:    exporter,
		SampleRatio: 1.0,
	}
}

// InitTracing installs a global tracer provider and returns a shutdown
// function that flushes pending spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	service := cfg.ServiceName
	if service == "" {
		service = "wifisim"
	}
	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			attribute.String("service.name", service),
			attribute.String("service.namespace", "wifisim"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", service),
	)

	return tp.Shutdown, nil
}

func exporterFromConfig(cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(
			stdouttrace.WithWriter(w),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// RunAttributes describe a simulation run on its span
type RunAttributes struct {
	RunID    string
	Scenario string
	Nodes    int
	Flows    int
	Duration float64
}

// StartRunSpan opens the span covering one simulation run.
func StartRunSpan(ctx context.Context, attrs RunAttributes) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "simulation.run",
		trace.WithAttributes(
			attribute.String("wifisim.run_id", attrs.RunID),
			attribute.String("wifisim.scenario", attrs.Scenario),
			attribute.Int("wifisim.nodes", attrs.Nodes),
			attribute.Int("wifisim.flows", attrs.Flows),
			attribute.Float64("wifisim.duration_s", attrs.Duration),
		),
	)
}

// ShutdownWithTimeout invokes the provided shutdown function with a bounded
// timeout, logging errors in the shutdown path.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
