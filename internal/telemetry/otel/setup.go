// Package otel wires OpenTelemetry for the session service: spans from the HTTP and gRPC
// middleware, runtime metrics, and audit events as OTel log records.
package otel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const defaultMetricInterval = 10 * time.Second

// Options configures NewProviders. Only ServiceName is required.
type Options struct {
	// Endpoint is the collector address (host:port or URL). Empty disables export.
	Endpoint       string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	MetricInterval time.Duration
	Logger         *zap.Logger
}

// Providers holds the SDK providers. Shutdown flushes and stops whichever were started.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider

	logger *zap.Logger
	stops  []namedStop
}

type namedStop struct {
	name string
	stop func(context.Context) error
}

// collector is a parsed OTLP endpoint.
type collector struct {
	target   string
	insecure bool
}

// parseCollector reduces endpoint to the host:port the gRPC exporters dial. URL paths are
// dropped; only an https scheme enables TLS, and force turns it off regardless.
func parseCollector(endpoint string, force bool) (collector, error) {
	raw := endpoint
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return collector{}, fmt.Errorf("otlp endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return collector{}, fmt.Errorf("otlp endpoint %q: missing host", endpoint)
	}
	return collector{target: u.Host, insecure: force || u.Scheme != "https"}, nil
}

func newResource(opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(opts.ServiceName)}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(opts.ServiceVersion))
	}
	if opts.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentNameKey.String(opts.Environment))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// NewProviders builds the tracer, meter and logger providers. With no endpoint the providers
// are local SDK instances without exporters, so instrumentation still works in development.
func NewProviders(ctx context.Context, opts Options) (*Providers, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	res, err := newResource(opts)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		logger.Info("otel export disabled: no OTLP endpoint")
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
			MeterProvider:  metric.NewMeterProvider(metric.WithResource(res)),
			LoggerProvider: sdklog.NewLoggerProvider(sdklog.WithResource(res)),
			logger:         logger,
		}, nil
	}
	col, err := parseCollector(endpoint, opts.Insecure)
	if err != nil {
		return nil, err
	}
	interval := opts.MetricInterval
	if interval <= 0 {
		interval = defaultMetricInterval
	}

	p := &Providers{logger: logger}
	fail := func(what string, err error) (*Providers, error) {
		_ = p.Shutdown(ctx)
		return nil, fmt.Errorf("otlp %s exporter: %w", what, err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(col.target)}
	if col.insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return fail("trace", err)
	}
	p.TracerProvider = sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	p.stops = append(p.stops, namedStop{"tracer", p.TracerProvider.Shutdown})

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(col.target)}
	if col.insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return fail("metric", err)
	}
	p.MeterProvider = metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExp, metric.WithInterval(interval))),
	)
	p.stops = append(p.stops, namedStop{"meter", p.MeterProvider.Shutdown})

	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(col.target)}
	if col.insecure {
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		return fail("log", err)
	}
	p.LoggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	p.stops = append(p.stops, namedStop{"logger", p.LoggerProvider.Shutdown})

	logger.Info("otel export enabled",
		zap.String("collector", col.target),
		zap.Bool("insecure", col.insecure),
		zap.String("service", opts.ServiceName),
	)
	return p, nil
}

// Shutdown stops the providers in reverse start order, logging and combining failures.
func (p *Providers) Shutdown(ctx context.Context) error {
	var err error
	for i := len(p.stops) - 1; i >= 0; i-- {
		s := p.stops[i]
		if serr := s.stop(ctx); serr != nil {
			p.logger.Warn("otel shutdown", zap.String("provider", s.name), zap.Error(serr))
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.name, serr))
		}
	}
	p.stops = nil
	return err
}

// SetGlobal installs the tracer and meter providers for otelgrpc and the HTTP tracing
// middleware, and routes SDK export errors to the zap logger. The LoggerProvider is passed
// explicitly to the audit emitter instead.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		p.logger.Warn("otel export", zap.Error(err))
	}))
}
