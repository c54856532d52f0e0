// Package telemetry holds the OpenTelemetry meter and tracer used by the
// engine. Both default to no-op implementations until Start (or one of the
// Set functions) installs real providers.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	noopm "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
	noopt "go.opentelemetry.io/otel/trace/noop"
)

const (
	// InstrumentName is the instrumentation scope of every meter and tracer.
	InstrumentName = "github.com/vk/flowgridgo"
	// ServiceName is the default resource service name.
	ServiceName = "flowgridgo"
)

var (
	// Meter is the engine-wide meter.
	Meter metric.Meter = noopm.Meter{}
	// Tracer is the engine-wide tracer.
	Tracer trace.Tracer = noopt.NewTracerProvider().Tracer("")

	mu          sync.Mutex
	instruments *engineInstruments
)

type engineInstruments struct {
	processDuration metric.Float64Histogram
	nodeErrors      metric.Int64Counter
	commands        metric.Int64Counter
}

// SetMeterProvider replaces the meter and rebuilds the instruments.
func SetMeterProvider(mp metric.MeterProvider) {
	mu.Lock()
	defer mu.Unlock()
	Meter = mp.Meter(InstrumentName)
	instruments = nil
}

// SetTracerProvider replaces the tracer.
func SetTracerProvider(tp trace.TracerProvider) {
	mu.Lock()
	defer mu.Unlock()
	Tracer = tp.Tracer(InstrumentName)
}

func getInstruments() *engineInstruments {
	mu.Lock()
	defer mu.Unlock()
	if instruments != nil {
		return instruments
	}
	in := &engineInstruments{}
	var err error
	if in.processDuration, err = Meter.Float64Histogram("flowgrid.node.process.duration",
		metric.WithDescription("Duration of one node processing run."),
		metric.WithUnit("s"),
	); err != nil {
		in.processDuration, _ = noopm.Meter{}.Float64Histogram("flowgrid.node.process.duration")
	}
	if in.nodeErrors, err = Meter.Int64Counter("flowgrid.node.errors",
		metric.WithDescription("Processing runs that ended with an error."),
	); err != nil {
		in.nodeErrors, _ = noopm.Meter{}.Int64Counter("flowgrid.node.errors")
	}
	if in.commands, err = Meter.Int64Counter("flowgrid.commands",
		metric.WithDescription("Commands applied by the dispatcher."),
	); err != nil {
		in.commands, _ = noopm.Meter{}.Int64Counter("flowgrid.commands")
	}
	instruments = in
	return in
}

// RecordProcessing records one node processing run.
func RecordProcessing(ctx context.Context, nodeType string, d time.Duration, err error) {
	in := getInstruments()
	attrs := metric.WithAttributes(attribute.String("node.type", nodeType))
	in.processDuration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		in.nodeErrors.Add(ctx, 1, attrs)
	}
}

// RecordCommand counts a dispatcher operation (execute, undo, redo) on a
// command type.
func RecordCommand(ctx context.Context, op, commandType string, err error) {
	getInstruments().commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command.op", op),
		attribute.String("command.type", commandType),
		attribute.Bool("command.failed", err != nil),
	))
}

// Option configures Start.
type Option func(*options)

type options struct {
	endpoint    string
	serviceName string
	insecure    bool
}

// WithEndpoint sets the OTLP HTTP endpoint (host:port).
func WithEndpoint(endpoint string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

// WithServiceName overrides the resource service name.
func WithServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// WithInsecure disables TLS towards the collector.
func WithInsecure() Option {
	return func(o *options) { o.insecure = true }
}

// Start installs OTLP HTTP exporters for metrics and traces. The returned
// clean function flushes and shuts both providers down.
func Start(ctx context.Context, opts ...Option) (clean func() error, err error) {
	o := &options{serviceName: ServiceName}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(o.serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var metricOpts []otlpmetrichttp.Option
	var traceOpts []otlptracehttp.Option
	if o.endpoint != "" {
		metricOpts = append(metricOpts, otlpmetrichttp.WithEndpoint(o.endpoint))
		traceOpts = append(traceOpts, otlptracehttp.WithEndpoint(o.endpoint))
	}
	if o.insecure {
		metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}

	metricExporter, err := otlpmetrichttp.New(ctx, metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics exporter: %w", err)
	}
	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)
	SetMeterProvider(mp)
	SetTracerProvider(tp)

	return func() error {
		var errs []error
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown MeterProvider: %w", err))
		}
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown TracerProvider: %w", err))
		}
		return errors.Join(errs...)
	}, nil
}
