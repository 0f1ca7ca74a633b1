package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/visa2any/fly2any-sub046"

// Metrics holds the pre-warm job instruments.
type Metrics struct {
	RunCount        metric.Int64Counter
	RunDuration     metric.Float64Histogram
	ItemsDelivered  metric.Int64Counter
	ItemsFailed     metric.Int64Counter
	FetchDuration   metric.Float64Histogram
	CoverageUpserts metric.Int64Counter
}

// Setup initializes OpenTelemetry tracing, metrics and log export over OTLP/gRPC.
// The global zerolog logger is teed into the log pipeline, so call it after
// InitLogger and derive component loggers afterwards.
func Setup(ctx context.Context, serviceName, serviceVersion, endpoint string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meterProvider)

	if err := runtime.Start(
		runtime.WithMeterProvider(meterProvider),
		runtime.WithMinimumReadMemStatsInterval(15*time.Second),
	); err != nil {
		_ = errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
		return nil, err
	}

	logExporter, err := otlploggrpc.New(ctx,
		otlploggrpc.WithEndpoint(endpoint),
		otlploggrpc.WithInsecure(),
	)
	if err != nil {
		_ = errors.Join(tracerProvider.Shutdown(ctx), meterProvider.Shutdown(ctx))
		return nil, err
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)
	ExportLogs(loggerProvider)

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tracerProvider.Shutdown(ctx),
			meterProvider.Shutdown(ctx),
			loggerProvider.Shutdown(ctx),
		)
	}

	return shutdown, nil
}

// InitMetrics creates the job instruments on the global meter provider. Without
// Setup the global provider is a no-op and recording is free.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	runCount, err := meter.Int64Counter(
		"prewarm.run.count",
		metric.WithDescription("Number of pre-warm runs by final state"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"prewarm.run.duration",
		metric.WithDescription("Pre-warm run duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	itemsDelivered, err := meter.Int64Counter(
		"prewarm.items.delivered",
		metric.WithDescription("Route dates fetched and persisted"),
	)
	if err != nil {
		return nil, err
	}

	itemsFailed, err := meter.Int64Counter(
		"prewarm.items.failed",
		metric.WithDescription("Route dates that failed to fetch or persist"),
	)
	if err != nil {
		return nil, err
	}

	fetchDuration, err := meter.Float64Histogram(
		"prewarm.fetch.duration",
		metric.WithDescription("Upstream price fetch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	coverageUpserts, err := meter.Int64Counter(
		"prewarm.coverage.upserts",
		metric.WithDescription("Cache coverage rows written"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RunCount:        runCount,
		RunDuration:     runDuration,
		ItemsDelivered:  itemsDelivered,
		ItemsFailed:     itemsFailed,
		FetchDuration:   fetchDuration,
		CoverageUpserts: coverageUpserts,
	}, nil
}

// StartSpan starts a new trace span
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(instrumentationName)
	return tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// RecordError records an error in the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
}

// RecordRun records the outcome of one run. Safe on a nil receiver.
func (m *Metrics) RecordRun(ctx context.Context, state string, duration time.Duration, delivered, failed int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("state", state))
	m.RunCount.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.ItemsDelivered.Add(ctx, int64(delivered))
	m.ItemsFailed.Add(ctx, int64(failed))
}

// RecordFetch records the latency of one upstream call. Safe on a nil receiver.
func (m *Metrics) RecordFetch(ctx context.Context, route string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("route", route),
		attribute.Bool("error", err != nil),
	))
}

// RecordCoverageUpsert counts one coverage write. Safe on a nil receiver.
func (m *Metrics) RecordCoverageUpsert(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.CoverageUpserts.Add(ctx, 1, metric.WithAttributes(attribute.String("cache.source", source)))
}
