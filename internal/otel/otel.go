package otel

import (
	"context"
	"sync"
	"time"

	eventbus "github.com/hanpama/gqlbind/internal/eventbus"
	events "github.com/hanpama/gqlbind/internal/events"
	reqid "github.com/hanpama/gqlbind/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const tracerName = "gqlbind"

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Subscribe(tp.Tracer(tracerName))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Subscribe records spans for bus events with tracer until the returned
// function is called.
func Subscribe(tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register()
}

type subscriber struct {
	tracer    trace.Tracer
	httpSpans sync.Map // request id -> trace.Span
	gqlSpans  sync.Map // request id -> trace.Span
}

// parent returns ctx carrying the innermost open span of its request.
func (s *subscriber) parent(ctx context.Context) context.Context {
	rid, ok := reqid.FromContext(ctx)
	if !ok {
		return ctx
	}
	if v, ok := s.gqlSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	if v, ok := s.httpSpans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}

func (s *subscriber) register() func() {
	stops := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.RequestStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Method),
				attribute.String("http.target", e.Path),
				attribute.String("request.id", rid),
			)
			s.httpSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.RequestFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.httpSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			if e.Status >= 500 {
				span.SetStatus(codes.Error, "")
			}
			span.End()
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.OperationStart) {
			rid, _ := reqid.FromContext(ctx)
			_, span := s.tracer.Start(s.parent(ctx), "graphql.operation")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.Name),
				attribute.String("graphql.operation.type", e.Type),
			)
			s.gqlSpans.Store(rid, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.OperationFinish) {
			rid, _ := reqid.FromContext(ctx)
			v, ok := s.gqlSpans.LoadAndDelete(rid)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
			if e.Type == "subscription" {
				span.SetAttributes(attribute.Int("graphql.subscription.events", e.Events))
			}
			if len(e.Errors) > 0 {
				span.SetStatus(codes.Error, e.Errors[0].Error())
			}
			span.End()
		}),

		// Build and resolver events arrive once the work is over, so their
		// spans are recorded after the fact.
		eventbus.Subscribe(func(ctx context.Context, e events.BuildFinish) {
			span := s.finished(ctx, "wiring.build", e.Duration)
			span.SetAttributes(
				attribute.Int("wiring.types", e.Types),
				attribute.Int("wiring.fields", e.Fields),
				attribute.Int("wiring.error_count", len(e.Errors)),
			)
			if len(e.Errors) > 0 {
				span.SetStatus(codes.Error, e.Errors[0].Error())
			}
			span.End()
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.ResolverFinish) {
			span := s.finished(s.parent(ctx), "graphql.resolve", e.Duration)
			span.SetAttributes(
				attribute.String("graphql.field.parent", e.ObjectType),
				attribute.String("graphql.field.name", e.Field),
			)
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func (s *subscriber) finished(ctx context.Context, name string, d time.Duration) trace.Span {
	_, span := s.tracer.Start(ctx, name, trace.WithTimestamp(time.Now().Add(-d)))
	return span
}
