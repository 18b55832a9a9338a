// Package otel wires OpenTelemetry tracing to the eventbus: one span
// per named-query resolution, with child spans for the outbound HTTP
// request and the transformer run.
package otel

import (
	"context"
	"sync"

	eventbus "github.com/queryline/queryline/internal/eventbus"
	events "github.com/queryline/queryline/internal/events"
	reqid "github.com/queryline/queryline/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithInsecure()))
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

	sub := &subscriber{
		tracer:     otel.Tracer("queryline"),
		resolves:   map[string][]trace.Span{},
		https:      map[string][]trace.Span{},
		transforms: map[string][]trace.Span{},
	}
	sub.register()

	return tp.Shutdown, nil
}

// subscriber keeps, per invocation ID, stacks of open spans mirroring
// the dependency chain. Resolution within one invocation is sequential,
// so stacks suffice even for nested transform-triggered resolutions.
type subscriber struct {
	tracer trace.Tracer

	mu         sync.Mutex
	resolves   map[string][]trace.Span
	https      map[string][]trace.Span
	transforms map[string][]trace.Span
}

func (s *subscriber) register() {
	eventbus.Subscribe(func(ctx context.Context, e events.ResolveStart) {
		s.mu.Lock()
		defer s.mu.Unlock()
		span := s.start(ctx, "query.resolve")
		span.SetAttributes(
			attribute.String("query.name", e.Name),
			attribute.Int("query.depth", e.Depth),
		)
		s.push(s.resolves, ctx, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.ResolveFinish) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.finish(s.resolves, ctx, e.Err)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.HTTPStart) {
		s.mu.Lock()
		defer s.mu.Unlock()
		span := s.start(ctx, "graphql.request")
		span.SetAttributes(attribute.String("endpoint", e.Endpoint))
		s.push(s.https, ctx, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
		s.mu.Lock()
		defer s.mu.Unlock()
		rid, _ := reqid.FromContext(ctx)
		if stack := s.https[rid]; len(stack) > 0 {
			stack[len(stack)-1].SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		}
		s.finish(s.https, ctx, e.Err)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.TransformStart) {
		s.mu.Lock()
		defer s.mu.Unlock()
		span := s.start(ctx, "query.transform")
		span.SetAttributes(attribute.String("query.name", e.Name))
		s.push(s.transforms, ctx, span)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.TransformFinish) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.finish(s.transforms, ctx, e.Err)
	})

	eventbus.Subscribe(func(ctx context.Context, e events.Warning) {
		s.mu.Lock()
		defer s.mu.Unlock()
		rid, _ := reqid.FromContext(ctx)
		if stack := s.resolves[rid]; len(stack) > 0 {
			stack[len(stack)-1].AddEvent("warning", trace.WithAttributes(
				attribute.String("scope", e.Scope),
				attribute.String("message", e.Message),
			))
		}
	})
}

// start opens a span parented to the innermost open resolve span of the
// invocation, falling back to the event context. Callers hold s.mu.
func (s *subscriber) start(ctx context.Context, name string) trace.Span {
	rid, _ := reqid.FromContext(ctx)
	parent := ctx
	if stack := s.resolves[rid]; len(stack) > 0 {
		parent = trace.ContextWithSpan(ctx, stack[len(stack)-1])
	}
	_, span := s.tracer.Start(parent, name)
	return span
}

func (s *subscriber) push(m map[string][]trace.Span, ctx context.Context, span trace.Span) {
	rid, _ := reqid.FromContext(ctx)
	m[rid] = append(m[rid], span)
}

func (s *subscriber) finish(m map[string][]trace.Span, ctx context.Context, err error) {
	rid, _ := reqid.FromContext(ctx)
	stack := m[rid]
	if len(stack) == 0 {
		return
	}
	span := stack[len(stack)-1]
	if len(stack) == 1 {
		delete(m, rid)
	} else {
		m[rid] = stack[:len(stack)-1]
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
