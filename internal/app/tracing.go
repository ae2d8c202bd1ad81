package app

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// logProcessor writes every ended span to the logger at debug level
type logProcessor struct {
	logger *logrus.Logger
}

func (p *logProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {}

func (p *logProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	fields := logrus.Fields{
		"span":     s.Name(),
		"trace_id": s.SpanContext().TraceID().String(),
		"duration": s.EndTime().Sub(s.StartTime()).Round(time.Millisecond),
	}
	for _, kv := range s.Attributes() {
		fields[string(kv.Key)] = kv.Value.Emit()
	}
	if status := s.Status(); status.Description != "" {
		fields["error"] = status.Description
	}
	p.logger.WithFields(fields).Debug("Span ended")
}

func (p *logProcessor) Shutdown(ctx context.Context) error { return nil }

func (p *logProcessor) ForceFlush(ctx context.Context) error { return nil }

// SetupTracing installs a tracer provider that logs spans. The returned
// function shuts the provider down.
func SetupTracing(logger *logrus.Logger) func(context.Context) error {
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", "streamarr"))),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(&logProcessor{logger: logger}),
	)
	otel.SetTracerProvider(provider)
	logger.Info("Tracing enabled")
	return provider.Shutdown
}
