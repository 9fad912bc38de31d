// Package otel bridges the observe.Sink to OpenTelemetry tracing.
//
// It converts observe.Event objects into OTel spans so that gateway
// queries, provider attempts, fallbacks, and tool calls are visible in any
// OpenTelemetry-compatible backend.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/alvbln/alvin-bot-sub000/observe"
)

const instrumentationName = "github.com/alvbln/alvin-bot-sub000"

// Sink implements observe.Sink by emitting OpenTelemetry spans.
type Sink struct {
	tracer trace.Tracer
}

// NewSink creates an OTel sink using the given TracerProvider.
// If tp is nil, it uses a noop tracer provider.
func NewSink(tp trace.TracerProvider) *Sink {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Sink{
		tracer: tp.Tracer(instrumentationName),
	}
}

// Emit converts an observe.Event into an OTel span.
func (s *Sink) Emit(_ context.Context, event observe.Event) error {
	event.Normalize()

	startTime := event.Timestamp
	_, span := s.tracer.Start(context.Background(), spanNameFor(event), trace.WithTimestamp(startTime))

	attrs := []attribute.KeyValue{
		attribute.String("bot.event.kind", string(event.Kind)),
	}
	if event.RunID != "" {
		attrs = append(attrs, attribute.String("bot.query.id", event.RunID))
	}
	if event.SessionID != "" {
		attrs = append(attrs, attribute.String("bot.session.id", event.SessionID))
	}
	if event.Provider != "" {
		attrs = append(attrs, attribute.String("bot.provider", event.Provider))
	}
	if event.ToolName != "" {
		attrs = append(attrs, attribute.String("bot.tool.name", event.ToolName))
	}
	if event.Status != "" {
		attrs = append(attrs, attribute.String("bot.status", string(event.Status)))
	}
	if event.Message != "" {
		attrs = append(attrs, attribute.String("bot.message", truncate(event.Message, 1024)))
	}
	if event.DurationMs > 0 {
		attrs = append(attrs, attribute.Int64("bot.duration_ms", event.DurationMs))
	}
	for k, v := range event.Attributes {
		attrs = append(attrs, attribute.String("bot.attr."+k, fmt.Sprintf("%v", v)))
	}
	span.SetAttributes(attrs...)

	if event.Status == observe.StatusFailed {
		span.SetStatus(codes.Error, event.Error)
		if event.Error != "" {
			span.RecordError(fmt.Errorf("%s", event.Error))
		}
	} else if event.Status == observe.StatusCompleted {
		span.SetStatus(codes.Ok, "")
	}

	endTime := startTime
	if event.DurationMs > 0 {
		endTime = startTime.Add(time.Duration(event.DurationMs) * time.Millisecond)
	}
	span.End(trace.WithTimestamp(endTime))
	return nil
}

func spanNameFor(event observe.Event) string {
	switch event.Kind {
	case observe.KindQuery:
		return "bot.query"
	case observe.KindProvider:
		if event.Provider != "" {
			return "bot.llm." + event.Provider
		}
		return "bot.llm.query"
	case observe.KindFallback:
		return "bot.fallback"
	case observe.KindTool:
		if event.ToolName != "" {
			return "bot.tool." + event.ToolName
		}
		return "bot.tool.call"
	default:
		return "bot.event"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
