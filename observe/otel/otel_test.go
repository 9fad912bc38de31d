package otel

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alvbln/alvin-bot-sub000/observe"
)

func TestSinkEmitsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	sink := NewSink(tp)
	event := observe.Event{
		Timestamp:  time.Now().UTC(),
		RunID:      "query-1",
		Kind:       observe.KindProvider,
		Status:     observe.StatusCompleted,
		Provider:   "groq",
		DurationMs: 120,
	}
	if err := sink.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name != "bot.llm.groq" {
		t.Fatalf("unexpected span name: %q", span.Name)
	}
	if got := span.EndTime.Sub(span.StartTime); got != 120*time.Millisecond {
		t.Fatalf("expected a 120ms span, got %v", got)
	}
	found := false
	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key("bot.query.id") && attr.Value.AsString() == "query-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected bot.query.id attribute on span")
	}
}

func TestSinkRecordsFailures(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())

	sink := NewSink(tp)
	event := observe.Event{
		Kind:     observe.KindProvider,
		Status:   observe.StatusFailed,
		Provider: "openai",
		Error:    "rate limited",
	}
	if err := sink.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Description != "rate limited" {
		t.Fatalf("unexpected span status: %+v", spans[0].Status)
	}
	if len(spans[0].Events) == 0 {
		t.Fatal("expected a recorded error event on the span")
	}
}

func TestSinkSpanNames(t *testing.T) {
	cases := []struct {
		event observe.Event
		want  string
	}{
		{observe.Event{Kind: observe.KindQuery}, "bot.query"},
		{observe.Event{Kind: observe.KindProvider}, "bot.llm.query"},
		{observe.Event{Kind: observe.KindFallback}, "bot.fallback"},
		{observe.Event{Kind: observe.KindTool, ToolName: "shell_command"}, "bot.tool.shell_command"},
		{observe.Event{Kind: observe.KindCustom}, "bot.event"},
	}
	for _, tc := range cases {
		if got := spanNameFor(tc.event); got != tc.want {
			t.Errorf("spanNameFor(%v) = %q, want %q", tc.event.Kind, got, tc.want)
		}
	}
}

func TestNewSinkNilProvider(t *testing.T) {
	sink := NewSink(nil)
	if err := sink.Emit(context.Background(), observe.Event{Kind: observe.KindQuery}); err != nil {
		t.Fatalf("noop emit failed: %v", err)
	}
}
