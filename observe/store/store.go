// Package store persists observe events for inspection and aggregate
// query metrics.
package store

import (
	"context"
	"time"

	"github.com/alvbln/alvin-bot-sub000/observe"
)

type ListQuery struct {
	Limit  int
	Offset int
}

type MetricsQuery struct {
	Since *time.Time
}

type MetricsSummary struct {
	QueriesStarted   int64 `json:"queriesStarted"`
	QueriesCompleted int64 `json:"queriesCompleted"`
	QueriesFailed    int64 `json:"queriesFailed"`
	ProviderCalls    int64 `json:"providerCalls"`
	ProviderFailures int64 `json:"providerFailures"`
	Fallbacks        int64 `json:"fallbacks"`
	ToolCalls        int64 `json:"toolCalls"`
	ToolFailures     int64 `json:"toolFailures"`
}

type Store interface {
	SaveEvent(ctx context.Context, event observe.Event) error
	ListEventsByRun(ctx context.Context, runID string, query ListQuery) ([]observe.Event, error)
	ListEventsBySession(ctx context.Context, sessionID string, query ListQuery) ([]observe.Event, error)
	AggregateMetrics(ctx context.Context, query MetricsQuery) (MetricsSummary, error)
	Close() error
}

// Sink adapts a Store to the observe.Sink interface.
type Sink struct {
	store Store
}

func NewSink(s Store) *Sink { return &Sink{store: s} }

func (s *Sink) Emit(ctx context.Context, event observe.Event) error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.SaveEvent(ctx, event)
}
