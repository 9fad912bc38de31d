package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alvbln/alvin-bot-sub000/observe"
	"github.com/alvbln/alvin-bot-sub000/types"
)

// CancelledMessage is the error-chunk text used when a query ends because
// the caller cancelled, so callers can tell user cancellation apart from
// backend failure.
const CancelledMessage = "query cancelled"

// Builder constructs a concrete provider from its configuration. The
// mapping from type tag to implementation lives in providers/factory to
// keep this package free of backend imports.
type Builder func(key string, cfg ProviderConfig) (Provider, error)

// Registry owns the set of configured providers, tracks the active one,
// and executes the ordered fallback chain. Construct once per process and
// inject it wherever queries are issued; nothing here is global.
type Registry struct {
	build    Builder
	observer observe.Sink

	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	active    string
	primary   string
	fallbacks []string
}

type RegistryOption func(*Registry)

// WithFallbacks sets the configured fallback chain: provider keys tried,
// in order, after the active one.
func WithFallbacks(keys ...string) RegistryOption {
	return func(r *Registry) { r.fallbacks = append([]string(nil), keys...) }
}

func WithObserver(sink observe.Sink) RegistryOption {
	return func(r *Registry) {
		if sink != nil {
			r.observer = sink
		}
	}
}

func NewRegistry(build Builder, opts ...RegistryOption) *Registry {
	r := &Registry{
		build:     build,
		observer:  observe.NoopSink{},
		providers: make(map[string]Provider),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register constructs the provider described by cfg and stores it under
// key. Re-registering a key replaces the previous instance. The first
// registered key becomes the default (and initially active) provider.
func (r *Registry) Register(key string, cfg ProviderConfig) error {
	if key == "" {
		return fmt.Errorf("provider key is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if r.build == nil {
		return fmt.Errorf("registry has no provider builder")
	}
	p, err := r.build(key, cfg)
	if err != nil {
		return fmt.Errorf("failed to construct provider %q: %w", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[key]; !exists {
		r.order = append(r.order, key)
	}
	r.providers[key] = p
	if r.primary == "" {
		r.primary = key
		r.active = key
	}
	return nil
}

// SetPrimary pins the default provider restored by ResetToDefault. The
// active key follows only if it still pointed at the old default.
func (r *Registry) SetPrimary(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[key]; !ok {
		return false
	}
	if r.active == r.primary || r.active == "" {
		r.active = key
	}
	r.primary = key
	return true
}

// SetFallbacks replaces the configured fallback chain. Health-based
// reordering happens here, between queries, never inside one.
func (r *Registry) SetFallbacks(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append([]string(nil), keys...)
}

// SwitchTo makes key the active provider. Returns false (and changes
// nothing) if key is not registered; callers must check.
func (r *Registry) SwitchTo(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[key]; !ok {
		return false
	}
	r.active = key
	return true
}

// ResetToDefault restores the active key to the configured primary.
func (r *Registry) ResetToDefault() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = r.primary
}

func (r *Registry) GetActiveKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// GetActive returns the active provider. An active key that resolves to
// nothing is a programming invariant violation, not a runtime condition,
// so it panics.
func (r *Registry) GetActive() Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.active]
	if !ok {
		panic(fmt.Sprintf("llm: active provider key %q is not registered", r.active))
	}
	return p
}

// Get returns the provider registered under key.
func (r *Registry) Get(key string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	return p, ok
}

// ListAll returns display info for every registered provider in
// registration order, with the active flag set. Used by UIs, not by the
// fallback algorithm.
func (r *Registry) ListAll(ctx context.Context) []Info {
	r.mu.RLock()
	keys := append([]string(nil), r.order...)
	active := r.active
	providers := make(map[string]Provider, len(r.providers))
	for k, p := range r.providers {
		providers[k] = p
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(keys))
	for _, key := range keys {
		p := providers[key]
		info := p.Info()
		info.Key = key
		info.Active = key == active
		info.Healthy = p.IsAvailable(ctx)
		out = append(out, info)
	}
	return out
}

// QueryWithFallback tries the active provider first, then each configured
// fallback in order, streaming chunks through as they arrive. Providers
// are tried strictly sequentially. Between a failed attempt and the next
// viable one the caller sees a single fallback chunk; partial text from
// the failed attempt is never replayed. Exactly one terminal chunk ends
// the returned stream.
func (r *Registry) QueryWithFallback(ctx context.Context, opts types.QueryOptions) <-chan types.StreamChunk {
	r.mu.RLock()
	order := attemptOrder(r.active, r.fallbacks)
	providers := make(map[string]Provider, len(r.providers))
	for k, p := range r.providers {
		providers[k] = p
	}
	r.mu.RUnlock()

	out := make(chan types.StreamChunk)
	queryID := uuid.NewString()

	go func() {
		defer close(out)

		queryStart := time.Now().UTC()
		r.emit(ctx, observe.Event{
			Kind: observe.KindQuery, Status: observe.StatusStarted,
			RunID: queryID,
		})

		lastReason := "no provider available"
		for i := 0; i < len(order); i++ {
			key := order[i]
			p, ok := providers[key]
			if !ok {
				// Unresolved links are skipped, not treated as errors.
				continue
			}
			if !p.IsAvailable(ctx) {
				continue
			}

			started := time.Now().UTC()
			r.emit(ctx, observe.Event{
				Kind: observe.KindProvider, Status: observe.StatusStarted,
				RunID: queryID, Provider: key,
			})

			reason, finished := forwardAttempt(ctx, key, p, opts, out)
			if finished {
				r.emit(ctx, observe.Event{
					Kind: observe.KindProvider, Status: observe.StatusCompleted,
					RunID: queryID, Provider: key,
					DurationMs: time.Since(started).Milliseconds(),
				})
				r.emit(ctx, observe.Event{
					Kind: observe.KindQuery, Status: observe.StatusCompleted,
					RunID: queryID, Provider: key,
					DurationMs: time.Since(queryStart).Milliseconds(),
				})
				return
			}
			if ctx.Err() != nil {
				// User cancelled mid-attempt: report and stop, no fallback.
				sendChunk(ctx, out, types.ErrorChunk(CancelledMessage))
				r.emit(ctx, observe.Event{
					Kind: observe.KindQuery, Status: observe.StatusFailed,
					RunID: queryID, Error: CancelledMessage,
					DurationMs: time.Since(queryStart).Milliseconds(),
				})
				return
			}
			lastReason = reason
			r.emit(ctx, observe.Event{
				Kind: observe.KindProvider, Status: observe.StatusFailed,
				RunID: queryID, Provider: key, Error: reason,
				DurationMs: time.Since(started).Milliseconds(),
			})

			next := nextViable(ctx, order[i+1:], providers)
			if next == "" {
				break
			}
			if !sendChunk(ctx, out, types.FallbackChunk(key, next, reason)) {
				return
			}
			r.emit(ctx, observe.Event{
				Kind: observe.KindFallback, Status: observe.StatusCompleted,
				RunID: queryID, Provider: next,
				Message: fmt.Sprintf("falling back from %s to %s", key, next),
			})
		}

		sendChunk(ctx, out, types.ErrorChunk(fmt.Sprintf("all providers failed: %s", lastReason)))
		r.emit(ctx, observe.Event{
			Kind: observe.KindQuery, Status: observe.StatusFailed,
			RunID: queryID, Error: lastReason,
			DurationMs: time.Since(queryStart).Milliseconds(),
		})
	}()
	return out
}

// attemptOrder is [active] followed by the fallback keys, deduplicated
// against the active key.
func attemptOrder(active string, fallbacks []string) []string {
	order := make([]string, 0, len(fallbacks)+1)
	if active != "" {
		order = append(order, active)
	}
	for _, key := range fallbacks {
		if key == active || key == "" {
			continue
		}
		order = append(order, key)
	}
	return order
}

func nextViable(ctx context.Context, keys []string, providers map[string]Provider) string {
	for _, key := range keys {
		p, ok := providers[key]
		if !ok {
			continue
		}
		if p.IsAvailable(ctx) {
			return key
		}
	}
	return ""
}

// forwardAttempt consumes one provider stream, passing non-terminal chunks
// through in order. It returns finished=true once a done chunk has been
// delivered; on an error chunk (or a stream that closes without a terminal
// chunk) it returns the failure reason so the chain can move on. The done
// chunk is stamped with the serving key, because a silently skipped
// provider leaves the caller no other way to know who actually answered.
func forwardAttempt(ctx context.Context, key string, p Provider, opts types.QueryOptions, out chan<- types.StreamChunk) (reason string, finished bool) {
	stream := p.Query(ctx, opts)
	for chunk := range stream {
		switch chunk.Type {
		case types.ChunkDone:
			if chunk.Done != nil {
				info := *chunk.Done
				info.Provider = key
				chunk.Done = &info
			}
			if !sendChunk(ctx, out, chunk) {
				return CancelledMessage, true
			}
			return "", true
		case types.ChunkError:
			return chunk.Error, false
		default:
			if !sendChunk(ctx, out, chunk) {
				// Caller gone; drain so the provider can unwind.
				for range stream {
				}
				return CancelledMessage, false
			}
		}
	}
	return "provider stream ended without a terminal chunk", false
}

func sendChunk(ctx context.Context, out chan<- types.StreamChunk, chunk types.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Registry) emit(ctx context.Context, event observe.Event) {
	if r.observer == nil {
		return
	}
	event.Normalize()
	_ = r.observer.Emit(ctx, event)
}
