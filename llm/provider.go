// Package llm defines the uniform provider contract and the registry that
// routes queries across providers with ordered fallback.
package llm

import (
	"context"

	"github.com/alvbln/alvin-bot-sub000/types"
)

// Provider unifies heterogeneous model backends behind one streaming query
// interface.
//
// Query never fails synchronously for ordinary failures: transport errors,
// bad responses, and cancellation all arrive on the returned channel as an
// error chunk, so the registry reacts uniformly regardless of backend. The
// channel is unbuffered and closed after the single terminal chunk; a slow
// consumer paces the producer.
type Provider interface {
	Name() string
	Query(ctx context.Context, opts types.QueryOptions) <-chan types.StreamChunk

	// IsAvailable is a quick, side-effect-free reachability and
	// configuration check. It must not burn quota: remote endpoints are
	// judged by credential presence only.
	IsAvailable(ctx context.Context) bool

	Info() Info
}

// Info describes a provider for UI listings.
type Info struct {
	Key     string `json:"key,omitempty"`
	Name    string `json:"name"`
	Model   string `json:"model,omitempty"`
	Type    string `json:"type"`
	Active  bool   `json:"active,omitempty"`
	Healthy bool   `json:"healthy,omitempty"`
}
