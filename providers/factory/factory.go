// Package factory maps provider type tags to concrete implementations. It
// exists so the llm package never imports a backend and backends never
// import each other.
package factory

import (
	"fmt"

	"github.com/alvbln/alvin-bot-sub000/llm"
	"github.com/alvbln/alvin-bot-sub000/observe"
	"github.com/alvbln/alvin-bot-sub000/providers/agentsdk"
	"github.com/alvbln/alvin-bot-sub000/providers/chatcompat"
	"github.com/alvbln/alvin-bot-sub000/tools"
)

// Options carries cross-provider dependencies handed to every provider
// built through the factory.
type Options struct {
	// Executor supplies the tool catalog and execution boundary for chat
	// providers. Nil keeps chat providers in simple mode.
	Executor tools.Executor
	// AgentBinary overrides the agent runtime executable name or path.
	AgentBinary string
	// SystemPrefix is prepended to the system prompt of every agent-sdk
	// query.
	SystemPrefix string
	// Observer receives tool execution events from chat providers.
	Observer observe.Sink
}

// Builder adapts the factory to the registry's construction hook.
func Builder(opts Options) llm.Builder {
	return func(key string, cfg llm.ProviderConfig) (llm.Provider, error) {
		return New(key, cfg, opts)
	}
}

// New constructs the provider implementation matching cfg.Type. The key
// doubles as the display name when the config leaves Name empty.
func New(key string, cfg llm.ProviderConfig, opts Options) (llm.Provider, error) {
	if cfg.Name == "" {
		cfg.Name = key
	}
	switch cfg.Type {
	case llm.TypeAgentSDK:
		var aopts []agentsdk.Option
		if opts.AgentBinary != "" {
			aopts = append(aopts, agentsdk.WithBinary(opts.AgentBinary))
		}
		if opts.SystemPrefix != "" {
			aopts = append(aopts, agentsdk.WithSystemPrefix(opts.SystemPrefix))
		}
		return agentsdk.New(cfg, aopts...)
	case llm.TypeChat:
		var copts []chatcompat.Option
		if opts.Executor != nil {
			copts = append(copts, chatcompat.WithExecutor(opts.Executor))
		}
		if opts.Observer != nil {
			copts = append(copts, chatcompat.WithObserver(opts.Observer))
		}
		return chatcompat.New(cfg, copts...)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}
}
