// Command alvinbot runs the provider routing gateway: it loads the YAML
// runtime configuration, registers every configured provider, and serves
// the websocket query endpoint with ordered fallback.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/otel"

	"github.com/alvbln/alvin-bot-sub000/gateway"
	"github.com/alvbln/alvin-bot-sub000/llm"
	"github.com/alvbln/alvin-bot-sub000/observe"
	otelsink "github.com/alvbln/alvin-bot-sub000/observe/otel"
	observestore "github.com/alvbln/alvin-bot-sub000/observe/store"
	observesqlite "github.com/alvbln/alvin-bot-sub000/observe/store/sqlite"
	"github.com/alvbln/alvin-bot-sub000/providers/factory"
	"github.com/alvbln/alvin-bot-sub000/runtimeconfig"
	statefactory "github.com/alvbln/alvin-bot-sub000/state/factory"
	"github.com/alvbln/alvin-bot-sub000/tools"
)

func main() {
	configPath := flag.String("config", "./alvinbot.yaml", "path to the runtime configuration file")
	listen := flag.String("listen", "", "listen address override")
	flag.Parse()

	if isatty.IsTerminal(os.Stdout.Fd()) {
		log.SetFlags(log.Ltime)
	} else {
		log.SetFlags(log.LstdFlags | log.LUTC)
	}

	if err := run(*configPath, *listen); err != nil {
		log.Fatalf("alvinbot: %v", err)
	}
}

func run(configPath, listen string) error {
	cfg, err := runtimeconfig.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:8720"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Observability: otel spans always, sqlite trace store when configured.
	sinks := []observe.Sink{otelsink.NewSink(otel.GetTracerProvider())}
	var traces observestore.Store
	if cfg.TraceDB != "" {
		store, err := observesqlite.New(cfg.TraceDB)
		if err != nil {
			return fmt.Errorf("failed to open trace store: %w", err)
		}
		defer store.Close()
		traces = store
		sinks = append(sinks, observestore.NewSink(store))
	}
	observer := observe.NewAsyncSink(observe.NewMultiSink(sinks...), 256)
	defer observer.Close()

	toolRegistry := tools.NewRegistry(tools.Builtins()...)
	build := factory.Builder(factory.Options{
		Executor:     toolRegistry,
		AgentBinary:  cfg.AgentBinary,
		SystemPrefix: cfg.SystemPrompt,
		Observer:     observer,
	})

	registry := llm.NewRegistry(build,
		llm.WithFallbacks(cfg.Fallbacks...),
		llm.WithObserver(observer),
	)
	if cfg.Primary != "" {
		if err := registry.Register(cfg.Primary, cfg.Providers[cfg.Primary]); err != nil {
			return err
		}
	}
	for key, provider := range cfg.Providers {
		if key == cfg.Primary {
			continue
		}
		if err := registry.Register(key, provider); err != nil {
			return err
		}
	}

	conversations, err := statefactory.New(statefactory.Settings{
		Backend:       cfg.State.Backend,
		SQLitePath:    cfg.State.SQLitePath,
		RedisAddr:     cfg.State.Redis.Addr,
		RedisPassword: cfg.State.Redis.Password,
		RedisDB:       cfg.State.Redis.DB,
		RedisTTL:      cfg.State.Redis.TTLDuration(),
	})
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer conversations.Close()

	server, err := gateway.NewServer(gateway.Config{
		Addr:          cfg.Listen,
		Registry:      registry,
		Conversations: conversations,
		Traces:        traces,
	})
	if err != nil {
		return err
	}

	log.Printf("alvinbot gateway listening on %s (active provider: %s)",
		cfg.Listen, registry.GetActiveKey())
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
