package factory

import (
	"testing"

	"github.com/alvbln/alvin-bot-sub000/llm"
	"github.com/alvbln/alvin-bot-sub000/tools"
)

func TestNew_MapsTypes(t *testing.T) {
	opts := Options{Executor: tools.NewRegistry(tools.Builtins()...)}

	agent, err := New("claude-sdk", llm.ProviderConfig{
		Type:  llm.TypeAgentSDK,
		Model: "claude-sonnet-4",
	}, opts)
	if err != nil {
		t.Fatalf("agent-sdk construction failed: %v", err)
	}
	if agent.Info().Type != "agent-sdk" {
		t.Fatalf("unexpected type: %+v", agent.Info())
	}
	// The key becomes the display name when the config has none.
	if agent.Name() != "claude-sdk" {
		t.Fatalf("unexpected name: %q", agent.Name())
	}

	chat, err := New("groq", llm.ProviderConfig{
		Type:    llm.TypeChat,
		Model:   "llama-3.3-70b",
		BaseURL: "https://api.groq.com/openai/v1",
	}, opts)
	if err != nil {
		t.Fatalf("chat construction failed: %v", err)
	}
	if chat.Info().Type != "chat" {
		t.Fatalf("unexpected type: %+v", chat.Info())
	}
}

func TestNew_RejectsUnknownType(t *testing.T) {
	if _, err := New("x", llm.ProviderConfig{Type: "grpc", Model: "m"}, Options{}); err == nil {
		t.Fatal("expected an error for an unknown provider type")
	}
}

func TestBuilder(t *testing.T) {
	build := Builder(Options{})
	p, err := build("claude-sdk", llm.ProviderConfig{Type: llm.TypeAgentSDK, Model: "m"})
	if err != nil {
		t.Fatalf("builder failed: %v", err)
	}
	if p.Name() != "claude-sdk" {
		t.Fatalf("unexpected name: %q", p.Name())
	}
}
