package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/alvbln/alvin-bot-sub000/llm"
	"github.com/alvbln/alvin-bot-sub000/state/memory"
	"github.com/alvbln/alvin-bot-sub000/types"
)

type stubProvider struct {
	name      string
	available bool
	chunks    func() []types.StreamChunk
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Info() llm.Info {
	return llm.Info{Name: p.name, Type: string(llm.TypeAgentSDK)}
}

func (p *stubProvider) IsAvailable(ctx context.Context) bool { return p.available }

func (p *stubProvider) Query(ctx context.Context, opts types.QueryOptions) <-chan types.StreamChunk {
	out := make(chan types.StreamChunk)
	go func() {
		defer close(out)
		for _, chunk := range p.chunks() {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func newTestRegistry(t *testing.T, stubs map[string]*stubProvider, fallbacks ...string) *llm.Registry {
	t.Helper()
	build := func(key string, cfg llm.ProviderConfig) (llm.Provider, error) {
		p, ok := stubs[key]
		if !ok {
			return nil, fmt.Errorf("no stub for %q", key)
		}
		return p, nil
	}
	r := llm.NewRegistry(build, llm.WithFallbacks(fallbacks...))
	cfg := llm.ProviderConfig{Type: llm.TypeAgentSDK, Model: "test-model"}
	// Register primary first so it becomes the default.
	order := []string{}
	for _, key := range fallbacks {
		order = append(order, key)
	}
	if _, ok := stubs["primary"]; ok {
		order = append([]string{"primary"}, order...)
	}
	for _, key := range order {
		if _, ok := stubs[key]; !ok {
			continue
		}
		if err := r.Register(key, cfg); err != nil {
			t.Fatalf("Register(%s) failed: %v", key, err)
		}
	}
	return r
}

func doneChunk(text, session string) types.StreamChunk {
	continuation := types.ResumeSession(session)
	return types.DoneChunk(types.DoneInfo{Text: text, Continuation: &continuation})
}

func TestProvidersEndpoints(t *testing.T) {
	stubs := map[string]*stubProvider{
		"primary": {name: "primary", available: true},
		"backup":  {name: "backup", available: false},
	}
	registry := newTestRegistry(t, stubs, "backup")
	s, err := NewServer(Config{Registry: registry})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/providers")
	if err != nil {
		t.Fatalf("GET providers failed: %v", err)
	}
	defer resp.Body.Close()
	var listing struct {
		Providers []llm.Info `json:"providers"`
		Active    string     `json:"active"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("failed to decode listing: %v", err)
	}
	if len(listing.Providers) != 2 || listing.Active != "primary" {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	for _, info := range listing.Providers {
		if info.Key == "backup" && info.Healthy {
			t.Fatal("backup should be reported unhealthy")
		}
	}

	// Switch to backup, then reset back to the primary.
	body := strings.NewReader(`{"key":"backup"}`)
	resp2, err := http.Post(ts.URL+"/api/v1/providers/switch", "application/json", body)
	if err != nil {
		t.Fatalf("POST switch failed: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("switch returned %d", resp2.StatusCode)
	}
	if registry.GetActiveKey() != "backup" {
		t.Fatalf("expected active backup, got %q", registry.GetActiveKey())
	}

	resp3, err := http.Post(ts.URL+"/api/v1/providers/switch", "application/json",
		strings.NewReader(`{"key":"missing"}`))
	if err != nil {
		t.Fatalf("POST switch failed: %v", err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown key, got %d", resp3.StatusCode)
	}

	resp4, err := http.Post(ts.URL+"/api/v1/providers/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reset failed: %v", err)
	}
	resp4.Body.Close()
	if registry.GetActiveKey() != "primary" {
		t.Fatalf("expected active primary after reset, got %q", registry.GetActiveKey())
	}
}

func TestMetricsWithoutStore(t *testing.T) {
	registry := newTestRegistry(t, map[string]*stubProvider{
		"primary": {name: "primary", available: true},
	})
	s, err := NewServer(Config{Registry: registry})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/metrics/summary")
	if err != nil {
		t.Fatalf("GET metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without a trace store, got %d", resp.StatusCode)
	}
}

func dialQuery(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/query"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readChunks(t *testing.T, conn *websocket.Conn) []types.StreamChunk {
	t.Helper()
	var chunks []types.StreamChunk
	for {
		var chunk types.StreamChunk
		if err := conn.ReadJSON(&chunk); err != nil {
			return chunks
		}
		chunks = append(chunks, chunk)
		if chunk.Terminal() {
			return chunks
		}
	}
}

func TestQueryStreamsAndPersists(t *testing.T) {
	stubs := map[string]*stubProvider{
		"primary": {
			name:      "primary",
			available: true,
			chunks: func() []types.StreamChunk {
				return []types.StreamChunk{
					types.TextChunk("Hel", "Hel"),
					types.TextChunk("Hello", "lo"),
					doneChunk("Hello", "sess-42"),
				}
			},
		},
	}
	registry := newTestRegistry(t, stubs)
	store := memory.New()
	s, err := NewServer(Config{Registry: registry, Conversations: store})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialQuery(t, ts)
	if err := conn.WriteJSON(queryRequest{ConversationID: "conv-1", Prompt: "hi"}); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	chunks := readChunks(t, conn)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %+v", len(chunks), chunks)
	}
	last := chunks[len(chunks)-1]
	if last.Type != types.ChunkDone || last.Done.Text != "Hello" {
		t.Fatalf("unexpected terminal chunk: %+v", last)
	}

	record, err := store.LoadConversation(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("conversation was not persisted: %v", err)
	}
	if sessionID, ok := record.Continuation().SessionID(); !ok || sessionID != "sess-42" {
		t.Fatalf("expected session sess-42, got %#v", record.Continuation())
	}
	if record.Provider != "primary" || record.MessagesSinceCheckpoint != 1 {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestQueryFallsBackAcrossProviders(t *testing.T) {
	stubs := map[string]*stubProvider{
		"primary": {
			name:      "primary",
			available: true,
			chunks: func() []types.StreamChunk {
				return []types.StreamChunk{types.ErrorChunk("rate limited")}
			},
		},
		"backup": {
			name:      "backup",
			available: true,
			chunks: func() []types.StreamChunk {
				return []types.StreamChunk{
					types.TextChunk("ok", "ok"),
					doneChunk("ok", "sess-b"),
				}
			},
		},
	}
	registry := newTestRegistry(t, stubs, "backup")
	store := memory.New()
	s, err := NewServer(Config{Registry: registry, Conversations: store})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialQuery(t, ts)
	if err := conn.WriteJSON(queryRequest{ConversationID: "conv-2", Prompt: "hi"}); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	chunks := readChunks(t, conn)
	if len(chunks) != 3 {
		t.Fatalf("expected fallback, text, done; got %+v", chunks)
	}
	if chunks[0].Type != types.ChunkFallback || chunks[0].Fallback.To != "backup" {
		t.Fatalf("expected a fallback chunk to backup, got %+v", chunks[0])
	}

	record, err := store.LoadConversation(context.Background(), "conv-2")
	if err != nil {
		t.Fatalf("conversation was not persisted: %v", err)
	}
	if record.Provider != "backup" {
		t.Fatalf("expected the serving provider recorded, got %q", record.Provider)
	}
}

func TestQueryRecordsProviderWhenActiveSkipped(t *testing.T) {
	// An unavailable active provider is skipped without a fallback chunk,
	// so the record has to rely on the done chunk's provider field.
	stubs := map[string]*stubProvider{
		"primary": {
			name:      "primary",
			available: false,
			chunks:    func() []types.StreamChunk { return nil },
		},
		"backup": {
			name:      "backup",
			available: true,
			chunks: func() []types.StreamChunk {
				return []types.StreamChunk{
					types.TextChunk("ok", "ok"),
					doneChunk("ok", "sess-c"),
				}
			},
		},
	}
	registry := newTestRegistry(t, stubs, "backup")
	store := memory.New()
	s, err := NewServer(Config{Registry: registry, Conversations: store})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialQuery(t, ts)
	if err := conn.WriteJSON(queryRequest{ConversationID: "conv-3", Prompt: "hi"}); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}

	chunks := readChunks(t, conn)
	for _, chunk := range chunks {
		if chunk.Type == types.ChunkFallback {
			t.Fatalf("a silent skip must not emit a fallback chunk: %+v", chunk)
		}
	}

	record, err := store.LoadConversation(context.Background(), "conv-3")
	if err != nil {
		t.Fatalf("conversation was not persisted: %v", err)
	}
	if record.Provider != "backup" {
		t.Fatalf("expected the answering provider recorded, got %q", record.Provider)
	}
}

func TestQueryRejectsEmptyPrompt(t *testing.T) {
	registry := newTestRegistry(t, map[string]*stubProvider{
		"primary": {name: "primary", available: true},
	})
	s, err := NewServer(Config{Registry: registry})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dialQuery(t, ts)
	if err := conn.WriteJSON(queryRequest{}); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	var chunk types.StreamChunk
	if err := conn.ReadJSON(&chunk); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	if chunk.Type != types.ChunkError || !strings.Contains(chunk.Error, "prompt") {
		t.Fatalf("expected a prompt error, got %+v", chunk)
	}
}
