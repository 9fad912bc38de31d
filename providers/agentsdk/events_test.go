package agentsdk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/alvbln/alvin-bot-sub000/types"
)

func decodeAll(t *testing.T, stream string) ([]types.StreamChunk, bool) {
	t.Helper()
	var chunks []types.StreamChunk
	terminal := decodeEvents(strings.NewReader(stream), func(chunk types.StreamChunk) bool {
		chunks = append(chunks, chunk)
		return true
	})
	return chunks, terminal
}

func TestDecodeEvents_TextAndResult(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"sess-1"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"Hel"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"lo"}]}}`,
		`{"type":"result","subtype":"success","session_id":"sess-1","result":"Hello","total_cost_usd":0.0042,"usage":{"input_tokens":12,"output_tokens":5}}`,
	}, "\n")

	chunks, terminal := decodeAll(t, stream)
	if !terminal {
		t.Fatal("expected a terminal chunk")
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 2 text chunks and a done, got %+v", chunks)
	}
	if chunks[0].Delta != "Hel" || chunks[1].Delta != "lo" || chunks[1].Text != "Hello" {
		t.Fatalf("unexpected text chunks: %+v", chunks[:2])
	}

	done := chunks[2]
	if done.Type != types.ChunkDone || done.Done.Text != "Hello" {
		t.Fatalf("unexpected done chunk: %+v", done)
	}
	if done.Done.CostUSD != 0.0042 {
		t.Fatalf("unexpected cost: %v", done.Done.CostUSD)
	}
	if done.Done.Usage == nil || done.Done.Usage.TotalTokens != 17 {
		t.Fatalf("unexpected usage: %+v", done.Done.Usage)
	}
	if sessionID, ok := done.Done.Continuation.SessionID(); !ok || sessionID != "sess-1" {
		t.Fatalf("expected session continuation sess-1, got %#v", done.Done.Continuation)
	}
}

func TestDecodeEvents_ToolUse(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"path":"main.go"}}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"done reading"}]}}`,
		`{"type":"result","subtype":"success","session_id":"sess-2","result":"done reading"}`,
	}, "\n")

	chunks, terminal := decodeAll(t, stream)
	if !terminal {
		t.Fatal("expected a terminal chunk")
	}
	if chunks[0].Type != types.ChunkToolUse || chunks[0].ToolName != "Read" {
		t.Fatalf("expected a tool_use chunk first, got %+v", chunks[0])
	}
	if !strings.Contains(chunks[0].ToolInput, "main.go") {
		t.Fatalf("expected the input preview, got %q", chunks[0].ToolInput)
	}
}

func TestDecodeEvents_ErrorResult(t *testing.T) {
	stream := `{"type":"result","subtype":"error_during_execution","is_error":true,"result":"credit balance too low"}`

	chunks, terminal := decodeAll(t, stream)
	if !terminal {
		t.Fatal("expected a terminal chunk")
	}
	if len(chunks) != 1 || chunks[0].Type != types.ChunkError {
		t.Fatalf("expected a single error chunk, got %+v", chunks)
	}
	if chunks[0].Error != "credit balance too low" {
		t.Fatalf("unexpected error text: %q", chunks[0].Error)
	}
}

func TestDecodeEvents_ResultWithoutAssistantText(t *testing.T) {
	// Some runs produce only a result event; its text still has to flow
	// as a text chunk before done so deltas add up.
	stream := `{"type":"result","subtype":"success","session_id":"s","result":"direct answer"}`

	chunks, terminal := decodeAll(t, stream)
	if !terminal {
		t.Fatal("expected a terminal chunk")
	}
	if len(chunks) != 2 || chunks[0].Type != types.ChunkText || chunks[0].Delta != "direct answer" {
		t.Fatalf("expected text then done, got %+v", chunks)
	}
	if chunks[1].Done.Text != "direct answer" {
		t.Fatalf("unexpected done text: %+v", chunks[1].Done)
	}
}

func TestPreviewStaysValidUTF8(t *testing.T) {
	// Three-byte runes, so the byte limit lands mid-rune.
	long := strings.Repeat("☃", 100)
	got := preview(long)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected a truncation marker, got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatalf("preview produced invalid UTF-8: %q", got)
	}

	short := "hello"
	if preview(short) != short {
		t.Fatalf("short input must pass through unchanged, got %q", preview(short))
	}
}

func TestDecodeEvents_IgnoresNoiseAndTruncation(t *testing.T) {
	stream := strings.Join([]string{
		`not json at all`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"partial"}]}}`,
	}, "\n")

	chunks, terminal := decodeAll(t, stream)
	if terminal {
		t.Fatal("a stream without a result event is not terminal")
	}
	if len(chunks) != 1 || chunks[0].Delta != "partial" {
		t.Fatalf("unexpected chunks: %+v", chunks)
	}
}
