package types

type ChunkType string

const (
	ChunkText       ChunkType = "text"
	ChunkToolUse    ChunkType = "tool_use"
	ChunkToolResult ChunkType = "tool_result"
	ChunkDone       ChunkType = "done"
	ChunkError      ChunkType = "error"
	ChunkFallback   ChunkType = "fallback"
)

// StreamChunk is one fragment of a streamed provider response. Exactly one
// terminal chunk (done or error) ends any single provider attempt; fallback
// chunks are informational markers emitted between attempts by the registry.
type StreamChunk struct {
	Type ChunkType `json:"type"`

	// Text chunks. Text is the cumulative assistant text so far, Delta the
	// fragment added by this chunk. Concatenating every Delta in emission
	// order yields the final Done.Text.
	Text  string `json:"text,omitempty"`
	Delta string `json:"delta,omitempty"`

	// Tool chunks. Input and Output are previews truncated for transport;
	// the full payloads stay on the provider's internal message list.
	ToolName   string `json:"toolName,omitempty"`
	ToolInput  string `json:"toolInput,omitempty"`
	ToolOutput string `json:"toolOutput,omitempty"`

	Done     *DoneInfo     `json:"done,omitempty"`
	Error    string        `json:"error,omitempty"`
	Fallback *FallbackInfo `json:"fallback,omitempty"`
}

// DoneInfo carries the terminal accounting for a successful attempt.
type DoneInfo struct {
	Text  string `json:"text"`
	Usage *Usage `json:"usage,omitempty"`
	// Provider is the registry key that served the attempt. Providers
	// leave it empty; the registry fills it in when forwarding.
	Provider string `json:"provider,omitempty"`
	// CostUSD is a heuristic estimate, not metered billing.
	CostUSD      float64       `json:"costUsd,omitempty"`
	Continuation *Continuation `json:"continuation,omitempty"`
}

type FallbackInfo struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// Terminal reports whether the chunk ends a provider attempt.
func (c StreamChunk) Terminal() bool {
	return c.Type == ChunkDone || c.Type == ChunkError
}

func TextChunk(cumulative, delta string) StreamChunk {
	return StreamChunk{Type: ChunkText, Text: cumulative, Delta: delta}
}

func ToolUseChunk(name, inputPreview string) StreamChunk {
	return StreamChunk{Type: ChunkToolUse, ToolName: name, ToolInput: inputPreview}
}

func ToolResultChunk(name, outputPreview string) StreamChunk {
	return StreamChunk{Type: ChunkToolResult, ToolName: name, ToolOutput: outputPreview}
}

func DoneChunk(info DoneInfo) StreamChunk {
	return StreamChunk{Type: ChunkDone, Done: &info}
}

func ErrorChunk(message string) StreamChunk {
	return StreamChunk{Type: ChunkError, Error: message}
}

func FallbackChunk(from, to, reason string) StreamChunk {
	return StreamChunk{Type: ChunkFallback, Fallback: &FallbackInfo{From: from, To: to, Reason: reason}}
}
