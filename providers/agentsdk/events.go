package agentsdk

import (
	"bufio"
	"encoding/json"
	"io"
	"unicode/utf8"

	"github.com/alvbln/alvin-bot-sub000/types"
)

// streamEvent is one newline-delimited JSON event from the agent runtime.
// The runtime emits assistant events (with partial content blocks) while
// working and a single terminal result event carrying the final text,
// session id, and cost.
type streamEvent struct {
	Type         string            `json:"type"`
	Subtype      string            `json:"subtype,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	Message      *assistantMessage `json:"message,omitempty"`
	Result       string            `json:"result,omitempty"`
	IsError      bool              `json:"is_error,omitempty"`
	TotalCostUSD float64           `json:"total_cost_usd,omitempty"`
	Usage        *eventUsage       `json:"usage,omitempty"`
}

type assistantMessage struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type eventUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *eventUsage) toUsage() *types.Usage {
	if u == nil || u.InputTokens+u.OutputTokens == 0 {
		return nil
	}
	return &types.Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
	}
}

// decodeEvents translates the runtime's native event stream into
// StreamChunks, accumulating assistant text across partial blocks. emit
// must return false when the consumer is gone. It reports whether a
// terminal chunk was emitted.
func decodeEvents(r io.Reader, emit func(types.StreamChunk) bool) bool {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	cumulative := ""
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			// Interleaved non-JSON output is runtime noise, not an error.
			continue
		}
		switch ev.Type {
		case "assistant":
			if ev.Message == nil {
				continue
			}
			for _, block := range ev.Message.Content {
				switch block.Type {
				case "text":
					if block.Text == "" {
						continue
					}
					cumulative += block.Text
					if !emit(types.TextChunk(cumulative, block.Text)) {
						return false
					}
				case "tool_use":
					if !emit(types.ToolUseChunk(block.Name, preview(string(block.Input)))) {
						return false
					}
				}
			}
		case "result":
			if ev.IsError {
				message := ev.Result
				if message == "" {
					message = "agent runtime reported an error"
				}
				return emit(types.ErrorChunk(message))
			}
			text := cumulative
			if text == "" && ev.Result != "" {
				text = ev.Result
				if !emit(types.TextChunk(text, text)) {
					return false
				}
			}
			continuation := types.ResumeSession(ev.SessionID)
			return emit(types.DoneChunk(types.DoneInfo{
				Text:         text,
				Usage:        ev.Usage.toUsage(),
				CostUSD:      ev.TotalCostUSD,
				Continuation: &continuation,
			}))
		}
	}
	return false
}

func preview(s string) string {
	if len(s) <= previewLimit {
		return s
	}
	// Back up to a rune boundary so the preview stays valid UTF-8.
	cut := previewLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
