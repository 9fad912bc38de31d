package chatcompat

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/alvbln/alvin-bot-sub000/types"
)

// decodeStream incrementally parses an OpenAI-style SSE body: one
// `data: {json}` line per delta, terminated by `data: [DONE]`. onDelta is
// called for every non-empty content fragment in arrival order.
func decodeStream(r io.Reader, onDelta func(delta string)) (string, *types.Usage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var (
		text     strings.Builder
		usage    *types.Usage
		finished bool
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			finished = true
			break
		}
		payload := []byte(data)

		if delta, err := jsonparser.GetString(payload, "choices", "[0]", "delta", "content"); err == nil && delta != "" {
			text.WriteString(delta)
			if onDelta != nil {
				onDelta(delta)
			}
		}
		if reason, err := jsonparser.GetString(payload, "choices", "[0]", "finish_reason"); err == nil && reason != "" {
			finished = true
		}
		if total, err := jsonparser.GetInt(payload, "usage", "total_tokens"); err == nil && total > 0 {
			prompt, _ := jsonparser.GetInt(payload, "usage", "prompt_tokens")
			completion, _ := jsonparser.GetInt(payload, "usage", "completion_tokens")
			usage = &types.Usage{
				InputTokens:  int(prompt),
				OutputTokens: int(completion),
				TotalTokens:  int(total),
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return text.String(), usage, fmt.Errorf("failed to read stream: %w", err)
	}
	if !finished {
		return text.String(), usage, fmt.Errorf("stream ended without a finish signal")
	}
	return text.String(), usage, nil
}
