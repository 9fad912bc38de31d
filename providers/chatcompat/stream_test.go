package chatcompat

import (
	"strings"
	"testing"
)

func TestDecodeStream_CollectsDeltas(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		``,
		`: keep-alive comment`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`,
		`data: [DONE]`,
		``,
	}, "\n")

	var deltas []string
	text, usage, err := decodeStream(strings.NewReader(body), func(delta string) {
		deltas = append(deltas, delta)
	})
	if err != nil {
		t.Fatalf("decodeStream failed: %v", err)
	}
	if text != "Hello" {
		t.Fatalf("expected accumulated text Hello, got %q", text)
	}
	if strings.Join(deltas, "") != text {
		t.Fatalf("deltas %v do not concatenate to %q", deltas, text)
	}
	if usage == nil || usage.TotalTokens != 5 || usage.InputTokens != 3 {
		t.Fatalf("unexpected usage: %+v", usage)
	}
}

func TestDecodeStream_FinishReasonWithoutDone(t *testing.T) {
	body := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}, "\n")

	text, _, err := decodeStream(strings.NewReader(body), nil)
	if err != nil {
		t.Fatalf("decodeStream failed: %v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestDecodeStream_TruncatedStream(t *testing.T) {
	body := `data: {"choices":[{"delta":{"content":"par"}}]}` + "\n"

	text, _, err := decodeStream(strings.NewReader(body), nil)
	if err == nil {
		t.Fatal("expected an error for a stream without a finish signal")
	}
	if text != "par" {
		t.Fatalf("partial text should still be returned, got %q", text)
	}
}
