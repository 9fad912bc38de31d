// Package chatcompat implements the generic provider for any HTTP endpoint
// speaking the OpenAI chat-completions protocol. Tool use is retrofitted
// onto the stateless protocol with a bounded function-calling loop; the
// loop is the agent loop, replayed per HTTP round-trip.
package chatcompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alvbln/alvin-bot-sub000/llm"
	"github.com/alvbln/alvin-bot-sub000/observe"
	"github.com/alvbln/alvin-bot-sub000/tools"
	"github.com/alvbln/alvin-bot-sub000/types"
)

const (
	// maxToolRounds bounds the function-calling loop; a model that keeps
	// requesting tools never spins forever.
	maxToolRounds = 10
	// previewLimit truncates tool input/output previews in stream chunks.
	// The full payload stays on the message list the model sees; the
	// preview is for transport and rendering only.
	previewLimit = 200
	probeTimeout = 2 * time.Second
	// costPerToken is a flat heuristic rate. Cost figures are estimates,
	// never billing-grade.
	costPerToken = 0.000002
)

// ToolCapableHosts is the hostname-substring allowlist used, together with
// the explicit supportsTools flag, to classify an endpoint as
// function-calling capable. Self-hosted proxies for capable models should
// set the flag instead of relying on this list.
var ToolCapableHosts = []string{
	"api.openai.com",
	"api.groq.com",
	"api.mistral.ai",
	"api.deepseek.com",
	"api.together.xyz",
	"api.fireworks.ai",
	"openrouter.ai",
}

type Client struct {
	cfg         llm.ProviderConfig
	executor    tools.Executor
	observer    observe.Sink
	httpClient  *http.Client
	probeClient *http.Client
}

type Option func(*Client)

// WithExecutor supplies the tool catalog and execution boundary. Without
// one the client always runs in simple mode.
func WithExecutor(e tools.Executor) Option {
	return func(c *Client) { c.executor = e }
}

// WithObserver attaches a sink receiving a tool event per execution in
// the function-calling loop.
func WithObserver(sink observe.Sink) Option {
	return func(c *Client) {
		if sink != nil {
			c.observer = sink
		}
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
			c.probeClient = h
		}
	}
}

func New(cfg llm.ProviderConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("chat provider %q requires a baseUrl", cfg.Name)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg: cfg,
		// No overall client timeout: streamed bodies outlive any fixed
		// deadline. Cancellation comes from the request context.
		httpClient:  &http.Client{},
		probeClient: &http.Client{Timeout: probeTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string { return c.cfg.Name }

func (c *Client) Info() llm.Info {
	return llm.Info{
		Name:  c.cfg.Name,
		Model: c.cfg.Model,
		Type:  string(llm.TypeChat),
	}
}

// IsAvailable probes localhost endpoints for reachability with a short
// timeout; for remote endpoints it only checks that a credential is
// configured, so health checks never burn quota.
func (c *Client) IsAvailable(ctx context.Context) bool {
	if isLocalEndpoint(c.cfg.BaseURL) {
		ctx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
		if err != nil {
			return false
		}
		resp, err := c.probeClient.Do(req)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return true
	}
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

func (c *Client) Query(ctx context.Context, opts types.QueryOptions) <-chan types.StreamChunk {
	out := make(chan types.StreamChunk)
	go func() {
		defer close(out)
		if c.toolCapable() {
			c.queryWithTools(ctx, opts, out)
			return
		}
		c.querySimple(ctx, opts, out)
	}()
	return out
}

func (c *Client) toolCapable() bool {
	if c.executor == nil || len(c.executor.Catalog()) == 0 {
		return false
	}
	if c.cfg.SupportsTools {
		return true
	}
	host := hostOf(c.cfg.BaseURL)
	for _, known := range ToolCapableHosts {
		if strings.Contains(host, known) {
			return true
		}
	}
	return false
}

// querySimple runs a single completion: streamed SSE when the provider
// declares streaming support, one-shot JSON otherwise.
func (c *Client) querySimple(ctx context.Context, opts types.QueryOptions, out chan<- types.StreamChunk) {
	msgs := c.buildMessages(opts)

	if !c.cfg.SupportsStreaming {
		c.simpleOneShot(ctx, opts, msgs, out)
		return
	}

	body := c.newRequest(msgs)
	body.Stream = true
	resp, err := c.post(ctx, body)
	if err != nil {
		emit(ctx, out, types.ErrorChunk(requestErrorMessage(err)))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		emit(ctx, out, types.ErrorChunk(httpErrorMessage(resp)))
		return
	}

	cumulative := ""
	text, usage, err := decodeStream(resp.Body, func(delta string) {
		cumulative += delta
		emit(ctx, out, types.TextChunk(cumulative, delta))
	})
	if err != nil {
		if ctx.Err() != nil {
			emit(ctx, out, types.ErrorChunk(llm.CancelledMessage))
			return
		}
		emit(ctx, out, types.ErrorChunk(err.Error()))
		return
	}
	c.finish(ctx, opts, out, text, usage)
}

func (c *Client) simpleOneShot(ctx context.Context, opts types.QueryOptions, msgs []chatMessage, out chan<- types.StreamChunk) {
	parsed, _, errMsg := c.roundTrip(ctx, c.newRequest(msgs))
	if errMsg != "" {
		emit(ctx, out, types.ErrorChunk(errMsg))
		return
	}
	if len(parsed.Choices) == 0 {
		emit(ctx, out, types.ErrorChunk("response had no choices"))
		return
	}
	text := messageContentToString(parsed.Choices[0].Message.Content)
	if text != "" {
		emit(ctx, out, types.TextChunk(text, text))
	}
	c.finish(ctx, opts, out, text, parsed.Usage.toUsage())
}

// queryWithTools runs the bounded function-calling loop. A 400/422 on the
// first round is read as "this endpoint does not actually speak function
// calling" and retried silently in simple mode.
func (c *Client) queryWithTools(ctx context.Context, opts types.QueryOptions, out chan<- types.StreamChunk) {
	msgs := c.buildMessages(opts)
	catalog := toChatTools(c.executor.Catalog())

	var (
		accumulated strings.Builder
		totalUsage  types.Usage
		sawUsage    bool
	)
	for round := 1; round <= maxToolRounds; round++ {
		body := c.newRequest(msgs)
		body.Tools = catalog
		body.ToolChoice = "auto"

		parsed, status, errMsg := c.roundTrip(ctx, body)
		if errMsg != "" {
			if round == 1 && (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) {
				c.querySimple(ctx, opts, out)
				return
			}
			emit(ctx, out, types.ErrorChunk(errMsg))
			return
		}
		if len(parsed.Choices) == 0 {
			emit(ctx, out, types.ErrorChunk("response had no choices"))
			return
		}
		msg := parsed.Choices[0].Message
		if u := parsed.Usage.toUsage(); u != nil {
			totalUsage.InputTokens += u.InputTokens
			totalUsage.OutputTokens += u.OutputTokens
			totalUsage.TotalTokens += u.TotalTokens
			sawUsage = true
		}

		if content := messageContentToString(msg.Content); content != "" {
			accumulated.WriteString(content)
			emit(ctx, out, types.TextChunk(accumulated.String(), content))
		}

		if len(msg.ToolCalls) == 0 {
			c.finish(ctx, opts, out, accumulated.String(), usageOrNil(totalUsage, sawUsage))
			return
		}

		assistant := chatMessage{Role: "assistant", Content: messageContentToString(msg.Content), ToolCalls: msg.ToolCalls}
		msgs = append(msgs, assistant)

		for _, tc := range msg.ToolCalls {
			args := normalizeJSONArgs(tc.Function.Arguments)
			emit(ctx, out, types.ToolUseChunk(tc.Function.Name, preview(string(args))))

			toolStart := time.Now().UTC()
			result, err := c.executor.Execute(ctx, tc.Function.Name, args, opts.WorkingDir)
			if err != nil {
				if ctx.Err() != nil {
					emit(ctx, out, types.ErrorChunk(llm.CancelledMessage))
					return
				}
				c.observe(ctx, observe.Event{
					Kind: observe.KindTool, Status: observe.StatusFailed,
					Provider: c.cfg.Name, ToolName: tc.Function.Name,
					Error:      err.Error(),
					DurationMs: time.Since(toolStart).Milliseconds(),
				})
				// Tool failures go back to the model so it can react.
				result = "error: " + err.Error()
			} else {
				c.observe(ctx, observe.Event{
					Kind: observe.KindTool, Status: observe.StatusCompleted,
					Provider: c.cfg.Name, ToolName: tc.Function.Name,
					DurationMs: time.Since(toolStart).Milliseconds(),
				})
			}
			emit(ctx, out, types.ToolResultChunk(tc.Function.Name, preview(result)))

			msgs = append(msgs, chatMessage{
				Role:       "tool",
				Name:       tc.Function.Name,
				ToolCallID: tc.ID,
				Content:    result,
			})
		}
	}

	if accumulated.Len() > 0 {
		c.finish(ctx, opts, out, accumulated.String(), usageOrNil(totalUsage, sawUsage))
		return
	}
	emit(ctx, out, types.ErrorChunk(fmt.Sprintf("tool loop exceeded %d rounds without a final answer", maxToolRounds)))
}

// finish emits the terminal done chunk with accounting and the
// history-replay continuation for the next turn.
func (c *Client) finish(ctx context.Context, opts types.QueryOptions, out chan<- types.StreamChunk, text string, usage *types.Usage) {
	history, _ := opts.Continuation.History()
	history = append(history, types.Message{Role: types.RoleUser, Content: opts.Prompt})
	history = append(history, types.Message{Role: types.RoleAssistant, Content: text})
	next := types.ReplayHistory(history)

	emit(ctx, out, types.DoneChunk(types.DoneInfo{
		Text:         text,
		Usage:        usage,
		CostUSD:      estimateCost(usage, len(text)),
		Continuation: &next,
	}))
}

func (c *Client) buildMessages(opts types.QueryOptions) []chatMessage {
	msgs := make([]chatMessage, 0, 8)
	if opts.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: opts.SystemPrompt})
	}
	if history, ok := opts.Continuation.History(); ok {
		msgs = append(msgs, toChatMessages(history)...)
	}
	msgs = append(msgs, chatMessage{
		Role:    "user",
		Content: userContent(opts.Prompt, opts.Attachments, c.cfg.SupportsVision),
	})
	return msgs
}

func (c *Client) newRequest(msgs []chatMessage) chatRequest {
	body := chatRequest{
		Model:    c.cfg.Model,
		Messages: msgs,
	}
	if c.cfg.MaxTokens > 0 {
		body.MaxTokens = c.cfg.MaxTokens
	}
	if c.cfg.Temperature > 0 {
		t := c.cfg.Temperature
		body.Temperature = &t
	}
	return body
}

// roundTrip posts a non-streaming completion request. On failure it
// returns the HTTP status (0 for transport errors) and a ready error
// message; parsed is only valid when errMsg is empty.
func (c *Client) roundTrip(ctx context.Context, body chatRequest) (parsed chatResponse, status int, errMsg string) {
	resp, err := c.post(ctx, body)
	if err != nil {
		return chatResponse{}, 0, requestErrorMessage(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return chatResponse{}, resp.StatusCode, httpErrorMessage(resp)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return chatResponse{}, resp.StatusCode, fmt.Sprintf("failed to read response: %v", err)
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return chatResponse{}, resp.StatusCode, fmt.Sprintf("failed to decode response: %v", err)
	}
	return parsed, resp.StatusCode, ""
}

func (c *Client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return c.httpClient.Do(req)
}

func (c *Client) observe(ctx context.Context, event observe.Event) {
	if c.observer == nil {
		return
	}
	event.Normalize()
	_ = c.observer.Emit(ctx, event)
}

func emit(ctx context.Context, out chan<- types.StreamChunk, chunk types.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func requestErrorMessage(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return llm.CancelledMessage
	}
	return fmt.Sprintf("request failed: %v", err)
}

func httpErrorMessage(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
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

// estimateCost derives an approximate cost from usage when reported, else
// from a chars-per-token heuristic over the emitted text.
func estimateCost(usage *types.Usage, textLen int) float64 {
	if usage != nil && usage.TotalTokens > 0 {
		return float64(usage.TotalTokens) * costPerToken
	}
	return float64(textLen/4) * costPerToken
}

func usageOrNil(u types.Usage, saw bool) *types.Usage {
	if !saw {
		return nil
	}
	return &u
}

func isLocalEndpoint(baseURL string) bool {
	host := hostOf(baseURL)
	return host == "localhost" || host == "127.0.0.1" || host == "::1" || host == "0.0.0.0"
}

func hostOf(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

var _ llm.Provider = (*Client)(nil)
