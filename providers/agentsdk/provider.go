package agentsdk

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/alvbln/alvin-bot-sub000/llm"
	"github.com/alvbln/alvin-bot-sub000/types"
)

const (
	defaultBinary = "claude"
	previewLimit  = 200
	probeTimeout  = 2 * time.Second

	// After this many turns without an explicit checkpoint the prompt
	// gets a reminder appended so the runtime persists its progress.
	checkpointThreshold = 8

	checkpointReminder = "Reminder: it has been a while since the last checkpoint. " +
		"Summarize the conversation state and save any important context before continuing."
)

// Client runs queries through the agent runtime CLI in non-interactive
// mode, reading its stream-json output. The runtime manages its own tool
// use and session state, so unlike the chat provider there is no tool
// loop on our side.
type Client struct {
	cfg          llm.ProviderConfig
	binary       string
	systemPrefix string
}

type Option func(*Client)

// WithBinary overrides the runtime executable name or path.
func WithBinary(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithSystemPrefix sets a system prompt fragment prepended to every
// query's system prompt.
func WithSystemPrefix(prefix string) Option {
	return func(c *Client) {
		c.systemPrefix = prefix
	}
}

func New(cfg llm.ProviderConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid agent-sdk provider config: %w", err)
	}
	c := &Client{
		cfg:    cfg,
		binary: defaultBinary,
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
		Type:  string(llm.TypeAgentSDK),
	}
}

// IsAvailable checks that the runtime binary is on PATH and answers a
// version probe. The probe is local and cheap, it never spends tokens.
func (c *Client) IsAvailable(ctx context.Context) bool {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, path, "--version").Run() == nil
}

func (c *Client) Query(ctx context.Context, opts types.QueryOptions) <-chan types.StreamChunk {
	out := make(chan types.StreamChunk)
	go func() {
		defer close(out)
		c.run(ctx, opts, out)
	}()
	return out
}

func (c *Client) run(ctx context.Context, opts types.QueryOptions, out chan<- types.StreamChunk) {
	cmd := exec.CommandContext(ctx, c.binary, c.buildArgs(opts)...)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.emit(ctx, out, types.ErrorChunk(fmt.Sprintf("failed to open runtime pipe: %v", err)))
		return
	}
	if err := cmd.Start(); err != nil {
		c.emit(ctx, out, types.ErrorChunk(fmt.Sprintf("failed to start agent runtime: %v", err)))
		return
	}

	terminal := decodeEvents(stdout, func(chunk types.StreamChunk) bool {
		return c.emit(ctx, out, chunk)
	})
	waitErr := cmd.Wait()

	if terminal {
		return
	}
	if ctx.Err() != nil {
		c.emit(ctx, out, types.ErrorChunk(llm.CancelledMessage))
		return
	}
	message := "agent runtime exited without a result"
	if waitErr != nil {
		message = fmt.Sprintf("agent runtime failed: %v", waitErr)
	}
	if detail := strings.TrimSpace(stderr.String()); detail != "" {
		message += ": " + preview(detail)
	}
	c.emit(ctx, out, types.ErrorChunk(message))
}

func (c *Client) buildArgs(opts types.QueryOptions) []string {
	args := []string{"-p", "--output-format", "stream-json", "--verbose"}
	if c.cfg.Model != "" {
		args = append(args, "--model", c.cfg.Model)
	}
	if sessionID, ok := opts.Continuation.SessionID(); ok && sessionID != "" {
		args = append(args, "--resume", sessionID)
	}
	if system := c.systemPrompt(opts); system != "" {
		args = append(args, "--append-system-prompt", system)
	}
	return append(args, c.prompt(opts))
}

func (c *Client) systemPrompt(opts types.QueryOptions) string {
	parts := make([]string, 0, 2)
	if c.systemPrefix != "" {
		parts = append(parts, c.systemPrefix)
	}
	if opts.SystemPrompt != "" {
		parts = append(parts, opts.SystemPrompt)
	}
	return strings.Join(parts, "\n\n")
}

func (c *Client) prompt(opts types.QueryOptions) string {
	prompt := opts.Prompt
	if history, ok := opts.Continuation.History(); ok && len(history) > 0 {
		// The runtime resumes its own sessions natively. Replayed chat
		// history from another provider is folded into the prompt text.
		prompt = renderHistory(history) + "\n\n" + prompt
	}
	if len(opts.Attachments) > 0 {
		refs := make([]string, 0, len(opts.Attachments))
		for _, a := range opts.Attachments {
			refs = append(refs, a.URL)
		}
		prompt += "\n\nAttached files: " + strings.Join(refs, ", ")
	}
	if opts.MessagesSinceCheckpoint >= checkpointThreshold {
		prompt += "\n\n" + checkpointReminder
	}
	return prompt
}

func renderHistory(history []types.Message) string {
	var b strings.Builder
	b.WriteString("Earlier conversation:\n")
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
	}
	return b.String()
}

func (c *Client) emit(ctx context.Context, out chan<- types.StreamChunk, chunk types.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ llm.Provider = (*Client)(nil)
