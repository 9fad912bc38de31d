package llm

import (
	"fmt"
	"strings"
)

type ProviderType string

const (
	// TypeAgentSDK wraps a tool-using agent runtime with its own
	// server-side sessions.
	TypeAgentSDK ProviderType = "agent-sdk"
	// TypeChat wraps any OpenAI-compatible chat-completions endpoint.
	TypeChat ProviderType = "chat"
)

// ProviderConfig is the static description of one backend. Immutable after
// construction; owned by its provider instance.
type ProviderConfig struct {
	Type    ProviderType `json:"type" yaml:"type"`
	Name    string       `json:"name" yaml:"name"`
	Model   string       `json:"model" yaml:"model"`
	BaseURL string       `json:"baseUrl,omitempty" yaml:"baseUrl"`
	APIKey  string       `json:"-" yaml:"apiKey"`

	SupportsTools     bool `json:"supportsTools,omitempty" yaml:"supportsTools"`
	SupportsVision    bool `json:"supportsVision,omitempty" yaml:"supportsVision"`
	SupportsStreaming bool `json:"supportsStreaming,omitempty" yaml:"supportsStreaming"`

	MaxTokens   int     `json:"maxTokens,omitempty" yaml:"maxTokens"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature"`
}

func (c ProviderConfig) Validate() error {
	switch c.Type {
	case TypeAgentSDK:
	case TypeChat:
		if strings.TrimSpace(c.BaseURL) == "" {
			return fmt.Errorf("chat provider %q requires a baseUrl", c.Name)
		}
	default:
		return fmt.Errorf("unknown provider type %q", c.Type)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("provider %q requires a model", c.Name)
	}
	return nil
}
