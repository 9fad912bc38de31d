// Package runtimeconfig loads the YAML runtime configuration: the
// provider inventory, routing order, state backend, and serving options.
// ${VAR} references in the file are expanded from the environment before
// parsing, which keeps credentials out of the file itself.
package runtimeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/alvbln/alvin-bot-sub000/llm"
)

type Config struct {
	Providers map[string]llm.ProviderConfig `yaml:"providers"`
	Primary   string                        `yaml:"primary"`
	Fallbacks []string                      `yaml:"fallbacks"`

	// SystemPrompt is prepended to every agent-sdk query. When
	// SystemPromptFile is set its contents win over the inline value.
	SystemPrompt     string `yaml:"systemPrompt"`
	SystemPromptFile string `yaml:"systemPromptFile"`

	AgentBinary string `yaml:"agentBinary"`

	Listen  string      `yaml:"listen"`
	TraceDB string      `yaml:"traceDb"`
	State   StateConfig `yaml:"state"`
}

type StateConfig struct {
	Backend    string      `yaml:"backend"`
	SQLitePath string      `yaml:"sqlitePath"`
	Redis      RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"`
}

// TTLDuration parses the configured TTL, zero when absent or invalid.
func (r RedisConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(r.TTL))
	if err != nil {
		return 0
	}
	return d
}

func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, fmt.Errorf("config path is required")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to resolve config path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %q: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config file %q as YAML: %w", absPath, err)
	}

	if cfg.SystemPromptFile != "" {
		promptPath := cfg.SystemPromptFile
		if !filepath.IsAbs(promptPath) {
			promptPath = filepath.Join(filepath.Dir(absPath), promptPath)
		}
		prompt, err := os.ReadFile(promptPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read system prompt file %q: %w", promptPath, err)
		}
		cfg.SystemPrompt = strings.TrimSpace(string(prompt))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for key, provider := range c.Providers {
		if err := provider.Validate(); err != nil {
			return fmt.Errorf("provider %q: %w", key, err)
		}
	}
	if c.Primary != "" {
		if _, ok := c.Providers[c.Primary]; !ok {
			return fmt.Errorf("primary provider %q is not configured", c.Primary)
		}
	}
	// Fallback keys may reference providers that are not configured;
	// the registry skips unresolved links at query time.
	return nil
}
