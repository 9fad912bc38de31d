package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/alvbln/alvin-bot-sub000/types"
)

// Executor is the narrow boundary the routing core calls: list the tool
// catalog, run one tool by name. Everything behind it is pluggable.
type Executor interface {
	Catalog() []types.ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage, workingDir string) (string, error)
}

// Registry is an instance-scoped tool set implementing Executor.
// Arguments are validated against the tool's JSON schema before the tool
// runs, so malformed model output fails fast with a usable message.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(ts ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	if t == nil {
		return
	}
	def := t.Definition()
	if strings.TrimSpace(def.Name) == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[def.Name] = t
}

func (r *Registry) Catalog() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Definition())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage, workingDir string) (string, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := validateArgs(t.Definition(), args); err != nil {
		return "", err
	}
	return t.Execute(ctx, args, workingDir)
}

func validateArgs(def types.ToolDefinition, args json.RawMessage) error {
	if len(def.JSONSchema) == 0 {
		return nil
	}
	schemaLoader := gojsonschema.NewGoLoader(def.JSONSchema)
	docLoader := gojsonschema.NewBytesLoader(args)
	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("tool %q schema validation failed: %w", def.Name, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return fmt.Errorf("tool %q arguments invalid: %s", def.Name, strings.Join(details, "; "))
	}
	return nil
}

var _ Executor = (*Registry)(nil)
