package tools

import (
	"context"
	"sort"
	"sync"

	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
)

// Registry manages tool definitions. It is populated at startup and
// read-only afterwards; there is no process-global instance, callers inject
// the registry they built.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Definition),
	}
}

// Register adds a tool definition to the registry.
// Returns an error if a tool with the same name already exists.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if def.Name == "" {
		return chiselerrors.New(chiselerrors.ErrCodeInvalidInput, "tool name cannot be empty")
	}
	if def.Handler == nil {
		return chiselerrors.New(chiselerrors.ErrCodeInvalidInput, "tool "+def.Name+" has no handler")
	}
	if _, exists := r.tools[def.Name]; exists {
		return chiselerrors.New(chiselerrors.ErrCodeInvalidInput, "tool "+def.Name+" already registered")
	}

	r.tools[def.Name] = def
	return nil
}

// MustRegister adds a tool definition and panics on error.
// Use this for static tool definitions at startup.
func (r *Registry) MustRegister(def Definition) {
	if err := r.Register(def); err != nil {
		panic(err)
	}
}

// Get returns a tool definition by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	return def, ok
}

// Execute validates the call's arguments against the tool's schema and runs
// its handler. An unknown tool or invalid payload comes back as an error
// result, not a Go error; the model reads it and can retry.
func (r *Registry) Execute(ctx context.Context, call Call, env *Env) Result {
	def, ok := r.Get(call.Name)
	if !ok {
		return NewError(call.ID, chiselerrors.New(chiselerrors.ErrCodeToolNotFound,
			"unknown tool "+call.Name))
	}

	if err := def.Parameters.Validate(call.Arguments); err != nil {
		return NewError(call.ID, err)
	}

	result, err := def.Handler(ctx, call, env)
	if err != nil {
		return NewError(call.ID, err)
	}
	result.CallID = call.ID
	return result
}

// List returns all registered tool definitions, sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToOpenAIFormat returns all tools in OpenAI function calling format.
func (r *Registry) ToOpenAIFormat() []map[string]any {
	defs := r.List()
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.ToOpenAIFormat())
	}
	return out
}

// ToAnthropicFormat returns all tools in Anthropic tool format.
func (r *Registry) ToAnthropicFormat() []map[string]any {
	defs := r.List()
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.ToAnthropicFormat())
	}
	return out
}

// Subset returns a new registry containing only the named tools.
// Tools that don't exist in the source registry are silently skipped.
func (r *Registry) Subset(names ...string) *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subset := NewRegistry()
	for _, name := range names {
		if def, ok := r.tools[name]; ok {
			subset.tools[name] = def
		}
	}
	return subset
}
