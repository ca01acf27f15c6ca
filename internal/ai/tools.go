package ai

import (
	"context"
	"fmt"
	"sync"
)

// InvokerFunc adapts a plain function to the Invoker interface. Tests and
// thin adapters use it instead of defining a struct.
type InvokerFunc func(ctx context.Context, req Request) (string, error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ToolRegistry is the optional capability lookup the pipeline consults
// before falling back to direct LLM invocation. Every tool-based code path
// has a direct equivalent and must fall back to it on absence or failure.
type ToolRegistry interface {
	// HasTool reports whether a tool is registered and usable.
	HasTool(name string) bool

	// ExecuteTool runs the named tool with JSON-shaped args and returns its
	// free-text output.
	ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// ToolFunc is one registered tool implementation.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// FuncRegistry is a simple in-memory ToolRegistry backed by a name→func map.
type FuncRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolFunc
}

var _ ToolRegistry = (*FuncRegistry)(nil)

// NewFuncRegistry creates an empty registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{tools: make(map[string]ToolFunc)}
}

// Register adds or replaces a tool.
func (r *FuncRegistry) Register(name string, fn ToolFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
}

// HasTool implements ToolRegistry.
func (r *FuncRegistry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// ExecuteTool implements ToolRegistry.
func (r *FuncRegistry) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	r.mu.RLock()
	fn, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("tool %q not registered", name)
	}
	return fn(ctx, args)
}
