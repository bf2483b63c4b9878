// Package tools provides tool management and registration.
//
// Information Hiding:
// - Tool storage and lookup implementation hidden
// - Registration and discovery mechanisms abstracted
// - Execution through the retrying Executor

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry manages local tools and serves them as a Source.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	executor *Executor
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		executor: NewExecutor(ToolConfig{}),
	}
}

// WithExecutor replaces the executor used by CallTool.
func (r *Registry) WithExecutor(executor *Executor) *Registry {
	r.executor = executor
	return r
}

// Register adds a new tool to the registry.
// Returns error if a tool with the same name already exists or the name has no namespace.
func (r *Registry) Register(tool Tool) error {
	name := tool.Metadata().Name
	if _, _, err := SplitToolName(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	return tool, exists
}

// Names returns all registered tool names in sorted order.
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

// ListTools returns the catalog sorted by name.
func (r *Registry) ListTools(ctx context.Context) ([]ToolInfo, error) {
	names := r.Names()
	infos := make([]ToolInfo, 0, len(names))
	for _, name := range names {
		tool, ok := r.Get(name)
		if !ok {
			continue
		}
		meta := tool.Metadata()
		infos = append(infos, ToolInfo{
			Name:        meta.Name,
			Description: meta.Description,
			InputSchema: meta.Schema(),
		})
	}
	return infos, nil
}

// CallTool validates the arguments and runs the tool through the executor.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("tool '%s' not found", name)
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("encode arguments: %w", err)
	}
	if err := tool.Validate(raw); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	result, err := r.executor.Execute(ctx, tool, raw)
	if err != nil {
		return "", err
	}
	if !result.Success() {
		return "", result.Error
	}
	return result.Output, nil
}

// Default timeout for builtin network tools.
const DefaultToolTimeout = 30 * time.Second

// WithBuiltins creates a registry with the builtin tools.
// Returns error if any tool registration fails.
func WithBuiltins() (*Registry, error) {
	registry := NewRegistry()

	tools := []Tool{
		NewAddTool(),
		NewMinusTool(),
		NewGreetTool(),
		NewFetchTool(DefaultToolTimeout),
	}

	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register builtin tools: %w", err)
		}
	}

	return registry, nil
}

// Verify Registry implements Source
var _ Source = (*Registry)(nil)
