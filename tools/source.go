// Tool sources: anything that can list tools and call them by name.
//
// Information Hiding:
// - Routing of a qualified tool name to the source that listed it

package tools

import (
	"context"
	"fmt"
	"sync"
)

// ToolInfo is one entry of a tool catalog.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// Source lists tools and executes them. The MCP manager and the local
// Registry both implement it.
type Source interface {
	ListTools(ctx context.Context) ([]ToolInfo, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// MultiSource merges several sources into one catalog.
type MultiSource struct {
	sources []Source

	mu     sync.RWMutex
	routes map[string]Source
}

// Combine merges sources. Tool names must be unique across them.
func Combine(sources ...Source) *MultiSource {
	return &MultiSource{
		sources: sources,
		routes:  make(map[string]Source),
	}
}

// ListTools lists every source in order and remembers which source owns each name.
func (m *MultiSource) ListTools(ctx context.Context) ([]ToolInfo, error) {
	routes := make(map[string]Source)
	var all []ToolInfo

	for _, src := range m.sources {
		infos, err := src.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if _, dup := routes[info.Name]; dup {
				return nil, fmt.Errorf("tool %q provided by more than one source", info.Name)
			}
			routes[info.Name] = src
			all = append(all, info)
		}
	}

	m.mu.Lock()
	m.routes = routes
	m.mu.Unlock()

	return all, nil
}

// CallTool routes the call to the source that listed name.
func (m *MultiSource) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	m.mu.RLock()
	src, ok := m.routes[name]
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}
	return src.CallTool(ctx, name, args)
}
