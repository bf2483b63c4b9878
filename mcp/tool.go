// MCP Tool Manager - Makes MCP server tools usable through the tool gateway.
//
// Information Hiding:
// - MCP client lifecycle hidden
// - Name qualification ("<server>_<tool>") and routing hidden

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/richinex/murmur/tools"
)

// Manager owns one client per configured MCP server and exposes their tools
// under names qualified by the server name.
// The caller must call Close() when done to release resources.
type Manager struct {
	clients map[string]*Client
	order   []string
	logger  *slog.Logger

	mu     sync.RWMutex
	routes map[string]route
}

type route struct {
	server string
	tool   string
}

// NewManager wraps already connected clients keyed by server name.
func NewManager(clients map[string]*Client) *Manager {
	order := make([]string, 0, len(clients))
	for name := range clients {
		order = append(order, name)
	}
	sort.Strings(order)

	return &Manager{
		clients: clients,
		order:   order,
		logger:  slog.New(slog.DiscardHandler),
		routes:  make(map[string]route),
	}
}

// StartServers launches every configured server. If any fails, the ones
// already started are closed.
func StartServers(ctx context.Context, servers map[string]ServerConfig, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	sort.Strings(names)

	clients := make(map[string]*Client, len(servers))
	for _, name := range names {
		server := servers[name]
		if err := ValidateServer(name, server); err != nil {
			closeAll(clients)
			return nil, err
		}

		client, err := Start(ctx, server)
		if err != nil {
			closeAll(clients)
			return nil, fmt.Errorf("MCP server %s: %w", name, err)
		}
		logger.Info("mcp server started", "server", name, "command", server.String())
		clients[name] = client
	}

	m := NewManager(clients)
	m.logger = logger
	return m, nil
}

// WithLogger sets the logger.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	m.logger = logger
	return m
}

// Servers returns the server names in sorted order.
func (m *Manager) Servers() []string {
	return append([]string(nil), m.order...)
}

// ListTools queries every server and returns the qualified catalog.
func (m *Manager) ListTools(ctx context.Context) ([]tools.ToolInfo, error) {
	routes := make(map[string]route)
	var all []tools.ToolInfo

	for _, server := range m.order {
		infos, err := m.clients[server].ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools on %s: %w", server, err)
		}

		for _, info := range infos {
			qualified := server + "_" + info.Name
			routes[qualified] = route{server: server, tool: info.Name}
			all = append(all, tools.ToolInfo{
				Name:        qualified,
				Description: info.Description,
				InputSchema: info.InputSchema,
			})
		}
		m.logger.Debug("mcp tools listed", "server", server, "count", len(infos))
	}

	m.mu.Lock()
	m.routes = routes
	m.mu.Unlock()

	return all, nil
}

// CallTool executes a qualified tool on the server that owns it.
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	r, ok := m.resolve(name)
	if !ok {
		return "", fmt.Errorf("unknown MCP tool %q", name)
	}
	return m.clients[r.server].CallTool(ctx, r.tool, args)
}

// resolve uses the routes from the last ListTools, falling back to the
// server prefix so calls work before the catalog is listed.
func (m *Manager) resolve(name string) (route, bool) {
	m.mu.RLock()
	r, ok := m.routes[name]
	m.mu.RUnlock()
	if ok {
		return r, true
	}

	server, tool, found := strings.Cut(name, "_")
	if !found || tool == "" {
		return route{}, false
	}
	if _, ok := m.clients[server]; !ok {
		return route{}, false
	}
	return route{server: server, tool: tool}, true
}

// Close closes all MCP clients.
func (m *Manager) Close() error {
	closeAll(m.clients)
	return nil
}

func closeAll(clients map[string]*Client) {
	for _, c := range clients {
		_ = c.Close() // Intentionally ignore - cleanup
	}
}

// Verify Manager implements tools.Source
var _ tools.Source = (*Manager)(nil)

