// Package mcp connects to Model Context Protocol (MCP) tool servers.
//
// Sessions run on the official MCP SDK: it owns the stdio transport, the
// initialize handshake, pagination and server-initiated requests such as
// ping. This package adds the server configuration and the Manager that
// exposes every server's tools under "<server>_<tool>" names.
//
// Information Hiding:
// - Process management hidden
// - SDK session and content types hidden
// - Result flattening to text hidden

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client identity announced during initialize.
const (
	ClientName    = "murmur"
	ClientVersion = "0.1.0"
)

// ErrClosed is returned for calls on a closed client.
var ErrClosed = errors.New("mcp client closed")

// Client is one session with an MCP server.
type Client struct {
	mu      sync.RWMutex
	session *mcpsdk.ClientSession
	closed  bool
}

// ToolInfo describes a tool available on the MCP server.
type ToolInfo struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// NewClient creates a new MCP client by starting the given command.
// The command is expected to be an MCP server that communicates via stdin/stdout.
func NewClient(ctx context.Context, command string, args ...string) (*Client, error) {
	return Start(ctx, ServerConfig{Command: command, Args: args})
}

// Start launches the server described by config and initializes the session.
// The process lives until Close, independent of ctx.
func Start(ctx context.Context, config ServerConfig) (*Client, error) {
	// #nosec G204 -- command comes from the operator's server configuration
	cmd := exec.Command(config.Command, config.Args...)
	if len(config.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range config.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	return Connect(ctx, &mcpsdk.CommandTransport{Command: cmd})
}

// Connect initializes a session over transport, such as an in-memory
// transport to an in-process server.
func Connect(ctx context.Context, transport mcpsdk.Transport) (*Client, error) {
	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: ClientName, Version: ClientVersion}, nil)
	session, err := impl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}
	return &Client{session: session}, nil
}

func (c *Client) live() (*mcpsdk.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.session, nil
}

// ListTools returns all tools available on the MCP server, following pagination.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	session, err := c.live()
	if err != nil {
		return nil, err
	}

	var all []ToolInfo
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		schema, err := decodeSchema(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", tool.Name, err)
		}
		all = append(all, ToolInfo{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return all, nil
}

// CallTool calls a tool on the MCP server and returns its text content.
// A result flagged isError is returned as an error carrying that text.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]interface{}) (string, error) {
	session, err := c.live()
	if err != nil {
		return "", err
	}
	if arguments == nil {
		arguments = map[string]interface{}{}
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return "", fmt.Errorf("call %s: %w", name, err)
	}

	text, err := resultText(result)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s reported error: %s", name, text)
	}
	return text, nil
}

// resultText joins the textual content blocks. Results carrying only
// structured content are rendered as JSON.
func resultText(result *mcpsdk.CallToolResult) (string, error) {
	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		switch block := content.(type) {
		case *mcpsdk.TextContent:
			parts = append(parts, block.Text)
		case *mcpsdk.ImageContent:
			parts = append(parts, "[image content]")
		case *mcpsdk.AudioContent:
			parts = append(parts, "[audio content]")
		default:
			parts = append(parts, "[resource content]")
		}
	}

	if len(parts) == 0 && result.StructuredContent != nil {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return "", fmt.Errorf("encode structured content: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(parts, "\n"), nil
}

// decodeSchema turns the tool's input schema into a map, defaulting to an
// empty object schema.
func decodeSchema(raw any) (map[string]interface{}, error) {
	schema := map[string]interface{}{}
	switch v := raw.(type) {
	case nil:
	case map[string]interface{}:
		for k, val := range v {
			schema[k] = val
		}
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode input schema: %w", err)
		}
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("decode input schema: %w", err)
		}
	}

	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	if _, ok := schema["properties"]; !ok {
		schema["properties"] = map[string]interface{}{}
	}
	return schema, nil
}

// Close ends the session and stops the server process.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	return c.session.Close()
}
