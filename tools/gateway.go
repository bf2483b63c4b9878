// Tool Gateway - the boundary between the model's tool calls and tool sources.
//
// Information Hiding:
// - Whitelist filtering of the catalog
// - Argument parsing and per-call timeouts
// - Conversion of every tool-side failure into tool-result content

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/richinex/murmur/llm"
	"github.com/richinex/murmur/model"
)

// DefaultCallTimeout bounds a single tool call.
const DefaultCallTimeout = 30 * time.Second

// Gateway filters a tool catalog and dispatches calls.
type Gateway struct {
	source    Source
	whitelist *Whitelist
	timeout   time.Duration
	logger    *slog.Logger
}

// NewGateway creates a gateway over source. A nil whitelist allows every tool.
func NewGateway(source Source, whitelist *Whitelist) *Gateway {
	return &Gateway{
		source:    source,
		whitelist: whitelist,
		timeout:   DefaultCallTimeout,
		logger:    slog.New(slog.DiscardHandler),
	}
}

// WithTimeout sets the per-call timeout. Zero disables it.
func (g *Gateway) WithTimeout(timeout time.Duration) *Gateway {
	g.timeout = timeout
	return g
}

// WithLogger sets the logger.
func (g *Gateway) WithLogger(logger *slog.Logger) *Gateway {
	if logger != nil {
		g.logger = logger
	}
	return g
}

// IsToolAllowed applies the whitelist to a qualified name.
func (g *Gateway) IsToolAllowed(name string) (bool, error) {
	return g.whitelist.Allows(name)
}

// PrepareTools lists the catalog and returns the allowed tools as model
// function definitions.
func (g *Gateway) PrepareTools(ctx context.Context) ([]llm.ToolDefinition, error) {
	infos, err := g.source.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	var defs []llm.ToolDefinition
	for _, info := range infos {
		allowed, err := g.whitelist.Allows(info.Name)
		if err != nil {
			return nil, err
		}
		if !allowed {
			g.logger.Debug("tool filtered by whitelist", "tool", info.Name)
			continue
		}

		schema := info.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		defs = append(defs, llm.ToolDefinition{
			Name:        info.Name,
			Description: info.Description,
			Parameters:  schema,
		})
	}

	g.logger.Info("tools prepared", "listed", len(infos), "allowed", len(defs))
	return defs, nil
}

// Check applies the policy to a batch of requested calls.
func (g *Gateway) Check(calls []llm.ToolCall) error {
	for _, call := range calls {
		allowed, err := g.whitelist.Allows(call.Name)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: %s", ErrToolNotAllowed, call.Name)
		}
	}
	return nil
}

// Invocation is the result of one dispatched call.
type Invocation struct {
	Message llm.ChatMessage
	Stats   model.ToolCall
}

// Dispatch executes one call and returns its tool-role message. Tool-side
// failures become message content; only policy violations return an error.
func (g *Gateway) Dispatch(ctx context.Context, call llm.ToolCall) (llm.ChatMessage, error) {
	inv, err := g.Execute(ctx, call)
	if err != nil {
		return llm.ChatMessage{}, err
	}
	return inv.Message, nil
}

// Execute is Dispatch with call statistics.
func (g *Gateway) Execute(ctx context.Context, call llm.ToolCall) (Invocation, error) {
	if err := g.Check([]llm.ToolCall{call}); err != nil {
		return Invocation{}, err
	}

	start := time.Now()
	output, err := g.call(ctx, call)
	stats := model.ToolCall{
		Name:       call.Name,
		InputSize:  len(call.Arguments),
		DurationMs: uint64(time.Since(start).Milliseconds()),
		Success:    err == nil,
	}

	if err != nil {
		g.logger.Warn("tool call failed", "tool", call.Name, "id", call.ID, "error", err)
		output = fmt.Sprintf("tool call failed: %s, error: %v", call.Name, err)
	} else {
		g.logger.Debug("tool call succeeded", "tool", call.Name, "id", call.ID, "duration_ms", stats.DurationMs)
	}
	stats.OutputSize = len(output)

	return Invocation{
		Message: llm.ToolMessage(call.ID, output),
		Stats:   stats,
	}, nil
}

func (g *Gateway) call(ctx context.Context, call llm.ToolCall) (string, error) {
	args, err := ParseArguments(call.Arguments)
	if err != nil {
		return "", err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	output, err := g.source.CallTool(ctx, call.Name, args)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("timed out after %s: %w", g.timeout, err)
		}
		return "", err
	}
	return output, nil
}

// ParseArguments decodes a model-produced argument string. Blank and null
// arguments mean no arguments.
func ParseArguments(raw string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}
