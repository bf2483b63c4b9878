// LLMClient - Simple wrapper around providers.

package llm

import (
	"context"
)

// Client wraps a Provider with a simple interface.
type Client struct {
	provider Provider
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{provider: provider}
}

// Chat sends a chat completion request and returns just the content.
func (c *Client) Chat(ctx context.Context, messages []ChatMessage) (string, error) {
	response, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	return response.Content, nil
}

// Complete sends one request with tools and returns the assembled response.
func (c *Client) Complete(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return c.provider.ChatWithTools(ctx, messages, tools)
}

// streamResult holds the result of a streaming call.
type streamResult struct {
	err error
}

// Stream streams a completion with tools, calling onContent for every non-empty
// content fragment in arrival order, and returns the assembled response.
func (c *Client) Stream(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, onContent func(string)) (LLMResponse, error) {
	deltas := make(chan StreamDelta, 100)

	resultCh := make(chan streamResult, 1)
	go func() {
		defer close(deltas)
		err := c.provider.StreamWithTools(ctx, messages, tools, deltas)
		resultCh <- streamResult{err: err}
	}()

	var acc StreamAccumulator
	for delta := range deltas {
		acc.Add(delta)
		if delta.Content != "" && onContent != nil {
			onContent(delta.Content)
		}
	}

	result := <-resultCh
	if result.err != nil {
		return LLMResponse{}, result.err
	}

	return acc.Response(), nil
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}
