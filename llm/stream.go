// Streaming deltas and their assembly into a complete response.
//
// Information Hiding:
// - Per-index merging of partial tool-call fragments
// - Ordering of merged tool calls

package llm

import (
	"context"
	"sort"
	"strings"
)

// StreamDelta is one chunk of a streamed completion.
type StreamDelta struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
	Usage        *TokenUsage
}

// ToolCallDelta is a partial tool call. Fragments sharing an Index belong to the same call.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// StreamAccumulator assembles streamed deltas into an LLMResponse.
// The zero value is ready to use.
type StreamAccumulator struct {
	content      strings.Builder
	calls        map[int]*ToolCall
	finishReason string
	usage        *TokenUsage
}

// Add merges one delta.
func (a *StreamAccumulator) Add(delta StreamDelta) {
	a.content.WriteString(delta.Content)

	for _, tc := range delta.ToolCalls {
		if a.calls == nil {
			a.calls = make(map[int]*ToolCall)
		}
		call, ok := a.calls[tc.Index]
		if !ok {
			call = &ToolCall{}
			a.calls[tc.Index] = call
		}
		if tc.ID != "" && call.ID == "" {
			call.ID = tc.ID
		}
		if tc.Name != "" {
			call.Name = tc.Name
		}
		call.Arguments += tc.Arguments
	}

	if delta.FinishReason != "" {
		a.finishReason = delta.FinishReason
	}
	if delta.Usage != nil {
		a.usage = delta.Usage
	}
}

// Response returns the assembled response. Tool calls are ordered by index.
func (a *StreamAccumulator) Response() LLMResponse {
	resp := LLMResponse{
		Content:      a.content.String(),
		FinishReason: a.finishReason,
		Usage:        a.usage,
	}

	if len(a.calls) > 0 {
		indexes := make([]int, 0, len(a.calls))
		for idx := range a.calls {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		resp.ToolCalls = make([]ToolCall, 0, len(indexes))
		for _, idx := range indexes {
			resp.ToolCalls = append(resp.ToolCalls, *a.calls[idx])
		}
	}

	return resp
}

// emitResponse replays a complete response as a single delta, for providers
// whose tool-calling path is not streamed.
func emitResponse(ctx context.Context, resp LLMResponse, deltas chan<- StreamDelta) error {
	delta := StreamDelta{
		Content:      resp.Content,
		FinishReason: resp.FinishReason,
		Usage:        resp.Usage,
	}
	for i, tc := range resp.ToolCalls {
		delta.ToolCalls = append(delta.ToolCalls, ToolCallDelta{
			Index:     i,
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}

	select {
	case deltas <- delta:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
