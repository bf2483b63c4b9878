package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/richinex/murmur/compaction"
	"github.com/richinex/murmur/llm"
	"github.com/richinex/murmur/storage"
	"github.com/richinex/murmur/tools"
)

// scriptedProvider replays canned responses, one per model call.
type scriptedProvider struct {
	responses []llm.LLMResponse
	errAt     int // 1-based call that fails; 0 never
	calls     int
	seen      [][]llm.ChatMessage
	toolsSeen [][]llm.ToolDefinition
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	return llm.LLMResponse{Content: "summary of old rounds"}, nil
}

func (p *scriptedProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDefinition) (llm.LLMResponse, error) {
	p.calls++
	p.seen = append(p.seen, messages)
	p.toolsSeen = append(p.toolsSeen, defs)
	if p.errAt == p.calls {
		return llm.LLMResponse{}, errors.New("upstream unavailable")
	}
	if len(p.responses) == 0 {
		return llm.LLMResponse{Content: "fallback", FinishReason: llm.FinishStop}, nil
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

// StreamWithTools splits content in two fragments and sends tool calls as
// separate name and argument deltas.
func (p *scriptedProvider) StreamWithTools(ctx context.Context, messages []llm.ChatMessage, defs []llm.ToolDefinition, deltas chan<- llm.StreamDelta) error {
	resp, err := p.ChatWithTools(ctx, messages, defs)
	if err != nil {
		return err
	}
	half := len(resp.Content) / 2
	for _, part := range []string{resp.Content[:half], resp.Content[half:]} {
		if part != "" {
			deltas <- llm.StreamDelta{Content: part}
		}
	}
	for i, tc := range resp.ToolCalls {
		deltas <- llm.StreamDelta{ToolCalls: []llm.ToolCallDelta{{Index: i, ID: tc.ID, Name: tc.Name}}}
		deltas <- llm.StreamDelta{ToolCalls: []llm.ToolCallDelta{{Index: i, Arguments: tc.Arguments}}}
	}
	deltas <- llm.StreamDelta{FinishReason: resp.FinishReason, Usage: resp.Usage}
	return nil
}

func toolRound(id, name, args string) llm.LLMResponse {
	return llm.LLMResponse{
		ToolCalls:    []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
		FinishReason: llm.FinishToolCalls,
		Usage:        &llm.TokenUsage{PromptTokens: 100, CompletionTokens: 10, PromptCacheHitTokens: 60, PromptCacheMissTokens: 40},
	}
}

func final(content string, prompt uint32) llm.LLMResponse {
	return llm.LLMResponse{
		Content:      content,
		FinishReason: llm.FinishStop,
		Usage:        &llm.TokenUsage{PromptTokens: prompt, CompletionTokens: 5},
	}
}

func builtinGateway(t *testing.T, whitelist *tools.Whitelist) (*tools.Gateway, []llm.ToolDefinition) {
	t.Helper()
	registry, err := tools.WithBuiltins()
	if err != nil {
		t.Fatalf("WithBuiltins failed: %v", err)
	}
	gateway := tools.NewGateway(registry, whitelist)
	defs, err := gateway.PrepareTools(context.Background())
	if err != nil {
		t.Fatalf("PrepareTools failed: %v", err)
	}
	return gateway, defs
}

func TestTurnFinalWithoutTools(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.LLMResponse{final("Hello there.", 42)}}
	a := New(Config{SystemPrompt: "persona", Stream: true}, provider)

	var streamed strings.Builder
	result, err := a.Turn(context.Background(), "hi", func(s string) { streamed.WriteString(s) })
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}

	if !result.IsFinal() || result.Content != "Hello there." {
		t.Errorf("result = %+v", result)
	}
	if streamed.String() != "Hello there." {
		t.Errorf("streamed = %q", streamed.String())
	}

	history := a.History()
	if len(history) != 3 {
		t.Fatalf("expected system, user, assistant; got %d messages", len(history))
	}
	if history[1].Role != llm.RoleUser || history[2].Role != llm.RoleAssistant {
		t.Errorf("unexpected roles: %+v", history)
	}
	if a.State().LatestPromptTokens != 42 {
		t.Errorf("LatestPromptTokens = %d", a.State().LatestPromptTokens)
	}
}

func TestTurnDispatchesToolCalls(t *testing.T) {
	for _, stream := range []bool{true, false} {
		provider := &scriptedProvider{responses: []llm.LLMResponse{
			toolRound("call_1", "calc_add", `{"a":2,"b":3}`),
			final("The answer is 5.", 150),
		}}
		gateway, defs := builtinGateway(t, nil)
		a := New(Config{Stream: stream, MaxToolRounds: 3}, provider).WithGateway(gateway, defs)

		result, err := a.Turn(context.Background(), "add 2 and 3", nil)
		if err != nil {
			t.Fatalf("stream=%v: Turn failed: %v", stream, err)
		}
		if result.Rounds != 1 || result.ModelCalls != 2 || len(result.ToolCalls) != 1 {
			t.Errorf("stream=%v: result = %+v", stream, result)
		}
		if !result.ToolCalls[0].Success {
			t.Errorf("stream=%v: expected successful tool call", stream)
		}

		history := a.History()
		// user, assistant(tool_calls), tool, assistant
		if len(history) != 4 {
			t.Fatalf("stream=%v: expected 4 messages, got %d", stream, len(history))
		}
		if len(history[1].ToolCalls) != 1 || history[1].ToolCalls[0].Arguments != `{"a":2,"b":3}` {
			t.Errorf("stream=%v: assistant tool calls = %+v", stream, history[1].ToolCalls)
		}
		if history[2].Role != llm.RoleTool || history[2].ToolCallID != "call_1" || history[2].Content != "5" {
			t.Errorf("stream=%v: tool message = %+v", stream, history[2])
		}

		// Second model call sees the tool result.
		if last := provider.seen[1][len(provider.seen[1])-1]; last.ToolCallID != "call_1" {
			t.Errorf("stream=%v: model did not see tool result: %+v", stream, last)
		}

		usage := a.State().Usage
		if usage.ModelCalls != 2 || usage.PromptTokens != 250 || usage.PromptCacheHitTokens != 60 {
			t.Errorf("stream=%v: usage = %+v", stream, usage)
		}
		if a.State().LatestPromptTokens != 150 {
			t.Errorf("stream=%v: LatestPromptTokens = %d", stream, a.State().LatestPromptTokens)
		}
	}
}

func TestTurnToolFailureBecomesContent(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		toolRound("call_1", "calc_add", `{"a":500,"b":3}`),
		final("That number is too big.", 10),
	}}
	gateway, defs := builtinGateway(t, nil)
	a := New(Config{MaxToolRounds: 3}, provider).WithGateway(gateway, defs)

	result, err := a.Turn(context.Background(), "add 500 and 3", nil)
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if result.ToolCalls[0].Success {
		t.Error("expected failed tool call stats")
	}
	toolMsg := a.History()[2]
	if !strings.Contains(toolMsg.Content, "tool call failed: calc_add") {
		t.Errorf("tool message = %q", toolMsg.Content)
	}
}

func TestTurnToolLoopExceeded(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		toolRound("call_x", "greet_hello", `{}`),
	}}
	gateway, defs := builtinGateway(t, nil)
	a := New(Config{MaxToolRounds: 2}, provider).WithGateway(gateway, defs)

	result, err := a.Turn(context.Background(), "loop forever", nil)
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if result.Outcome != TurnToolLoopExceeded {
		t.Fatalf("outcome = %v", result.Outcome)
	}
	if result.Rounds != 2 || provider.calls != 3 {
		t.Errorf("rounds = %d, calls = %d", result.Rounds, provider.calls)
	}

	// No dangling tool-call message: the history ends with a tool result.
	history := a.History()
	last := history[len(history)-1]
	if last.Role != llm.RoleTool {
		t.Errorf("expected history to end with a tool result, got %+v", last)
	}
	for i, msg := range history {
		if len(msg.ToolCalls) > 0 && (i+1 >= len(history) || history[i+1].Role != llm.RoleTool) {
			t.Errorf("tool call message at %d has no result", i)
		}
	}
}

func TestTurnUnlimitedRounds(t *testing.T) {
	responses := make([]llm.LLMResponse, 0, 13)
	for i := 0; i < 12; i++ {
		responses = append(responses, toolRound("c", "greet_hello", ""))
	}
	responses = append(responses, final("done", 1))

	provider := &scriptedProvider{responses: responses}
	gateway, defs := builtinGateway(t, nil)
	a := New(Config{MaxToolRounds: 0}, provider).WithGateway(gateway, defs)

	result, err := a.Turn(context.Background(), "go", nil)
	if err != nil {
		t.Fatalf("Turn failed: %v", err)
	}
	if !result.IsFinal() || result.Rounds != 12 {
		t.Errorf("result = %+v", result)
	}
}

func TestTurnPolicyViolationLeavesHistoryUntouched(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.LLMResponse{
		toolRound("call_1", "calc_minus", `{"a":5,"b":3}`),
	}}
	whitelist := tools.NewWhitelist(map[string]tools.NamespacePolicy{
		"calc": {Enabled: true, Tools: []string{"add"}},
	})
	gateway, defs := builtinGateway(t, whitelist)
	a := New(Config{SystemPrompt: "persona", MaxToolRounds: 3}, provider).WithGateway(gateway, defs)
	before := a.History()

	_, err := a.Turn(context.Background(), "subtract", nil)
	if !errors.Is(err, tools.ErrToolNotAllowed) {
		t.Fatalf("expected ErrToolNotAllowed, got %v", err)
	}
	if got := a.History(); len(got) != len(before) {
		t.Errorf("history changed: %+v", got)
	}

	for _, def := range provider.toolsSeen[0] {
		if def.Name == "calc_minus" {
			t.Error("calc_minus should not be offered to the model")
		}
	}
}

func TestTurnModelErrorRollsBack(t *testing.T) {
	provider := &scriptedProvider{
		responses: []llm.LLMResponse{toolRound("call_1", "greet_hello", `{"name":"Ada"}`)},
		errAt:     2,
	}
	gateway, defs := builtinGateway(t, nil)
	a := New(Config{MaxToolRounds: 3}, provider).WithGateway(gateway, defs)

	_, err := a.Turn(context.Background(), "greet Ada", nil)
	if err == nil || !strings.Contains(err.Error(), "upstream unavailable") {
		t.Fatalf("expected model error, got %v", err)
	}
	if len(a.History()) != 0 {
		t.Errorf("expected rollback to empty history, got %+v", a.History())
	}
}

func TestTurnToolsWithoutGateway(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.LLMResponse{toolRound("c", "calc_add", "{}")}}
	a := New(Config{MaxToolRounds: 3}, provider)

	if _, err := a.Turn(context.Background(), "x", nil); !errors.Is(err, ErrNoGateway) {
		t.Fatalf("expected ErrNoGateway, got %v", err)
	}
}

func TestTurnCancelled(t *testing.T) {
	provider := &scriptedProvider{}
	a := New(Config{}, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Turn(ctx, "x", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("model called %d times after cancellation", provider.calls)
	}
}

func TestChatCompactsAndPersists(t *testing.T) {
	provider := &scriptedProvider{responses: []llm.LLMResponse{final("ok", 60000)}}
	compactor := compaction.New(compaction.Config{
		MaxContextTokens:   1000,
		SummarizeThreshold: 0.5,
		KeepChatRounds:     1,
		SystemPromptMaxNum: 10,
	}, provider)
	store := storage.NewInMemoryStorage()

	a := NewBuilder(provider).
		SystemPrompt("persona").
		Stream(false).
		Compactor(compactor).
		Storage(store, "session-1").
		Resume([]llm.ChatMessage{
			llm.SystemMessage("persona"),
			llm.UserMessage("q0"), llm.AssistantMessage("a0"),
			llm.UserMessage("q1"), llm.AssistantMessage("a1"),
		}).
		Build()

	if _, err := a.Chat(context.Background(), "q2", nil); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	history := a.History()
	// persona, summary, q2, ok
	if len(history) != 4 {
		t.Fatalf("expected 4 messages after compaction, got %d: %+v", len(history), history)
	}
	if !strings.HasPrefix(history[1].Content, compaction.SummaryPrefix) {
		t.Errorf("expected summary message, got %q", history[1].Content)
	}

	saved, _ := store.Load(context.Background(), "session-1")
	if len(saved) != 4 {
		t.Errorf("expected compacted history saved, got %d messages", len(saved))
	}

	memories, _ := store.QueryMemories(context.Background(), "session-1", nil, 0)
	if len(memories) != 1 || memories[0].Type != storage.MemorySummary {
		t.Fatalf("expected one logged summary, got %+v", memories)
	}
	if !strings.HasPrefix(memories[0].Metadata, `{"messages":4,"prompt_tokens":`) {
		t.Errorf("metadata = %q", memories[0].Metadata)
	}
}

func TestCompactWithoutCompactor(t *testing.T) {
	a := New(Config{SystemPrompt: "persona"}, &scriptedProvider{})
	result, err := a.Compact(context.Background())
	if err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	if result.Compacted || len(result.Messages) != 1 {
		t.Errorf("result = %+v", result)
	}
}
