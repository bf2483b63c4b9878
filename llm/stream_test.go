package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStreamAccumulatorMergesToolCallFragments(t *testing.T) {
	var acc StreamAccumulator
	acc.Add(StreamDelta{ToolCalls: []ToolCallDelta{{Index: 0, ID: "t1", Name: "add"}}})
	acc.Add(StreamDelta{ToolCalls: []ToolCallDelta{{Index: 0, Arguments: `{"x":`}}})
	acc.Add(StreamDelta{ToolCalls: []ToolCallDelta{{Index: 0, Arguments: `1}`}}})
	acc.Add(StreamDelta{FinishReason: FinishToolCalls})

	resp := acc.Response()
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	want := ToolCall{ID: "t1", Name: "add", Arguments: `{"x":1}`}
	if resp.ToolCalls[0] != want {
		t.Errorf("got %+v, want %+v", resp.ToolCalls[0], want)
	}
	if !resp.WantsTools() {
		t.Error("expected response to request tools")
	}
}

func TestStreamAccumulatorKeepsFirstID(t *testing.T) {
	var acc StreamAccumulator
	acc.Add(StreamDelta{ToolCalls: []ToolCallDelta{{Index: 0, ID: "first", Name: "calc_add"}}})
	acc.Add(StreamDelta{ToolCalls: []ToolCallDelta{{Index: 0, ID: "second"}}})

	if got := acc.Response().ToolCalls[0].ID; got != "first" {
		t.Errorf("ID = %q, want first", got)
	}
}

func TestStreamAccumulatorOrdersByIndex(t *testing.T) {
	var acc StreamAccumulator
	acc.Add(StreamDelta{ToolCalls: []ToolCallDelta{
		{Index: 1, ID: "b", Name: "calc_minus", Arguments: "{}"},
		{Index: 0, ID: "a", Name: "calc_add", Arguments: "{}"},
	}})
	acc.Add(StreamDelta{Content: "he"})
	acc.Add(StreamDelta{Content: "llo", Usage: &TokenUsage{PromptTokens: 7}})

	resp := acc.Response()
	if resp.ToolCalls[0].ID != "a" || resp.ToolCalls[1].ID != "b" {
		t.Errorf("unexpected order: %+v", resp.ToolCalls)
	}
	if resp.Content != "hello" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage == nil || resp.Usage.PromptTokens != 7 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.WantsTools() {
		t.Error("no finish reason means no tool round")
	}
}

func sseServer(t *testing.T, chunks []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["stream"] != true {
			t.Errorf("expected stream request, got %v", req["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIStreamWithToolCalls(t *testing.T) {
	chunks := []string{
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "}}]}`,
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"check."}}]}`,
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calc_add","arguments":""}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"a\":"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"2,\"b\":3}"}}]}}]}`,
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
		`{"id":"1","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":120,"completion_tokens":9,"total_tokens":129,"prompt_tokens_details":{"cached_tokens":100}}}`,
	}
	srv := sseServer(t, chunks)

	provider := NewOpenAICompatibleProvider("openai", srv.URL+"/v1", "sk-test", "m", 100, 0.7)
	client := NewClient(provider)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var streamed strings.Builder
	resp, err := client.Stream(ctx, []ChatMessage{UserMessage("add 2 and 3")}, []ToolDefinition{
		{Name: "calc_add", Description: "add", Parameters: map[string]interface{}{"type": "object"}},
	}, func(s string) { streamed.WriteString(s) })
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	if streamed.String() != "Let me check." {
		t.Errorf("streamed content = %q", streamed.String())
	}
	if !resp.WantsTools() {
		t.Fatalf("expected tool calls, got finish %q", resp.FinishReason)
	}
	want := ToolCall{ID: "call_1", Name: "calc_add", Arguments: `{"a":2,"b":3}`}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0] != want {
		t.Errorf("ToolCalls = %+v", resp.ToolCalls)
	}
	if resp.Usage == nil {
		t.Fatal("expected usage")
	}
	if resp.Usage.PromptTokens != 120 || resp.Usage.PromptCacheHitTokens != 100 || resp.Usage.PromptCacheMissTokens != 20 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestEmitResponseReplaysToolCalls(t *testing.T) {
	deltas := make(chan StreamDelta, 1)
	in := LLMResponse{
		Content:      "ok",
		ToolCalls:    []ToolCall{{ID: "x", Name: "greet_hello", Arguments: "{}"}},
		FinishReason: FinishToolCalls,
	}
	if err := emitResponse(context.Background(), in, deltas); err != nil {
		t.Fatal(err)
	}
	close(deltas)

	var acc StreamAccumulator
	for d := range deltas {
		acc.Add(d)
	}
	out := acc.Response()
	if out.Content != "ok" || len(out.ToolCalls) != 1 || out.ToolCalls[0] != in.ToolCalls[0] || out.FinishReason != FinishToolCalls {
		t.Errorf("got %+v", out)
	}
}

func TestConvertToAnthropicMessagesGroupsToolResults(t *testing.T) {
	msgs := []ChatMessage{
		SystemMessage("persona"),
		SystemMessage("summary"),
		UserMessage("hi"),
		ToolCallsMessage("", []ToolCall{{ID: "a", Name: "calc_add", Arguments: `{"a":1,"b":2}`}, {ID: "b", Name: "greet_hello", Arguments: ""}}),
		ToolMessage("a", "3"),
		ToolMessage("b", "hello"),
		AssistantMessage("done"),
	}

	out, system := convertToAnthropicMessages(msgs)
	if system != "persona\n\nsummary" {
		t.Errorf("system = %q", system)
	}
	// user, assistant(tool_use), user(tool results), assistant
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	if len(out[2].Content) != 2 {
		t.Errorf("expected grouped tool results, got %d blocks", len(out[2].Content))
	}
}

func TestConvertToGeminiMessagesResolvesFunctionNames(t *testing.T) {
	msgs := []ChatMessage{
		SystemMessage("persona"),
		UserMessage("hi"),
		ToolCallsMessage("", []ToolCall{{ID: "call_1", Name: "calc_add", Arguments: `{"a":1,"b":2}`}}),
		ToolMessage("call_1", "3"),
	}

	contents, system := convertToGeminiMessages(msgs)
	if system != "persona" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	resp := contents[2].Parts[0].FunctionResponse
	if resp == nil || resp.Name != "calc_add" || resp.ID != "call_1" {
		t.Errorf("function response = %+v", resp)
	}
	if resp.Response["result"] != "3" {
		t.Errorf("response payload = %v", resp.Response)
	}
}
