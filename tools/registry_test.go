package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestBuiltinsCatalog(t *testing.T) {
	r, err := WithBuiltins()
	if err != nil {
		t.Fatal(err)
	}

	infos, err := r.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	if got := strings.Join(names, ","); got != "calc_add,calc_minus,greet_hello,web_fetch" {
		t.Errorf("names = %s", got)
	}

	schema := infos[0].InputSchema
	required, _ := schema["required"].([]string)
	if len(required) != 2 {
		t.Errorf("calc_add required = %v", schema["required"])
	}
	props := schema["properties"].(map[string]interface{})
	a := props["a"].(map[string]interface{})
	if a["minimum"] != float64(1) || a["maximum"] != float64(100) {
		t.Errorf("bounds = %v", a)
	}
}

func TestRegistryRejectsUnqualifiedName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(namedTool("plain"))
	if !errors.Is(err, ErrMalformedToolName) {
		t.Fatalf("err = %v", err)
	}
	if err := r.Register(namedTool("x_y")); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(namedTool("x_y")); err == nil {
		t.Error("duplicate registration should fail")
	}
}

func TestCalcTools(t *testing.T) {
	r, _ := WithBuiltins()
	ctx := context.Background()

	tests := []struct {
		tool    string
		args    map[string]interface{}
		want    string
		wantErr string
	}{
		{"calc_add", map[string]interface{}{"a": 2, "b": 3}, "5", ""},
		{"calc_minus", map[string]interface{}{"a": 10, "b": 4}, "6", ""},
		{"calc_add", map[string]interface{}{"a": 0, "b": 3}, "", "out of range"},
		{"calc_add", map[string]interface{}{"a": 1}, "", "required"},
		{"greet_hello", map[string]interface{}{}, "Hello, world!", ""},
		{"greet_hello", map[string]interface{}{"name": "Ada"}, "Hello, Ada!", ""},
		{"calc_times", map[string]interface{}{}, "", "not found"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.tool, tt.args), func(t *testing.T) {
			got, err := r.CallTool(ctx, tt.tool, tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, strings.Repeat("x", 50))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tool := NewFetchTool(5 * time.Second).WithLimit(10)
	ctx := context.Background()

	res, err := tool.Execute(ctx, json.RawMessage(`{"url":"`+srv.URL+`/ok"}`))
	if err != nil || !res.Success() {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if !strings.HasSuffix(res.Output, "xxxxxxxxxx\n[truncated]") {
		t.Errorf("output = %q", res.Output)
	}

	res, _ = tool.Execute(ctx, json.RawMessage(`{"url":"`+srv.URL+`/missing"}`))
	if res.Success() {
		t.Fatal("expected 404 failure")
	}
	var permanent *permanentError
	if !errors.As(res.Error, &permanent) {
		t.Errorf("4xx should be permanent: %v", res.Error)
	}

	if err := tool.Validate(json.RawMessage(`{"url":"ftp://example.com"}`)); err == nil {
		t.Error("non-http scheme should fail validation")
	}
	limited := NewFetchTool(time.Second).WithAllowedDomains([]string{"example.com"})
	if err := limited.Validate(json.RawMessage(`{"url":"https://evil.com/x"}`)); err == nil {
		t.Error("domain outside allowlist should fail validation")
	}
	if err := limited.Validate(json.RawMessage(`{"url":"https://api.example.com/x"}`)); err != nil {
		t.Errorf("subdomain should pass: %v", err)
	}
}

type countingTool struct {
	BaseTool
	name     string
	calls    atomic.Int32
	failWith error
}

func namedTool(name string) *countingTool { return &countingTool{name: name} }

func (c *countingTool) Metadata() ToolMetadata { return ToolMetadata{Name: c.name} }

func (c *countingTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	c.calls.Add(1)
	if c.failWith != nil {
		return FailureResult(c.failWith), nil
	}
	return SuccessResult("ok"), nil
}

func TestExecutorRetries(t *testing.T) {
	e := NewExecutor(ToolConfig{MaxAttempts: 2})
	e.backoff = func(uint32) time.Duration { return 0 }

	flaky := &countingTool{name: "x_flaky", failWith: errors.New("connection reset")}
	res, err := e.Execute(context.Background(), flaky, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Success() || flaky.calls.Load() != 2 {
		t.Errorf("success=%v calls=%d", res.Success(), flaky.calls.Load())
	}
	if !strings.Contains(res.Error.Error(), "x_flaky") || !strings.Contains(res.Error.Error(), "2 attempts") {
		t.Errorf("error = %v", res.Error)
	}

	permanent := &countingTool{name: "x_perm", failWith: Permanent(errors.New("bad request"))}
	res, _ = e.Execute(context.Background(), permanent, nil)
	if res.Success() || permanent.calls.Load() != 1 {
		t.Errorf("permanent failure retried: calls=%d", permanent.calls.Load())
	}
	if !IsPermanent(res.Error) {
		t.Errorf("expected permanent error, got %v", res.Error)
	}
}

// hangingTool blocks until its context ends, then succeeds from the
// second attempt on.
type hangingTool struct {
	BaseTool
	calls atomic.Int32
}

func (h *hangingTool) Metadata() ToolMetadata { return ToolMetadata{Name: "x_hang"} }

func (h *hangingTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	if h.calls.Add(1) > 1 {
		return SuccessResult("done"), nil
	}
	<-ctx.Done()
	return ToolResult{}, ctx.Err()
}

func TestExecutorAttemptDeadline(t *testing.T) {
	e := NewExecutor(ToolConfig{AttemptTimeout: 20 * time.Millisecond, MaxAttempts: 2})
	e.backoff = func(uint32) time.Duration { return 0 }

	tool := &hangingTool{}
	res, err := e.Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success() || res.Output != "done" || tool.calls.Load() != 2 {
		t.Errorf("result = %+v, calls = %d", res, tool.calls.Load())
	}
}

func TestExecutorStopsOnCancel(t *testing.T) {
	e := NewExecutor(ToolConfig{MaxAttempts: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	tool := &hangingTool{}
	if _, err := e.Execute(ctx, tool, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if tool.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", tool.calls.Load())
	}
}

func TestExponentialBackoff(t *testing.T) {
	if d := exponentialBackoff(1); d != 200*time.Millisecond {
		t.Errorf("attempt 1 = %s", d)
	}
	if d := exponentialBackoff(10); d != 5*time.Second {
		t.Errorf("attempt 10 = %s", d)
	}
}

func TestMultiSourceRoutes(t *testing.T) {
	local, _ := WithBuiltins()
	remote := &stubSource{
		infos: []ToolInfo{{Name: "weather_today"}},
		call: func(ctx context.Context, name string, args map[string]interface{}) (string, error) {
			return "sunny", nil
		},
	}
	multi := Combine(local, remote)
	ctx := context.Background()

	infos, err := multi.ListTools(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 5 {
		t.Errorf("catalog size = %d", len(infos))
	}

	if out, err := multi.CallTool(ctx, "weather_today", nil); err != nil || out != "sunny" {
		t.Errorf("weather_today = %q, %v", out, err)
	}
	if out, err := multi.CallTool(ctx, "calc_add", map[string]interface{}{"a": 1, "b": 1}); err != nil || out != "2" {
		t.Errorf("calc_add = %q, %v", out, err)
	}
	if _, err := multi.CallTool(ctx, "nope_x", nil); err == nil {
		t.Error("unknown tool should fail")
	}

	dup := Combine(local, local)
	if _, err := dup.ListTools(ctx); err == nil {
		t.Error("duplicate names should fail")
	}
}
