// Security tests for LLM providers to ensure error messages don't leak API keys.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestAnthropicErrorNoAPIKeyLeak verifies Anthropic errors don't contain API keys
func TestAnthropicErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "sk-ant-REDACTED"
	provider := NewAnthropicProvider(testKey, "claude-sonnet-4-20250514", 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Chat(ctx, []ChatMessage{
		{Role: "user", Content: "test"},
	})

	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Anthropic error message leaked API key: %v", errStr)
	}

	if strings.Contains(errStr, "x-api-key:") || strings.Contains(errStr, "X-API-Key:") {
		t.Errorf("Anthropic error exposed API key header: %v", errStr)
	}
}

// TestGeminiErrorNoAPIKeyLeak verifies Gemini errors don't contain API keys
func TestGeminiErrorNoAPIKeyLeak(t *testing.T) {
	testKey := "test-invalid-key-12345xyz"
	provider := NewGeminiProvider(testKey, "gemini-2.5-flash", 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Chat(ctx, []ChatMessage{
		{Role: "user", Content: "test"},
	})

	if err == nil {
		t.Skip("Expected error with invalid API key, but got success - skipping leak test")
	}

	errStr := err.Error()
	if strings.Contains(errStr, testKey) {
		t.Errorf("Gemini error message leaked API key: %v", errStr)
	}

	// Gemini uses x-goog-api-key header
	if strings.Contains(errStr, "x-goog-api-key:") {
		t.Errorf("Gemini error exposed API key header: %v", errStr)
	}
}

// TestGeminiInitErrorPreserved verifies Gemini returns initialization errors
func TestGeminiInitErrorPreserved(t *testing.T) {
	// Use invalid key that should fail during client initialization
	provider := NewGeminiProvider("", "gemini-2.5-flash", 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := provider.Chat(ctx, []ChatMessage{
		{Role: "user", Content: "test"},
	})

	// Should return an error
	if err == nil {
		t.Error("Expected initialization error to be returned, got nil")
		return
	}

	// Error should indicate initialization failure
	errStr := err.Error()
	if !strings.Contains(errStr, "failed to initialize") {
		t.Errorf("Expected initialization error, got: %v", errStr)
	}
}

func unauthorizedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestOpenAICompatibleErrorNoAPIKeyLeak verifies OpenAI-compatible errors don't contain API keys
func TestOpenAICompatibleErrorNoAPIKeyLeak(t *testing.T) {
	srv := unauthorizedServer(t)
	testKey := "sk-test-invalid-key-12345xyz"

	providers := map[string]*OpenAIProvider{
		"openai":   NewOpenAICompatibleProvider("openai", srv.URL+"/v1", testKey, "gpt-4o", 100, 0.7),
		"deepseek": NewOpenAICompatibleProvider("deepseek", srv.URL+"/v1", testKey, "deepseek-chat", 100, 0.7),
	}

	for name, provider := range providers {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := provider.ChatWithTools(ctx, []ChatMessage{UserMessage("test")}, []ToolDefinition{
				{Name: "test_tool", Description: "A test tool", Parameters: map[string]interface{}{"type": "object"}},
			})
			if err == nil {
				t.Fatal("expected error from unauthorized endpoint")
			}
			if strings.Contains(err.Error(), testKey) {
				t.Errorf("error message leaked API key: %v", err)
			}
			if strings.Contains(err.Error(), "Authorization:") {
				t.Errorf("error exposed Authorization header: %v", err)
			}
		})
	}
}

// TestStreamErrorNoAPIKeyLeak verifies streaming errors don't leak API keys
func TestStreamErrorNoAPIKeyLeak(t *testing.T) {
	srv := unauthorizedServer(t)
	testKey := "sk-test-invalid-key-12345xyz"
	provider := NewOpenAICompatibleProvider("openai", srv.URL+"/v1", testKey, "gpt-4o", 100, 0.7)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	deltas := make(chan StreamDelta, 10)
	err := provider.StreamWithTools(ctx, []ChatMessage{UserMessage("test")}, nil, deltas)
	if err == nil {
		t.Fatal("expected error from unauthorized endpoint")
	}
	if strings.Contains(err.Error(), testKey) {
		t.Errorf("Stream error message leaked API key: %v", err)
	}
}
