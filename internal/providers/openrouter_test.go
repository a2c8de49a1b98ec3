package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func chatCompletion(model, content string) map[string]any {
	return map[string]any{
		"id":    "gen-1",
		"model": model,
		"choices": []map[string]any{
			{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     42,
			"completion_tokens": 7,
			"total_tokens":      49,
		},
	}
}

func TestOpenRouterClient_Chat(t *testing.T) {
	t.Run("summary request round trip", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}
			if title := r.Header.Get("X-Title"); title != "Lectern" {
				t.Errorf("X-Title = %q", title)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatCompletion("anthropic/claude-3.5-sonnet", "A study of obsession at sea."))
		}))
		defer srv.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: srv.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "Summarize Moby-Dick in one sentence."}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !result.Success {
			t.Error("Success = false, want true")
		}
		if result.Content != "A study of obsession at sea." {
			t.Errorf("Content = %q", result.Content)
		}
		if result.TotalTokens != 49 {
			t.Errorf("TotalTokens = %d, want 49", result.TotalTokens)
		}
		if result.RequestID == "" {
			t.Error("expected a generated RequestID")
		}
	})

	t.Run("structured output parsed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatCompletion("openai/gpt-4.1", `{"summary": "s", "confidence": 0.9}`))
		}))
		defer srv.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: srv.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages:       []Message{{Role: "user", Content: "analyze"}},
			ResponseFormat: &ResponseFormat{Type: "json_schema"},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.ParsedJSON == nil {
			t.Error("expected ParsedJSON to be set")
		}
	})

	t.Run("malformed structured output flagged", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatCompletion("openai/gpt-4.1", "not json at all"))
		}))
		defer srv.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: srv.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages:       []Message{{Role: "user", Content: "analyze"}},
			ResponseFormat: &ResponseFormat{Type: "json_schema"},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if result.Success {
			t.Error("Success = true for unparseable structured output")
		}
		if result.ErrorType != "json_parse" {
			t.Errorf("ErrorType = %q, want json_parse", result.ErrorType)
		}
	})

	t.Run("client error not retried", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"message": "bad request"}}`))
		}))
		defer srv.Close()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: srv.URL})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		if err == nil {
			t.Error("expected error for 400 response")
		}
		if result.Success {
			t.Error("Success = true on failure")
		}
		if result.ErrorType != "http_error" {
			t.Errorf("ErrorType = %q, want http_error", result.ErrorType)
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want 1", got)
		}
	})

	t.Run("server error retried", func(t *testing.T) {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatCompletion("m", "ok"))
		}))
		defer srv.Close()

		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:     "test-key",
			BaseURL:    srv.URL,
			RetryDelay: time.Millisecond,
		})
		result, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
		if !result.Success {
			t.Error("Success = false after successful retry")
		}
		if got := attempts.Load(); got != 2 {
			t.Errorf("attempts = %d, want 2", got)
		}
	})

	t.Run("retried request carries nonce", func(t *testing.T) {
		var attempts atomic.Int32
		var second orRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := attempts.Add(1)
			if n == 1 {
				w.WriteHeader(http.StatusUnprocessableEntity)
				return
			}
			json.NewDecoder(r.Body).Decode(&second)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(chatCompletion("m", "ok"))
		}))
		defer srv.Close()

		client := NewOpenRouterClient(OpenRouterConfig{
			APIKey:     "test-key",
			BaseURL:    srv.URL,
			RetryDelay: time.Millisecond,
		})
		if _, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{{Role: "user", Content: "analyze this book"}},
		}); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}

		if len(second.Messages) == 0 || !strings.Contains(second.Messages[0].Content, "retry_1_id") {
			t.Errorf("retried message missing nonce: %+v", second.Messages)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key", BaseURL: srv.URL})
		if _, err := client.Chat(ctx, &ChatRequest{
			Messages: []Message{{Role: "user", Content: "hi"}},
		}); err == nil {
			t.Error("expected error from cancelled context")
		}
	})
}

func TestOpenRouterClient_Defaults(t *testing.T) {
	client := NewOpenRouterClient(OpenRouterConfig{APIKey: "test-key"})

	if client.Name() != OpenRouterName {
		t.Errorf("Name() = %s, want %s", client.Name(), OpenRouterName)
	}
	if client.baseURL != OpenRouterBaseURL {
		t.Errorf("baseURL = %s, want %s", client.baseURL, OpenRouterBaseURL)
	}
	if client.defaultModel != openRouterDefaultModel {
		t.Errorf("defaultModel = %s", client.defaultModel)
	}
	if client.maxRetries != 3 {
		t.Errorf("maxRetries = %d, want 3", client.maxRetries)
	}
}

// TestOpenRouterIntegration runs a real call against the OpenRouter API.
// Requires OPENROUTER_API_KEY.
func TestOpenRouterIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENROUTER_API_KEY not set - skipping integration test")
	}

	client := NewOpenRouterClient(OpenRouterConfig{APIKey: apiKey})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := client.Chat(ctx, &ChatRequest{
		Model: "x-ai/grok-4.1-fast",
		Messages: []Message{
			{Role: "user", Content: "Say 'hello' and nothing else."},
		},
		MaxTokens:   10,
		Temperature: 0,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !result.Success {
		t.Errorf("Chat failed: %s", result.ErrorMessage)
	}
	if result.Content == "" {
		t.Error("expected non-empty content")
	}
	t.Logf("Response: %q", result.Content)
	t.Logf("Tokens: %d prompt, %d completion", result.PromptTokens, result.CompletionTokens)
}
