package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	OpenRouterName    = "openrouter"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"

	openRouterDefaultModel = "anthropic/claude-3.5-sonnet"
)

// OpenRouterConfig configures the OpenRouter client.
type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
	RPS          float64       // requests per second budget (default 150)
	MaxRetries   int           // attempts per request (default 3)
	RetryDelay   time.Duration // base backoff between attempts (default 1s)
}

// OpenRouterClient implements LLMClient against the OpenRouter API.
type OpenRouterClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	hc           *http.Client

	rps        float64
	maxRetries int
	retryDelay time.Duration
}

var _ LLMClient = (*OpenRouterClient)(nil)

// NewOpenRouterClient creates a client, filling config defaults.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openRouterDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPS == 0 {
		cfg.RPS = 150
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	return &OpenRouterClient{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
		hc:           &http.Client{Timeout: cfg.Timeout},
		rps:          cfg.RPS,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}
}

// Name returns the provider identifier.
func (c *OpenRouterClient) Name() string {
	return OpenRouterName
}

// Chat sends a chat completion request and shapes the outcome into a
// ChatResult for call recording, even on failure.
func (c *OpenRouterClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	result := &ChatResult{
		RequestID: req.RequestID,
		Provider:  OpenRouterName,
		Attempts:  1,
	}
	if result.RequestID == "" {
		result.RequestID = uuid.New().String()
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	orResp, err := c.send(ctx, payload)
	if err != nil {
		return fail(result, start, "http_error", err)
	}
	if len(orResp.Choices) == 0 {
		return fail(result, start, "empty_response", fmt.Errorf("no choices in response"))
	}

	content, err := messageContent(orResp.Choices[0].Message.Content)
	if err != nil {
		return fail(result, start, "content_marshal_error", err)
	}

	result.Success = true
	result.Content = content
	result.ModelUsed = orResp.Model
	result.PromptTokens = orResp.Usage.PromptTokens
	result.CompletionTokens = orResp.Usage.CompletionTokens
	result.TotalTokens = orResp.Usage.TotalTokens
	result.ExecutionTime = time.Since(start)

	// When structured output was requested, surface the parsed document.
	if req.ResponseFormat != nil && content != "" {
		var parsed json.RawMessage
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			result.Success = false
			result.ErrorType = "json_parse"
			result.ErrorMessage = fmt.Sprintf("failed to parse JSON response: %v", err)
		} else {
			result.ParsedJSON = parsed
		}
	}

	return result, nil
}

func fail(result *ChatResult, start time.Time, kind string, err error) (*ChatResult, error) {
	result.Success = false
	result.ErrorType = kind
	result.ErrorMessage = err.Error()
	result.ExecutionTime = time.Since(start)
	return result, err
}

func (c *OpenRouterClient) buildPayload(req *ChatRequest) (*orRequest, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	payload := &orRequest{
		Model:       model,
		Messages:    make([]orMessage, len(req.Messages)),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	for i, m := range req.Messages {
		payload.Messages[i] = orMessage{Role: m.Role, Content: m.Content}
	}

	if req.ResponseFormat != nil {
		rf, err := adaptedResponseFormat(model, req.ResponseFormat)
		if err != nil {
			return nil, err
		}
		payload.ResponseFormat = rf
	}
	return payload, nil
}

// send posts the payload, retrying transient failures. Retried requests
// get a nonce appended to the last user message: OpenRouter's edge cache
// can pin a 413/422 to a request body, and the nonce forces a miss.
func (c *OpenRouterClient) send(ctx context.Context, payload *orRequest) (*orResponse, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 0 {
			appendNonce(payload, attempt)
		}

		resp, retryable, err := c.post(ctx, payload)
		if err == nil {
			return resp, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.backoff(ctx, attempt)
	}
	return nil, fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// post performs one attempt. The bool reports whether the failure is
// worth retrying.
func (c *OpenRouterClient) post(ctx context.Context, payload *orRequest) (*orResponse, bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/lectern-dev/lectern")
	req.Header.Set("X-Title", "Lectern")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("OpenRouter error (status %d): %s", resp.StatusCode, string(respBody))
		return nil, retryableStatus(resp.StatusCode), err
	}

	var orResp orResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &orResp, false, nil
}

// 413 and 422 are retried because they are usually cache artifacts, not
// genuine payload problems; see send.
func retryableStatus(code int) bool {
	return code == http.StatusRequestEntityTooLarge ||
		code == http.StatusUnprocessableEntity ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

func appendNonce(payload *orRequest, attempt int) {
	for i := len(payload.Messages) - 1; i >= 0; i-- {
		if payload.Messages[i].Role == "user" {
			nonce := uuid.New().String()[:16]
			payload.Messages[i].Content += fmt.Sprintf("\n<!-- retry_%d_id: %s -->", attempt, nonce)
			return
		}
	}
}

// backoff sleeps with exponential growth and jitter, capped at 10s.
func (c *OpenRouterClient) backoff(ctx context.Context, attempt int) {
	delay := c.retryDelay * time.Duration(1<<attempt)
	if delay > 10*time.Second {
		delay = 10 * time.Second
	}
	jittered := time.Duration(float64(delay) * (0.8 + 0.5*float64(time.Now().UnixNano()%1000)/1000))

	select {
	case <-ctx.Done():
	case <-time.After(jittered):
	}
}

// messageContent flattens a choice's content field, which the API may
// return as a string or a structured value.
func messageContent(v any) (string, error) {
	switch content := v.(type) {
	case nil:
		return "", nil
	case string:
		return content, nil
	default:
		b, err := json.Marshal(content)
		if err != nil {
			return "", fmt.Errorf("failed to marshal content: %w", err)
		}
		return string(b), nil
	}
}

// OpenRouter wire types.

type orRequest struct {
	Model          string            `json:"model"`
	Messages       []orMessage       `json:"messages"`
	Temperature    float64           `json:"temperature,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat *orResponseFormat `json:"response_format,omitempty"`
}

type orMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type orResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type orResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
