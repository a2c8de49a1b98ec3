// Package llmcall records every LLM API call for traceability:
// provider, model, token usage, latency, and outcome.
package llmcall

import (
	"time"

	"github.com/lectern-dev/lectern/internal/providers"
)

// Purposes distinguish why a call was made.
const (
	PurposeAnalysis       = "analysis"
	PurposeAnalysisRepair = "analysis_repair"
)

// Call represents a recorded LLM API call.
type Call struct {
	// Request correlation
	RequestID string `json:"request_id"`
	Purpose   string `json:"purpose"`
	BookID    string `json:"book_id,omitempty"`

	// Model info
	Provider string `json:"provider"`
	Model    string `json:"model"`

	// Token usage and timing
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	DurationMs       int `json:"duration_ms"`

	// Status
	Success      bool   `json:"success"`
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	Purpose string
	BookID  string
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		RequestID:        result.RequestID,
		Purpose:          opts.Purpose,
		BookID:           opts.BookID,
		Provider:         result.Provider,
		Model:            result.ModelUsed,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens,
		DurationMs:       int(result.ExecutionTime.Milliseconds()),
		Success:          result.Success,
		CreatedAt:        time.Now().UTC(),
	}

	if !result.Success {
		call.ErrorType = result.ErrorType
		call.ErrorMessage = result.ErrorMessage
	}

	return call
}

// ToMap converts the Call to a map for DefraDB insertion.
func (c *Call) ToMap() map[string]any {
	m := map[string]any{
		"request_id":        c.RequestID,
		"purpose":           c.Purpose,
		"provider":          c.Provider,
		"model":             c.Model,
		"prompt_tokens":     c.PromptTokens,
		"completion_tokens": c.CompletionTokens,
		"total_tokens":      c.TotalTokens,
		"duration_ms":       c.DurationMs,
		"success":           c.Success,
		"created_at":        c.CreatedAt.Format(time.RFC3339),
	}

	if c.BookID != "" {
		m["book_id"] = c.BookID
	}
	if c.ErrorType != "" {
		m["error_type"] = c.ErrorType
	}
	if c.ErrorMessage != "" {
		m["error_message"] = c.ErrorMessage
	}

	return m
}
