package llmcall

import (
	"context"
	"fmt"
	"time"

	"github.com/lectern-dev/lectern/internal/defra"
)

// callFields are the fields fetched for every call query.
var callFields = []string{
	"request_id",
	"purpose",
	"book_id",
	"provider",
	"model",
	"prompt_tokens",
	"completion_tokens",
	"total_tokens",
	"duration_ms",
	"success",
	"error_type",
	"error_message",
	"created_at",
}

// Store provides access to LLM call records in DefraDB.
type Store struct {
	client *defra.Client
}

// NewStore creates a new LLMCall store.
func NewStore(client *defra.Client) *Store {
	return &Store{client: client}
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	BookID   string
	Purpose  string
	Provider string
	Model    string
	After    *time.Time
	Before   *time.Time
	Success  *bool
	Limit    int
	Offset   int
}

// Get retrieves a single LLM call by request ID, or nil when absent.
func (s *Store) Get(ctx context.Context, requestID string) (*Call, error) {
	resp, err := defra.SafeQuery(ctx, s.client, Collection, "request_id", requestID, callFields...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("graphql error: %s", msg)
	}

	calls, err := parseCalls(resp.Data)
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, nil
	}
	return &calls[0], nil
}

// List retrieves LLM calls matching the filter.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	q := defra.NewQuery(Collection).Fields(callFields...)

	if filter.BookID != "" {
		q.Filter("book_id", filter.BookID)
	}
	if filter.Purpose != "" {
		q.Filter("purpose", filter.Purpose)
	}
	if filter.Provider != "" {
		q.Filter("provider", filter.Provider)
	}
	if filter.Model != "" {
		q.Filter("model", filter.Model)
	}
	if filter.Success != nil {
		q.Filter("success", *filter.Success)
	}
	if filter.After != nil {
		q.FilterGT("created_at", filter.After.Format(time.RFC3339))
	}
	if filter.Before != nil {
		q.FilterLT("created_at", filter.Before.Format(time.RFC3339))
	}
	if filter.Limit > 0 {
		q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q.Offset(filter.Offset)
	}

	resp, err := q.Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("graphql error: %s", msg)
	}

	return parseCalls(resp.Data)
}

// CountByPurpose returns call counts grouped by purpose. DefraDB has no
// GROUP BY, so rows are aggregated client-side.
func (s *Store) CountByPurpose(ctx context.Context, bookID string) (map[string]int, error) {
	calls, err := s.List(ctx, QueryFilter{BookID: bookID})
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, c := range calls {
		counts[c.Purpose]++
	}
	return counts, nil
}

// parseCalls parses LLMCall entries from GraphQL response data.
func parseCalls(data map[string]any) ([]Call, error) {
	callData, ok := data[Collection]
	if !ok {
		return nil, nil
	}

	docs, ok := callData.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected LLMCall type: %T", callData)
	}

	calls := make([]Call, 0, len(docs))
	for _, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		calls = append(calls, callFromDoc(doc))
	}
	return calls, nil
}

func callFromDoc(doc map[string]any) Call {
	c := Call{
		RequestID:        str(doc, "request_id"),
		Purpose:          str(doc, "purpose"),
		BookID:           str(doc, "book_id"),
		Provider:         str(doc, "provider"),
		Model:            str(doc, "model"),
		PromptTokens:     num(doc, "prompt_tokens"),
		CompletionTokens: num(doc, "completion_tokens"),
		TotalTokens:      num(doc, "total_tokens"),
		DurationMs:       num(doc, "duration_ms"),
		ErrorType:        str(doc, "error_type"),
		ErrorMessage:     str(doc, "error_message"),
	}
	if v, ok := doc["success"].(bool); ok {
		c.Success = v
	}
	if ts := str(doc, "created_at"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			c.CreatedAt = t
		}
	}
	return c
}

func str(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func num(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
