package defra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Client talks to a DefraDB node over its HTTP API. Reads and writes go
// through the GraphQL endpoint; schema registration and health checks
// use their dedicated routes.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient creates a client for the node at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
}

// GQLRequest is the GraphQL request wire format.
type GQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GQLResponse is the GraphQL response wire format.
type GQLResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GQLError     `json:"errors,omitempty"`
}

// GQLError is a single GraphQL error entry.
type GQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Error returns the first error message, or "" when the response is clean.
func (r *GQLResponse) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// HealthCheck pings the node's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health-check", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// AddSchema registers a GraphQL SDL document with the node.
func (c *Client) AddSchema(ctx context.Context, sdl string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v0/schema", strings.NewReader(sdl))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("schema error (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Execute posts a GraphQL document with optional variables and decodes
// the response envelope. GraphQL-level errors are left in the response
// for the caller; only transport and server failures return an error.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*GQLResponse, error) {
	payload, err := json.Marshal(GQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v0/graphql", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("defra server error (status %d): %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("defra returned empty response (status %d)", resp.StatusCode)
	}

	var gqlResp GQLResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, string(body))
	}
	return &gqlResp, nil
}

// Query executes a read-only GraphQL document without variables.
func (c *Client) Query(ctx context.Context, query string) (*GQLResponse, error) {
	return c.Execute(ctx, query, nil)
}

// DefraDB exposes collection writes as create_<C>, update_<C>,
// delete_<C> and upsert_<C> mutation fields, each returning the affected
// documents. The helpers below build those mutations from Go maps.

// Create inserts a document and returns its stable document ID.
func (c *Client) Create(ctx context.Context, collection string, doc map[string]any) (string, error) {
	input, err := gqlObject(doc)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	mutation := fmt.Sprintf(`mutation { create_%s(input: %s) { _docID } }`, collection, input)

	out, err := c.mutate(ctx, mutation, "create_"+collection)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	docID, _ := out["_docID"].(string)
	if docID == "" {
		return "", fmt.Errorf("create %s: no document in response", collection)
	}
	return docID, nil
}

// Update applies a partial document to an existing docID.
func (c *Client) Update(ctx context.Context, collection, docID string, patch map[string]any) error {
	input, err := gqlObject(patch)
	if err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	mutation := fmt.Sprintf(`mutation { update_%s(docID: %q, input: %s) { _docID } }`, collection, docID, input)

	// An empty result set means the patch was a no-op, which is fine.
	if _, err := c.mutate(ctx, mutation, "update_"+collection); err != nil {
		return fmt.Errorf("update %s: %w", collection, err)
	}
	return nil
}

// Delete removes a document by docID.
func (c *Client) Delete(ctx context.Context, collection, docID string) error {
	mutation := fmt.Sprintf(`mutation { delete_%s(docID: %q) { _docID } }`, collection, docID)
	if _, err := c.mutate(ctx, mutation, "delete_"+collection); err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	return nil
}

// Upsert updates the document matching filter with update, or inserts
// create when nothing matches. The filter must match at most one
// document; DefraDB rejects multi-document matches, which serializes
// concurrent writers on the same key.
func (c *Client) Upsert(ctx context.Context, collection string, filter, create, update map[string]any) (string, error) {
	filterGQL, err := gqlObject(filter)
	if err != nil {
		return "", fmt.Errorf("upsert %s filter: %w", collection, err)
	}
	createGQL, err := gqlObject(create)
	if err != nil {
		return "", fmt.Errorf("upsert %s create: %w", collection, err)
	}
	updateGQL, err := gqlObject(update)
	if err != nil {
		return "", fmt.Errorf("upsert %s update: %w", collection, err)
	}

	mutation := fmt.Sprintf(`mutation { upsert_%s(filter: %s, create: %s, update: %s) { _docID } }`,
		collection, filterGQL, createGQL, updateGQL)

	out, err := c.mutate(ctx, mutation, "upsert_"+collection)
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", collection, err)
	}
	docID, _ := out["_docID"].(string)
	if docID == "" {
		return "", fmt.Errorf("upsert %s: no document in response", collection)
	}
	return docID, nil
}

// mutate runs a mutation and returns the first affected document, or nil
// when the result set is empty.
func (c *Client) mutate(ctx context.Context, mutation, field string) (map[string]any, error) {
	resp, err := c.Execute(ctx, mutation, nil)
	if err != nil {
		return nil, err
	}
	if msg := resp.Error(); msg != "" {
		return nil, fmt.Errorf("%s", msg)
	}
	docs, _ := resp.Data[field].([]any)
	if len(docs) == 0 {
		return nil, nil
	}
	doc, ok := docs[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected document type %T", docs[0])
	}
	return doc, nil
}

// gqlObject renders a map as a GraphQL input object literal with keys in
// sorted order, so mutations are deterministic.
func gqlObject(fields map[string]any) (string, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		lit, err := gqlLiteral(fields[k])
		if err != nil {
			return "", fmt.Errorf("field %q: %w", k, err)
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(lit)
	}
	b.WriteByte('}')
	return b.String(), nil
}

// gqlLiteral renders a Go value as a GraphQL literal. Strings use JSON
// encoding: Go's %q emits escapes like \a and \xHH that GraphQL does not
// accept, while JSON's escape set is a subset of GraphQL's.
func gqlLiteral(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case bool:
		return fmt.Sprintf("%t", val), nil
	case int, int32, int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case map[string]any:
		return gqlObject(val)
	case []string:
		items := make([]string, len(val))
		for i, s := range val {
			lit, err := gqlLiteral(s)
			if err != nil {
				return "", err
			}
			items[i] = lit
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			lit, err := gqlLiteral(item)
			if err != nil {
				return "", err
			}
			items[i] = lit
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
