package defra

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeNode is a stand-in DefraDB node that records every GraphQL
// document it receives and answers from a canned response.
type fakeNode struct {
	srv *httptest.Server

	mu      sync.Mutex
	queries []string

	respond func(req GQLRequest) GQLResponse
}

func newFakeNode(t *testing.T, respond func(req GQLRequest) GQLResponse) *fakeNode {
	t.Helper()
	n := &fakeNode{respond: respond}
	n.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health-check":
			w.WriteHeader(http.StatusOK)
		case "/api/v0/schema":
			w.WriteHeader(http.StatusOK)
		case "/api/v0/graphql":
			var req GQLRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad graphql request body: %v", err)
			}
			n.mu.Lock()
			n.queries = append(n.queries, req.Query)
			n.mu.Unlock()

			w.Header().Set("Content-Type", "application/json")
			resp := GQLResponse{Data: map[string]any{}}
			if n.respond != nil {
				resp = n.respond(req)
			}
			json.NewEncoder(w).Encode(resp)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	t.Cleanup(n.srv.Close)
	return n
}

func (n *fakeNode) lastQuery() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queries) == 0 {
		return ""
	}
	return n.queries[len(n.queries)-1]
}

func TestClient_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"healthy", http.StatusOK, false},
		{"server_error", http.StatusInternalServerError, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health-check" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			err := NewClient(srv.URL).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Execute(t *testing.T) {
	t.Run("catalog query", func(t *testing.T) {
		node := newFakeNode(t, func(req GQLRequest) GQLResponse {
			return GQLResponse{Data: map[string]any{
				"Book": []any{
					map[string]any{"_docID": "bae-1", "title": "Walden"},
				},
			}}
		})

		resp, err := NewClient(node.srv.URL).Execute(context.Background(), `{ Book { _docID title } }`, nil)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if resp.Error() != "" {
			t.Errorf("unexpected GraphQL error: %s", resp.Error())
		}
		if _, ok := resp.Data["Book"]; !ok {
			t.Error("expected Book rows in response data")
		}
	})

	t.Run("variables forwarded", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req GQLRequest
			json.NewDecoder(r.Body).Decode(&req)
			got = req.Variables
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(GQLResponse{Data: map[string]any{"Book": []any{}}})
		}))
		defer srv.Close()

		vars := map[string]any{"v0": "bae-42"}
		_, err := NewClient(srv.URL).Execute(context.Background(),
			`query($v0: String) { Book(filter: {_docID: {_eq: $v0}}) { title } }`, vars)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if got["v0"] != "bae-42" {
			t.Errorf("variables not forwarded: %v", got)
		}
	})

	t.Run("graphql error surfaced in response", func(t *testing.T) {
		node := newFakeNode(t, func(req GQLRequest) GQLResponse {
			return GQLResponse{Errors: []GQLError{{Message: "field not found"}}}
		})

		resp, err := NewClient(node.srv.URL).Execute(context.Background(), `{ Nope }`, nil)
		if err != nil {
			t.Fatalf("Execute() transport error: %v", err)
		}
		if resp.Error() != "field not found" {
			t.Errorf("Error() = %q, want %q", resp.Error(), "field not found")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.Write([]byte(`{"data": {}}`))
		}))
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := NewClient(srv.URL).Execute(ctx, `{ Book { title } }`, nil); err == nil {
			t.Error("expected error from cancelled context")
		}
	})
}

func TestClient_AddSchema(t *testing.T) {
	t.Run("posts SDL as text", func(t *testing.T) {
		var gotSDL, gotCT string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v0/schema" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			gotCT = r.Header.Get("Content-Type")
			body := make([]byte, r.ContentLength)
			r.Body.Read(body)
			gotSDL = string(body)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		sdl := "type Book { title: String author: String page_count: Int }"
		if err := NewClient(srv.URL).AddSchema(context.Background(), sdl); err != nil {
			t.Fatalf("AddSchema() error = %v", err)
		}
		if gotSDL != sdl {
			t.Errorf("SDL mismatch: got %q", gotSDL)
		}
		if gotCT != "text/plain" {
			t.Errorf("content-type = %q, want text/plain", gotCT)
		}
	})

	t.Run("rejects bad SDL", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("invalid schema syntax"))
		}))
		defer srv.Close()

		if err := NewClient(srv.URL).AddSchema(context.Background(), "type {"); err == nil {
			t.Error("expected error for invalid schema")
		}
	})
}

func TestClient_Create(t *testing.T) {
	node := newFakeNode(t, func(req GQLRequest) GQLResponse {
		return GQLResponse{Data: map[string]any{
			"create_Book": []any{map[string]any{"_docID": "bae-book-1"}},
		}}
	})

	docID, err := NewClient(node.srv.URL).Create(context.Background(), "Book", map[string]any{
		"title":      "The Sea-Wolf",
		"author":     "Jack London",
		"page_count": 320,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if docID != "bae-book-1" {
		t.Errorf("docID = %q, want bae-book-1", docID)
	}

	// Keys render in sorted order, so the mutation text is stable.
	q := node.lastQuery()
	want := `create_Book(input: {author: "Jack London", page_count: 320, title: "The Sea-Wolf"})`
	if !strings.Contains(q, want) {
		t.Errorf("mutation = %q, want it to contain %q", q, want)
	}
}

func TestClient_Update(t *testing.T) {
	t.Run("patch applied", func(t *testing.T) {
		node := newFakeNode(t, func(req GQLRequest) GQLResponse {
			return GQLResponse{Data: map[string]any{
				"update_Analysis": []any{map[string]any{"_docID": "bae-a1"}},
			}}
		})

		err := NewClient(node.srv.URL).Update(context.Background(), "Analysis", "bae-a1", map[string]any{
			"last_accessed_at": "2026-08-24T00:00:00Z",
		})
		if err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		if q := node.lastQuery(); !strings.Contains(q, `update_Analysis(docID: "bae-a1"`) {
			t.Errorf("mutation = %q", q)
		}
	})

	t.Run("empty result tolerated", func(t *testing.T) {
		node := newFakeNode(t, func(req GQLRequest) GQLResponse {
			return GQLResponse{Data: map[string]any{"update_Analysis": []any{}}}
		})

		err := NewClient(node.srv.URL).Update(context.Background(), "Analysis", "bae-a1", map[string]any{
			"confidence": 0.5,
		})
		if err != nil {
			t.Errorf("Update() with empty result = %v, want nil", err)
		}
	})

	t.Run("graphql error returned", func(t *testing.T) {
		node := newFakeNode(t, func(req GQLRequest) GQLResponse {
			return GQLResponse{Errors: []GQLError{{Message: "document not found"}}}
		})

		err := NewClient(node.srv.URL).Update(context.Background(), "Analysis", "bae-gone", map[string]any{
			"confidence": 0.5,
		})
		if err == nil || !strings.Contains(err.Error(), "document not found") {
			t.Errorf("Update() error = %v, want document not found", err)
		}
	})
}

func TestClient_Delete(t *testing.T) {
	node := newFakeNode(t, func(req GQLRequest) GQLResponse {
		return GQLResponse{Data: map[string]any{
			"delete_Analysis": []any{map[string]any{"_docID": "bae-a1"}},
		}}
	})

	if err := NewClient(node.srv.URL).Delete(context.Background(), "Analysis", "bae-a1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if q := node.lastQuery(); !strings.Contains(q, `delete_Analysis(docID: "bae-a1")`) {
		t.Errorf("mutation = %q", q)
	}
}

func TestClient_Upsert(t *testing.T) {
	node := newFakeNode(t, func(req GQLRequest) GQLResponse {
		return GQLResponse{Data: map[string]any{
			"upsert_Analysis": []any{map[string]any{"_docID": "bae-a1"}},
		}}
	})

	filter := map[string]any{"book_id": map[string]any{"_eq": "bae-book-1"}, "content_hash": map[string]any{"_eq": "ffee"}}
	create := map[string]any{"book_id": "bae-book-1", "content_hash": "ffee", "summary": "s"}
	update := map[string]any{"summary": "s"}

	docID, err := NewClient(node.srv.URL).Upsert(context.Background(), "Analysis", filter, create, update)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if docID != "bae-a1" {
		t.Errorf("docID = %q, want bae-a1", docID)
	}

	q := node.lastQuery()
	for _, frag := range []string{
		"upsert_Analysis(filter: ",
		`book_id: {_eq: "bae-book-1"}`,
		`content_hash: {_eq: "ffee"}`,
	} {
		if !strings.Contains(q, frag) {
			t.Errorf("mutation %q missing %q", q, frag)
		}
	}
}

func TestClient_BaseURLTrimmed(t *testing.T) {
	if c := NewClient("http://localhost:9181/"); c.baseURL != "http://localhost:9181" {
		t.Errorf("baseURL = %q, trailing slash not trimmed", c.baseURL)
	}
	if c := NewClient("http://localhost:9181"); c.baseURL != "http://localhost:9181" {
		t.Errorf("baseURL = %q, changed unexpectedly", c.baseURL)
	}
}

func TestGQLObject(t *testing.T) {
	tests := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{
			name:  "sorted keys",
			input: map[string]any{"title": "T", "author": "A", "page_count": 12},
			want:  `{author: "A", page_count: 12, title: "T"}`,
		},
		{
			name:  "string list",
			input: map[string]any{"keywords": []string{"whaling", "obsession"}},
			want:  `{keywords: ["whaling", "obsession"]}`,
		},
		{
			name:  "json escapes not go escapes",
			input: map[string]any{"summary": "line one\nline \"two\""},
			want:  `{summary: "line one\nline \"two\""}`,
		},
		{
			name:  "nested object",
			input: map[string]any{"book_id": map[string]any{"_eq": "bae-1"}},
			want:  `{book_id: {_eq: "bae-1"}}`,
		},
		{
			name:  "empty",
			input: map[string]any{},
			want:  `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gqlObject(tt.input)
			if err != nil {
				t.Fatalf("gqlObject() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("gqlObject() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestQueryBuilder_Build(t *testing.T) {
	t.Run("filters become variables", func(t *testing.T) {
		q, vars := NewQuery("Analysis").
			Filter("book_id", "bae-1").
			Filter("content_hash", "ffee").
			Fields("_docID", "summary").
			OrderBy("updated_at", "DESC").
			Limit(1).
			Build()

		for _, frag := range []string{
			"query($v0: String, $v1: String)",
			"book_id: {_eq: $v0}",
			"content_hash: {_eq: $v1}",
			"order: {updated_at: DESC}",
			"limit: 1",
			"{ _docID summary }",
		} {
			if !strings.Contains(q, frag) {
				t.Errorf("query %q missing %q", q, frag)
			}
		}
		if vars["v0"] != "bae-1" || vars["v1"] != "ffee" {
			t.Errorf("vars = %v", vars)
		}
	})

	t.Run("range filters and offset", func(t *testing.T) {
		q, vars := NewQuery("LLMCall").
			FilterGT("created_at", "2026-01-01T00:00:00Z").
			FilterLT("created_at", "2026-02-01T00:00:00Z").
			Limit(50).
			Offset(100).
			Build()

		for _, frag := range []string{
			"created_at: {_gt: $v0}",
			"created_at: {_lt: $v1}",
			"limit: 50",
			"offset: 100",
		} {
			if !strings.Contains(q, frag) {
				t.Errorf("query %q missing %q", q, frag)
			}
		}
		if len(vars) != 2 {
			t.Errorf("vars = %v, want 2 entries", vars)
		}
	})

	t.Run("no filters means no variable block", func(t *testing.T) {
		q, vars := NewQuery("Book").Fields("_docID", "title").Build()
		if strings.Contains(q, "query(") {
			t.Errorf("query %q has unexpected variable block", q)
		}
		if len(vars) != 0 {
			t.Errorf("vars = %v, want empty", vars)
		}
	})

	t.Run("int variable typed Int", func(t *testing.T) {
		q, _ := NewQuery("Book").Filter("page_count", 42).Build()
		if !strings.Contains(q, "$v0: Int") {
			t.Errorf("query %q missing Int variable definition", q)
		}
	})
}

func TestSafeQueryByDocID(t *testing.T) {
	node := newFakeNode(t, func(req GQLRequest) GQLResponse {
		if req.Variables["v0"] != "bae-book-1" {
			t.Errorf("docID not passed as variable: %v", req.Variables)
		}
		return GQLResponse{Data: map[string]any{
			"Book": []any{map[string]any{"_docID": "bae-book-1", "title": "Walden"}},
		}}
	})

	resp, err := SafeQueryByDocID(context.Background(), NewClient(node.srv.URL), "Book", "bae-book-1", "_docID", "title")
	if err != nil {
		t.Fatalf("SafeQueryByDocID() error = %v", err)
	}
	if resp.Error() != "" {
		t.Errorf("unexpected error: %s", resp.Error())
	}
	if !strings.Contains(node.lastQuery(), "_docID: {_eq: $v0}") {
		t.Errorf("query %q does not filter by _docID variable", node.lastQuery())
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"defra doc id", "bae-f7fd1d44-9d35-5b85-a2a8-2b6d6b7a9c1d", false},
		{"plain identifier", "book_42", false},
		{"empty", "", true},
		{"injection attempt", `bae-1") { _docID } } #`, true},
		{"too long", strings.Repeat("a", 501), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}
