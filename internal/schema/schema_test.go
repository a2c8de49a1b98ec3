package schema

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/lectern-dev/lectern/internal/defra"
)

func TestAll_CollectionsInDependencyOrder(t *testing.T) {
	schemas, err := All()
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}

	// Book must come before Analysis, which references it by book_id.
	wantOrder := []string{"Book", "Analysis", "LLMCall"}
	if len(schemas) != len(wantOrder) {
		t.Fatalf("All() returned %d schemas, want %d", len(schemas), len(wantOrder))
	}
	for i, name := range wantOrder {
		if schemas[i].Name != name {
			t.Errorf("schemas[%d].Name = %s, want %s", i, schemas[i].Name, name)
		}
		if !strings.Contains(schemas[i].SDL, "type "+name) {
			t.Errorf("%s SDL missing 'type %s' declaration", name, name)
		}
	}
}

func TestGet(t *testing.T) {
	s, err := Get("Analysis")
	if err != nil {
		t.Fatalf("Get(Analysis) error = %v", err)
	}
	if s.Name != "Analysis" || s.SDL == "" {
		t.Errorf("Get(Analysis) = %+v", s)
	}

	if _, err := Get("Bookshelf"); err == nil {
		t.Error("expected error for unknown schema name")
	}
}

func TestInitialize(t *testing.T) {
	t.Run("registers every collection", func(t *testing.T) {
		var posts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v0/schema" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			posts.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		if err := Initialize(context.Background(), defra.NewClient(srv.URL), slog.Default()); err != nil {
			t.Fatalf("Initialize() error = %v", err)
		}
		if got := posts.Load(); got != 3 {
			t.Errorf("schema POSTs = %d, want 3", got)
		}
	})

	t.Run("idempotent against existing collections", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("collection already exists. Name: Book"))
		}))
		defer srv.Close()

		if err := Initialize(context.Background(), defra.NewClient(srv.URL), slog.Default()); err != nil {
			t.Errorf("Initialize() on existing collections = %v, want nil", err)
		}
	})

	t.Run("surfaces real schema errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte("invalid schema syntax"))
		}))
		defer srv.Close()

		if err := Initialize(context.Background(), defra.NewClient(srv.URL), slog.Default()); err == nil {
			t.Error("Initialize() should fail on a syntax error")
		}
	})
}

func TestLowercase(t *testing.T) {
	for input, want := range map[string]string{
		"Book":          "book",
		"LLMCall":       "llmcall",
		"already_lower": "already_lower",
		"":              "",
	} {
		if got := lowercase(input); got != want {
			t.Errorf("lowercase(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"collection exists", fmt.Errorf("collection already exists. Name: Book"), true},
		{"wrapped exists", fmt.Errorf("failed to add schema: %w", fmt.Errorf("schema already exists")), true},
		{"unrelated", fmt.Errorf("invalid syntax"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAlreadyExistsError(tt.err); got != tt.want {
				t.Errorf("isAlreadyExistsError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
