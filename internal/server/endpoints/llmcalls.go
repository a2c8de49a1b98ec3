package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/lectern-dev/lectern/internal/api"
	"github.com/lectern-dev/lectern/internal/llmcall"
	"github.com/lectern-dev/lectern/internal/svcctx"
)

// LLMCallsResponse contains a list of LLM calls.
type LLMCallsResponse struct {
	Calls []llmcall.Call `json:"calls"`
	Total int            `json:"total"`
}

// LLMCallCountsResponse contains per-purpose call counts.
type LLMCallCountsResponse struct {
	Counts map[string]int `json:"counts"`
}

// ListLLMCallsEndpoint handles GET /api/llmcalls.
type ListLLMCallsEndpoint struct{}

var _ api.Endpoint = (*ListLLMCallsEndpoint)(nil)

func (e *ListLLMCallsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls", e.handler
}

func (e *ListLLMCallsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List LLM calls
//	@Description	Get LLM call history with optional filters
//	@Tags			llmcalls
//	@Produce		json
//	@Param			book_id		query		string	false	"Filter by book ID"
//	@Param			purpose		query		string	false	"Filter by purpose"
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			model		query		string	false	"Filter by model"
//	@Param			success		query		bool	false	"Filter by success status (true or false)"
//	@Param			limit		query		int		false	"Max results (default 100)"
//	@Param			offset		query		int		false	"Result offset"
//	@Param			after		query		string	false	"Filter calls after this RFC3339 timestamp"
//	@Param			before		query		string	false	"Filter calls before this RFC3339 timestamp"
//	@Success		200	{object}	LLMCallsResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/llmcalls [get]
func (e *ListLLMCallsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "LLM call store not available")
		return
	}

	q := r.URL.Query()
	filter := llmcall.QueryFilter{
		BookID:   q.Get("book_id"),
		Purpose:  q.Get("purpose"),
		Provider: q.Get("provider"),
		Model:    q.Get("model"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid success filter: %q must be true or false", v))
			return
		}
		filter.Success = &b
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit: %q must be an integer", v))
			return
		}
		filter.Limit = limit
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}

	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid offset: %q must be an integer", v))
			return
		}
		filter.Offset = offset
	}

	if v := q.Get("after"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid after timestamp: %v", err))
			return
		}
		filter.After = &ts
	}
	if v := q.Get("before"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid before timestamp: %v", err))
			return
		}
		filter.Before = &ts
	}

	calls, err := store.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list LLM calls: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, LLMCallsResponse{Calls: calls, Total: len(calls)})
}

func (e *ListLLMCallsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var bookID, purpose, provider string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List LLM call history",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			params := url.Values{}
			if bookID != "" {
				params.Set("book_id", bookID)
			}
			if purpose != "" {
				params.Set("purpose", purpose)
			}
			if provider != "" {
				params.Set("provider", provider)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			path := "/api/llmcalls"
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp LLMCallsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}

			if len(resp.Calls) == 0 {
				fmt.Println("No LLM calls found")
				return nil
			}

			for _, c := range resp.Calls {
				status := "ok"
				if !c.Success {
					status = "failed"
				}
				fmt.Printf("%s  %s/%s  %s  %d tokens  %dms  %s\n",
					c.CreatedAt.Format(time.RFC3339), c.Provider, c.Model,
					c.Purpose, c.TotalTokens, c.DurationMs, status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bookID, "book", "", "Filter by book ID")
	cmd.Flags().StringVar(&purpose, "purpose", "", "Filter by purpose")
	cmd.Flags().StringVar(&provider, "provider", "", "Filter by provider")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	return cmd
}

// LLMCallCountsEndpoint handles GET /api/llmcalls/counts.
type LLMCallCountsEndpoint struct{}

var _ api.Endpoint = (*LLMCallCountsEndpoint)(nil)

func (e *LLMCallCountsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/llmcalls/counts", e.handler
}

func (e *LLMCallCountsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Count LLM calls by purpose
//	@Description	Get per-purpose call counts, optionally scoped to one book
//	@Tags			llmcalls
//	@Produce		json
//	@Param			book_id	query		string	false	"Scope counts to one book"
//	@Success		200	{object}	LLMCallCountsResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/llmcalls/counts [get]
func (e *LLMCallCountsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.LLMCallStoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusInternalServerError, "LLM call store not available")
		return
	}

	counts, err := store.CountByPurpose(r.Context(), r.URL.Query().Get("book_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to count LLM calls: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, LLMCallCountsResponse{Counts: counts})
}

func (e *LLMCallCountsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var bookID string
	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Count LLM calls by purpose",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			path := "/api/llmcalls/counts"
			if bookID != "" {
				path += "?book_id=" + url.QueryEscape(bookID)
			}

			var resp LLMCallCountsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}

			if len(resp.Counts) == 0 {
				fmt.Println("No LLM calls found")
				return nil
			}
			for purpose, count := range resp.Counts {
				fmt.Printf("%s: %d\n", purpose, count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bookID, "book", "", "Scope counts to one book")
	return cmd
}
