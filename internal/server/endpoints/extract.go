package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/lectern-dev/lectern/internal/api"
	"github.com/lectern-dev/lectern/internal/pdfscan"
	"github.com/lectern-dev/lectern/internal/svcctx"
)

// ExtractRequest asks for a text extraction preview of a stored asset.
type ExtractRequest struct {
	AssetRef string `json:"asset_ref"`
	MaxBytes int    `json:"max_bytes,omitempty"`
}

// ExtractResponse is the scanner output for an asset.
type ExtractResponse struct {
	AssetRef  string `json:"asset_ref"`
	Text      string `json:"text"`
	Chars     int    `json:"chars"`
	PageCount int    `json:"page_count"`
	Truncated bool   `json:"truncated"`
}

// ExtractEndpoint handles POST /api/extract.
// It runs the lightweight PDF scanner over a stored asset without
// touching the catalog, useful for previewing what analysis will see.
type ExtractEndpoint struct{}

var _ api.Endpoint = (*ExtractEndpoint)(nil)

func (e *ExtractEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/extract", e.handler
}

func (e *ExtractEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Preview text extraction
//	@Description	Run the PDF text scanner over a stored asset
//	@Tags			extract
//	@Accept			json
//	@Produce		json
//	@Param			request	body		ExtractRequest	true	"Asset to scan"
//	@Success		200	{object}	ExtractResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/extract [post]
func (e *ExtractEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.AssetRef == "" {
		writeError(w, http.StatusBadRequest, "asset_ref is required")
		return
	}

	fetcher := svcctx.FetcherFrom(r.Context())
	scanner := svcctx.ScannerFrom(r.Context())
	if fetcher == nil || scanner == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction services not initialized")
		return
	}

	data := fetcher.Fetch(r.Context(), req.AssetRef, req.MaxBytes)
	if len(data) == 0 {
		writeError(w, http.StatusNotFound, "asset not found or empty")
		return
	}

	result := scanner.Scan(data, pdfscan.Metadata{})

	writeJSON(w, http.StatusOK, ExtractResponse{
		AssetRef:  req.AssetRef,
		Text:      result.Text,
		Chars:     len([]rune(result.Text)),
		PageCount: result.PageCount,
		Truncated: result.Truncated,
	})
}

func (e *ExtractEndpoint) Command(getServerURL func() string) *cobra.Command {
	var maxBytes int
	cmd := &cobra.Command{
		Use:   "extract <asset-ref>",
		Short: "Preview text extraction for a stored asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			req := ExtractRequest{AssetRef: args[0], MaxBytes: maxBytes}

			var resp ExtractResponse
			if err := client.Post(cmd.Context(), "/api/extract", req, &resp); err != nil {
				return err
			}

			fmt.Printf("Asset:     %s\n", resp.AssetRef)
			fmt.Printf("Pages:     %d\n", resp.PageCount)
			fmt.Printf("Chars:     %d\n", resp.Chars)
			fmt.Printf("Truncated: %v\n", resp.Truncated)
			if resp.Text != "" {
				fmt.Println("---")
				fmt.Println(resp.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 0, "Max bytes to read from the asset (0 = server default)")
	return cmd
}
