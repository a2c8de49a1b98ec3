package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lectern-dev/lectern/internal/analysis"
	"github.com/lectern-dev/lectern/internal/api"
	"github.com/lectern-dev/lectern/internal/svcctx"
)

// AnalysisResponse is the wire form of a stored analysis.
type AnalysisResponse struct {
	ID          string `json:"id"`
	BookID      string `json:"bookId"`
	ContentHash string `json:"contentHash"`

	Summary          string                  `json:"summary"`
	KeyPoints        []string                `json:"keyPoints"`
	Keywords         []string                `json:"keywords"`
	Topics           []string                `json:"topics"`
	Difficulty       string                  `json:"difficulty"`
	AuthorBackground string                  `json:"authorBackground,omitempty"`
	BookBackground   string                  `json:"bookBackground,omitempty"`
	WorldRelevance   string                  `json:"worldRelevance,omitempty"`
	QuizQuestions    []analysis.QuizQuestion `json:"quizQuestions,omitempty"`
	MindMap          *analysis.MindMapNode   `json:"mindMap,omitempty"`
	Confidence       float64                 `json:"confidence"`

	Model          string `json:"model,omitempty"`
	GenerationNote string `json:"generationNote,omitempty"`

	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
	LastAccessedAt string `json:"lastAccessedAt,omitempty"`
}

func analysisResponseFrom(rec *analysis.Record) AnalysisResponse {
	return AnalysisResponse{
		ID:               rec.DocID,
		BookID:           rec.BookID,
		ContentHash:      rec.ContentHash,
		Summary:          rec.Summary,
		KeyPoints:        rec.KeyPoints,
		Keywords:         rec.Keywords,
		Topics:           rec.Topics,
		Difficulty:       rec.Difficulty,
		AuthorBackground: rec.AuthorBackground,
		BookBackground:   rec.BookBackground,
		WorldRelevance:   rec.WorldRelevance,
		QuizQuestions:    rec.QuizQuestions,
		MindMap:          rec.MindMap,
		Confidence:       rec.Confidence,
		Model:            rec.Model,
		GenerationNote:   rec.GenerationNote,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
		LastAccessedAt:   rec.LastAccessedAt,
	}
}

// BookAnalysisEndpoint handles GET /api/books/{id}/analysis.
// The first request generates and caches the analysis; later requests
// return the cached row unless force=true.
type BookAnalysisEndpoint struct{}

var _ api.Endpoint = (*BookAnalysisEndpoint)(nil)

func (e *BookAnalysisEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/analysis", e.handler
}

func (e *BookAnalysisEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get or generate a book analysis
//	@Description	Return the cached AI analysis for a book, generating it on first access
//	@Tags			books
//	@Produce		json
//	@Param			id		path		string	true	"Book ID"
//	@Param			force	query		bool	false	"Regenerate even if a cached analysis exists"
//	@Success		200	{object}	AnalysisResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/books/{id}/analysis [get]
func (e *BookAnalysisEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	analyzer := svcctx.AnalyzerFrom(r.Context())
	if lib == nil || analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "analysis service not initialized")
		return
	}

	book, err := lib.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to get book: %v", err))
		return
	}
	if book == nil {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}

	force := r.URL.Query().Get("force") == "true"

	rec, err := analyzer.GetOrCreate(r.Context(), book.ID, analysis.BookFields{
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		AssetRef:    book.AssetRef,
		Tags:        book.Tags,
	}, force)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("analysis failed: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, analysisResponseFrom(rec))
}

func (e *BookAnalysisEndpoint) Command(getServerURL func() string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "analysis <book-id>",
		Short: "Get or generate the AI analysis for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/books/" + args[0] + "/analysis"
			if force {
				path += "?force=true"
			}

			var resp AnalysisResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}

			fmt.Printf("Summary:    %s\n", resp.Summary)
			fmt.Printf("Difficulty: %s\n", resp.Difficulty)
			fmt.Printf("Confidence: %.2f\n", resp.Confidence)
			if len(resp.KeyPoints) > 0 {
				fmt.Println("Key points:")
				for _, kp := range resp.KeyPoints {
					fmt.Printf("  - %s\n", kp)
				}
			}
			if len(resp.Keywords) > 0 {
				fmt.Printf("Keywords:   %s\n", strings.Join(resp.Keywords, ", "))
			}
			if len(resp.Topics) > 0 {
				fmt.Printf("Topics:     %s\n", strings.Join(resp.Topics, ", "))
			}
			if resp.Model != "" {
				fmt.Printf("Model:      %s\n", resp.Model)
			}
			if resp.GenerationNote != "" {
				fmt.Printf("Note:       %s\n", resp.GenerationNote)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Regenerate even if cached")
	return cmd
}
