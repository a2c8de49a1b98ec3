package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lectern-dev/lectern/internal/api"
	"github.com/lectern-dev/lectern/internal/library"
	"github.com/lectern-dev/lectern/internal/svcctx"
)

// UploadBookEndpoint handles POST /api/books/upload with a multipart file upload.
type UploadBookEndpoint struct{}

var _ api.Endpoint = (*UploadBookEndpoint)(nil)

func (e *UploadBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/upload", e.handler
}

func (e *UploadBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload a book
//	@Description	Upload a PDF and create its catalog entry
//	@Tags			books
//	@Accept			mpfd
//	@Produce		json
//	@Param			file		formData	file	true	"Book file (PDF)"
//	@Param			title		formData	string	false	"Book title (derived from filename if not provided)"
//	@Param			author		formData	string	false	"Book author"
//	@Param			description	formData	string	false	"Book description"
//	@Param			tags		formData	string	false	"Comma-separated tags"
//	@Success		201	{object}	library.Book
//	@Failure		400	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/upload [post]
func (e *UploadBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 64 << 20 // 64MB
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library service not initialized")
		return
	}

	book, err := lib.Upload(r.Context(), library.UploadRequest{
		Title:       r.FormValue("title"),
		Author:      r.FormValue("author"),
		Description: r.FormValue("description"),
		Tags:        tags,
		FileName:    header.Filename,
		Data:        data,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("upload failed: %v", err))
		return
	}

	writeJSON(w, http.StatusCreated, book)
}

func (e *UploadBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, author, description, tags string
	cmd := &cobra.Command{
		Use:   "upload <file.pdf>",
		Short: "Upload a book file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			fields := map[string]string{}
			if title != "" {
				fields["title"] = title
			}
			if author != "" {
				fields["author"] = author
			}
			if description != "" {
				fields["description"] = description
			}
			if tags != "" {
				fields["tags"] = tags
			}

			var book library.Book
			if err := client.PostMultipart(cmd.Context(), "/api/books/upload", "file", args[0], fields, &book); err != nil {
				return err
			}
			fmt.Printf("Book uploaded: %s\n", book.ID)
			fmt.Printf("  Title:  %s\n", book.Title)
			if book.Author != "" {
				fmt.Printf("  Author: %s\n", book.Author)
			}
			fmt.Printf("  Pages:  %d\n", book.PageCount)
			fmt.Printf("  Asset:  %s\n", book.AssetRef)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Book title")
	cmd.Flags().StringVar(&author, "author", "", "Book author")
	cmd.Flags().StringVar(&description, "description", "", "Book description")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags")
	return cmd
}

// ListBooksResponse contains the book catalog.
type ListBooksResponse struct {
	Books []library.Book `json:"books"`
	Total int            `json:"total"`
}

// ListBooksEndpoint handles GET /api/books.
type ListBooksEndpoint struct{}

var _ api.Endpoint = (*ListBooksEndpoint)(nil)

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List books
//	@Description	Get all books in the catalog, newest first
//	@Tags			books
//	@Produce		json
//	@Success		200	{object}	ListBooksResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/books [get]
func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library service not initialized")
		return
	}

	books, err := lib.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list books: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, ListBooksResponse{Books: books, Total: len(books)})
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all books",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListBooksResponse
			if err := client.Get(cmd.Context(), "/api/books", &resp); err != nil {
				return err
			}

			if len(resp.Books) == 0 {
				fmt.Println("No books found")
				return nil
			}

			for _, book := range resp.Books {
				id := book.ID
				if len(id) > 8 {
					id = id[:8]
				}
				fmt.Printf("%s  %s  %d pages  %s\n", id, book.Title, book.PageCount, book.Status)
			}
			return nil
		},
	}
}

// GetBookEndpoint handles GET /api/books/{id}.
type GetBookEndpoint struct{}

var _ api.Endpoint = (*GetBookEndpoint)(nil)

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a book
//	@Description	Get one book by document ID
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	library.Book
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/books/{id} [get]
func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	lib := svcctx.LibraryFrom(r.Context())
	if lib == nil {
		writeError(w, http.StatusServiceUnavailable, "library service not initialized")
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

	writeJSON(w, http.StatusOK, book)
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <book-id>",
		Short: "Get a book by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var book library.Book
			if err := client.Get(cmd.Context(), "/api/books/"+args[0], &book); err != nil {
				return err
			}
			fmt.Printf("ID:        %s\n", book.ID)
			fmt.Printf("Title:     %s\n", book.Title)
			if book.Author != "" {
				fmt.Printf("Author:    %s\n", book.Author)
			}
			if book.Description != "" {
				fmt.Printf("About:     %s\n", book.Description)
			}
			if len(book.Tags) > 0 {
				fmt.Printf("Tags:      %s\n", strings.Join(book.Tags, ", "))
			}
			fmt.Printf("Pages:     %d\n", book.PageCount)
			fmt.Printf("Size:      %d bytes\n", book.FileSize)
			fmt.Printf("Status:    %s\n", book.Status)
			fmt.Printf("Created:   %s\n", book.CreatedAt)
			return nil
		},
	}
}
