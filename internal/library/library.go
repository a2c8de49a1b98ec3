// Package library manages the book catalog: uploaded files land in the
// home blob store and their metadata rows live in DefraDB.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lectern-dev/lectern/internal/defra"
	"github.com/lectern-dev/lectern/internal/home"
	"github.com/lectern-dev/lectern/internal/pdfscan"
)

// Collection is the DefraDB collection holding book rows.
const Collection = "Book"

// Book statuses.
const (
	StatusReady      = "ready"
	StatusProcessing = "processing"
)

// bookFields are the fields fetched for every book query.
var bookFields = []string{
	"_docID",
	"title",
	"author",
	"description",
	"tags",
	"asset_ref",
	"file_size",
	"page_count",
	"status",
	"created_at",
	"updated_at",
}

// Book is a catalog entry. The asset itself lives in the blob store
// under AssetRef.
type Book struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Author      string   `json:"author"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	AssetRef    string   `json:"asset_ref"`
	FileSize    int      `json:"file_size"`
	PageCount   int      `json:"page_count"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// UploadRequest describes a new book.
type UploadRequest struct {
	Title       string
	Author      string
	Description string
	Tags        []string
	FileName    string
	Data        []byte
}

// Service provides catalog operations.
type Service struct {
	client    *defra.Client
	home      *home.Dir
	extractor pdfscan.Extractor
	logger    *slog.Logger
}

// NewService creates a library service.
func NewService(client *defra.Client, homeDir *home.Dir, extractor pdfscan.Extractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = pdfscan.NewScanner()
	}
	return &Service{client: client, home: homeDir, extractor: extractor, logger: logger}
}

// Upload stores the file in the blob store, estimates its page count,
// and creates the catalog row. The blob key is content-addressed by a
// fresh UUID so uploads never collide.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*Book, error) {
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("empty upload")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(req.FileName), filepath.Ext(req.FileName))
	}
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}

	ext := strings.ToLower(filepath.Ext(req.FileName))
	if ext == "" {
		ext = ".pdf"
	}
	assetRef := fmt.Sprintf("book-file/%s%s", uuid.New().String(), ext)

	if err := s.home.EnsureBlobDir(assetRef); err != nil {
		return nil, fmt.Errorf("failed to prepare blob directory: %w", err)
	}
	path, err := s.home.BlobPath(assetRef)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, req.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	// Best-effort page count; a scan miss just records 0.
	scan := s.extractor.Extract(req.Data, pdfscan.Metadata{Title: title, Author: req.Author})

	now := nowRFC3339()
	input := map[string]any{
		"title":      title,
		"author":     req.Author,
		"asset_ref":  assetRef,
		"file_size":  len(req.Data),
		"page_count": scan.PageCount,
		"status":     StatusReady,
		"created_at": now,
		"updated_at": now,
	}
	if req.Description != "" {
		input["description"] = req.Description
	}
	if len(req.Tags) > 0 {
		input["tags"] = req.Tags
	}

	docID, err := s.client.Create(ctx, Collection, input)
	if err != nil {
		// Keep the store consistent with the catalog.
		if rmErr := os.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove orphaned blob", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to create book record: %w", err)
	}

	s.logger.Info("book uploaded",
		"book_id", docID, "title", title, "pages", scan.PageCount, "bytes", len(req.Data))

	return &Book{
		ID:          docID,
		Title:       title,
		Author:      req.Author,
		Description: req.Description,
		Tags:        req.Tags,
		AssetRef:    assetRef,
		FileSize:    len(req.Data),
		PageCount:   scan.PageCount,
		Status:      StatusReady,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// List returns all books, newest first.
func (s *Service) List(ctx context.Context) ([]Book, error) {
	resp, err := defra.NewQuery(Collection).
		Fields(bookFields...).
		OrderBy("created_at", "DESC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("book query failed: %w", err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("book query error: %s", errMsg)
	}

	docs, _ := resp.Data[Collection].([]any)
	books := make([]Book, 0, len(docs))
	for _, d := range docs {
		if doc, ok := d.(map[string]any); ok {
			books = append(books, bookFromDoc(doc))
		}
	}
	return books, nil
}

// Get returns one book by document ID, or nil when not found.
func (s *Service) Get(ctx context.Context, bookID string) (*Book, error) {
	if err := defra.ValidateID(bookID); err != nil {
		return nil, err
	}
	resp, err := defra.SafeQueryByDocID(ctx, s.client, Collection, bookID, bookFields...)
	if err != nil {
		return nil, fmt.Errorf("book query failed: %w", err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("book query error: %s", errMsg)
	}

	docs, _ := resp.Data[Collection].([]any)
	if len(docs) == 0 {
		return nil, nil
	}
	doc, ok := docs[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected book document type: %T", docs[0])
	}
	book := bookFromDoc(doc)
	return &book, nil
}

// Fields returns the analysis-facing identity of a book.
func (b *Book) Fields() (title, author, description, assetRef string, tags []string) {
	return b.Title, b.Author, b.Description, b.AssetRef, b.Tags
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func bookFromDoc(doc map[string]any) Book {
	b := Book{}
	if v, ok := doc["_docID"].(string); ok {
		b.ID = v
	}
	getStr := func(key string) string {
		if v, ok := doc[key].(string); ok {
			return v
		}
		return ""
	}
	b.Title = getStr("title")
	b.Author = getStr("author")
	b.Description = getStr("description")
	b.AssetRef = getStr("asset_ref")
	b.Status = getStr("status")
	b.CreatedAt = getStr("created_at")
	b.UpdatedAt = getStr("updated_at")

	if v, ok := doc["file_size"].(float64); ok {
		b.FileSize = int(v)
	}
	if v, ok := doc["page_count"].(float64); ok {
		b.PageCount = int(v)
	}
	if raw, ok := doc["tags"].([]any); ok {
		for _, item := range raw {
			if s, ok := item.(string); ok {
				b.Tags = append(b.Tags, s)
			}
		}
	}
	return b
}
