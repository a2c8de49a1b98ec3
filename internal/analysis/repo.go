package analysis

import (
	"context"
	"fmt"

	"github.com/lectern-dev/lectern/internal/defra"
)

// recordFields are the fields fetched for every record query.
var recordFields = []string{
	"_docID",
	"book_id",
	"content_hash",
	"summary",
	"key_points",
	"keywords",
	"topics",
	"difficulty",
	"author_background",
	"book_background",
	"world_relevance",
	"quiz_questions",
	"mind_map",
	"confidence",
	"model",
	"generation_note",
	"created_at",
	"updated_at",
	"last_accessed_at",
}

// Repository is the row store for analysis records. The filter-based
// upsert is the serialization point for concurrent duplicate
// generations: last write wins.
type Repository interface {
	// FindLatest returns the newest record for (bookID, contentHash),
	// or nil when none exists. Empty contentHash matches any.
	FindLatest(ctx context.Context, bookID, contentHash string) (*Record, error)
	// Upsert creates or updates the record keyed by (book_id, content_hash).
	Upsert(ctx context.Context, rec *Record) (*Record, error)
	// TouchAccessed bumps last_accessed_at on a cache hit.
	TouchAccessed(ctx context.Context, docID string) error
	// DeleteAll removes every record for the book, all fingerprints.
	DeleteAll(ctx context.Context, bookID string) (int, error)
}

// DefraRepository implements Repository over DefraDB.
type DefraRepository struct {
	client *defra.Client
}

// NewDefraRepository creates a Repository backed by the given client.
func NewDefraRepository(client *defra.Client) *DefraRepository {
	return &DefraRepository{client: client}
}

func (r *DefraRepository) FindLatest(ctx context.Context, bookID, contentHash string) (*Record, error) {
	qb := defra.NewQuery(Collection).
		Filter("book_id", bookID).
		Fields(recordFields...).
		OrderBy("updated_at", "DESC").
		Limit(1)
	if contentHash != "" {
		qb.Filter("content_hash", contentHash)
	}

	resp, err := qb.Execute(ctx, r.client)
	if err != nil {
		return nil, fmt.Errorf("analysis query failed: %w", err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("analysis query error: %s", errMsg)
	}

	docs, ok := resp.Data[Collection].([]any)
	if !ok || len(docs) == 0 {
		return nil, nil
	}
	doc, ok := docs[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected analysis document type: %T", docs[0])
	}
	return recordFromDoc(doc), nil
}

func (r *DefraRepository) Upsert(ctx context.Context, rec *Record) (*Record, error) {
	now := nowRFC3339()
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.LastAccessedAt == "" {
		rec.LastAccessedAt = now
	}

	filter := map[string]any{
		"book_id":      rec.BookID,
		"content_hash": rec.ContentHash,
	}
	docID, err := r.client.Upsert(ctx, Collection, filter, rec.ToCreateInput(), rec.ToUpdateInput())
	if err != nil {
		return nil, fmt.Errorf("analysis upsert failed: %w", err)
	}
	rec.DocID = docID
	return rec, nil
}

func (r *DefraRepository) TouchAccessed(ctx context.Context, docID string) error {
	return r.client.Update(ctx, Collection, docID, map[string]any{
		"last_accessed_at": nowRFC3339(),
	})
}

func (r *DefraRepository) DeleteAll(ctx context.Context, bookID string) (int, error) {
	resp, err := defra.SafeQuery(ctx, r.client, Collection, "book_id", bookID, "_docID")
	if err != nil {
		return 0, fmt.Errorf("analysis lookup failed: %w", err)
	}
	if errMsg := resp.Error(); errMsg != "" {
		return 0, fmt.Errorf("analysis lookup error: %s", errMsg)
	}

	docs, _ := resp.Data[Collection].([]any)
	deleted := 0
	for _, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		docID, ok := doc["_docID"].(string)
		if !ok || docID == "" {
			continue
		}
		if err := r.client.Delete(ctx, Collection, docID); err != nil {
			return deleted, fmt.Errorf("analysis delete failed: %w", err)
		}
		deleted++
	}
	return deleted, nil
}

var _ Repository = (*DefraRepository)(nil)
