// Package analysis implements the content-addressed AI analysis cache:
// a deterministic fingerprint over book metadata keys a generated
// analysis artifact, with a parse/repair/fallback pipeline tolerating
// malformed provider output.
package analysis

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Collection is the DefraDB collection holding analysis records.
const Collection = "Analysis"

// Normalization caps. Arrays longer than these are clipped.
const (
	MaxKeyPoints     = 6
	MaxKeywords      = 12
	MaxTopics        = 6
	MaxQuizQuestions = 5
)

// Difficulty levels. Everything else maps onto these three.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// BookFields are the identifying fields of a book that feed the
// fingerprint and the generation prompt.
type BookFields struct {
	Title       string
	Author      string
	Description string
	AssetRef    string
	Tags        []string
}

// QuizQuestion is a single generated comprehension question.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation"`
}

// MindMapNode is a rooted tree summarizing the book's structure.
type MindMapNode struct {
	Name     string        `json:"name"`
	Children []MindMapNode `json:"children,omitempty"`
}

// Record is the cached analysis artifact for one (book, fingerprint)
// pair. At most one live record exists per pair, enforced by the
// store's filter-based upsert rather than application locking.
type Record struct {
	DocID       string
	BookID      string
	ContentHash string

	Summary          string
	KeyPoints        []string
	Keywords         []string
	Topics           []string
	Difficulty       string
	AuthorBackground string
	BookBackground   string
	WorldRelevance   string
	QuizQuestions    []QuizQuestion
	MindMap          *MindMapNode
	Confidence       float64

	Model          string
	GenerationNote string

	CreatedAt      string
	UpdatedAt      string
	LastAccessedAt string
}

// ToCreateInput converts the record to a DefraDB create input.
func (r *Record) ToCreateInput() map[string]any {
	m := r.toUpdateInput()
	m["created_at"] = r.CreatedAt
	return m
}

// ToUpdateInput converts the record to a DefraDB update input.
// created_at is excluded so forced regeneration preserves it.
func (r *Record) ToUpdateInput() map[string]any {
	return r.toUpdateInput()
}

func (r *Record) toUpdateInput() map[string]any {
	m := map[string]any{
		"book_id":          r.BookID,
		"content_hash":     r.ContentHash,
		"summary":          r.Summary,
		"key_points":       r.KeyPoints,
		"keywords":         r.Keywords,
		"topics":           r.Topics,
		"difficulty":       r.Difficulty,
		"confidence":       r.Confidence,
		"model":            r.Model,
		"updated_at":       r.UpdatedAt,
		"last_accessed_at": r.LastAccessedAt,
	}
	if r.AuthorBackground != "" {
		m["author_background"] = r.AuthorBackground
	}
	if r.BookBackground != "" {
		m["book_background"] = r.BookBackground
	}
	if r.WorldRelevance != "" {
		m["world_relevance"] = r.WorldRelevance
	}
	if r.GenerationNote != "" {
		m["generation_note"] = r.GenerationNote
	}
	if len(r.QuizQuestions) > 0 {
		if data, err := json.Marshal(r.QuizQuestions); err == nil {
			m["quiz_questions"] = string(data)
		}
	}
	if r.MindMap != nil {
		if data, err := json.Marshal(r.MindMap); err == nil {
			m["mind_map"] = string(data)
		}
	}
	return m
}

// recordFromDoc builds a Record from a DefraDB document map.
func recordFromDoc(doc map[string]any) *Record {
	r := &Record{}
	if v, ok := doc["_docID"].(string); ok {
		r.DocID = v
	}
	r.BookID = docString(doc, "book_id")
	r.ContentHash = docString(doc, "content_hash")
	r.Summary = docString(doc, "summary")
	r.KeyPoints = docStrings(doc, "key_points")
	r.Keywords = docStrings(doc, "keywords")
	r.Topics = docStrings(doc, "topics")
	r.Difficulty = docString(doc, "difficulty")
	r.AuthorBackground = docString(doc, "author_background")
	r.BookBackground = docString(doc, "book_background")
	r.WorldRelevance = docString(doc, "world_relevance")
	r.Model = docString(doc, "model")
	r.GenerationNote = docString(doc, "generation_note")
	r.CreatedAt = docString(doc, "created_at")
	r.UpdatedAt = docString(doc, "updated_at")
	r.LastAccessedAt = docString(doc, "last_accessed_at")

	if v, ok := doc["confidence"].(float64); ok {
		r.Confidence = v
	}
	if raw := docString(doc, "quiz_questions"); raw != "" {
		var quiz []QuizQuestion
		if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
			slog.Debug("stored quiz questions unparsable", "error", err)
		} else {
			r.QuizQuestions = quiz
		}
	}
	if raw := docString(doc, "mind_map"); raw != "" {
		var node MindMapNode
		if err := json.Unmarshal([]byte(raw), &node); err != nil {
			slog.Debug("stored mind map unparsable", "error", err)
		} else {
			r.MindMap = &node
		}
	}
	return r
}

func docString(doc map[string]any, key string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return ""
}

func docStrings(doc map[string]any, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
