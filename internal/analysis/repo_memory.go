package analysis

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository is an in-memory Repository used in tests and when
// running without a store. Mirrors the filter-based upsert semantics
// of the DefraDB implementation.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*Record // docID -> record
	nextID  int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*Record)}
}

func (m *MemoryRepository) FindLatest(_ context.Context, bookID, contentHash string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *Record
	for _, rec := range m.records {
		if rec.BookID != bookID {
			continue
		}
		if contentHash != "" && rec.ContentHash != contentHash {
			continue
		}
		if latest == nil || rec.UpdatedAt > latest.UpdatedAt {
			latest = rec
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *MemoryRepository) Upsert(_ context.Context, rec *Record) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := nowRFC3339()
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.LastAccessedAt == "" {
		rec.LastAccessedAt = now
	}

	for docID, existing := range m.records {
		if existing.BookID == rec.BookID && existing.ContentHash == rec.ContentHash {
			updated := *rec
			updated.DocID = docID
			updated.CreatedAt = existing.CreatedAt
			m.records[docID] = &updated
			cp := updated
			return &cp, nil
		}
	}

	m.nextID++
	docID := fmt.Sprintf("mem-%d", m.nextID)
	created := *rec
	created.DocID = docID
	m.records[docID] = &created
	cp := created
	return &cp, nil
}

func (m *MemoryRepository) TouchAccessed(_ context.Context, docID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[docID]
	if !ok {
		return fmt.Errorf("no record with docID %q", docID)
	}
	rec.LastAccessedAt = nowRFC3339()
	return nil
}

func (m *MemoryRepository) DeleteAll(_ context.Context, bookID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for docID, rec := range m.records {
		if rec.BookID == bookID {
			delete(m.records, docID)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of stored records.
func (m *MemoryRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

var _ Repository = (*MemoryRepository)(nil)
