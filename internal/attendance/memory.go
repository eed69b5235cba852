package attendance

import (
	"context"
	"sort"
	"sync"
)

type pairKey struct {
	sessionID string
	studentID string
}

// MemoryRepository keeps records in a mutex-guarded map keyed by
// (session, student), giving the same exactly-once semantics as the unique
// constraint in Postgres.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[pairKey]Record
}

// NewMemoryRepository creates an empty repo.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[pairKey]Record)}
}

func (r *MemoryRepository) Insert(_ context.Context, rec Record) error {
	key := pairKey{rec.SessionID, rec.StudentID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[key]; exists {
		return ErrDuplicate
	}
	r.records[key] = rec
	return nil
}

func (r *MemoryRepository) ListBySession(_ context.Context, sessionID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var records []Record
	for key, rec := range r.records {
		if key.sessionID == sessionID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].MarkedAt.Equal(records[j].MarkedAt) {
			return records[i].MarkedAt.Before(records[j].MarkedAt)
		}
		return records[i].StudentID < records[j].StudentID
	})
	return records, nil
}
