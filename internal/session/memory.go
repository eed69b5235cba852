package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps sessions in a mutex-guarded map. It backs tests and
// single-node dev setups; all methods hand out value copies.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]Session // id -> session
	byToken  map[string]string  // token -> id
}

// NewMemoryRepository creates an empty repo.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]Session),
		byToken:  make(map[string]string),
	}
}

func (r *MemoryRepository) Insert(_ context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.sessions {
		if existing.ClassID == s.ClassID && existing.Active {
			return ErrAlreadyActive
		}
	}
	r.sessions[s.ID] = s
	r.byToken[s.Token] = s.ID
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *MemoryRepository) GetByToken(_ context.Context, token string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	if !ok {
		return Session{}, ErrNotFound
	}
	return r.sessions[id], nil
}

func (r *MemoryRepository) ActiveForClass(_ context.Context, classID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ClassID == classID && s.Active {
			return s, nil
		}
	}
	return Session{}, ErrNotFound
}

func (r *MemoryRepository) UpdateExpiry(_ context.Context, id string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.Active {
		return ErrNotActive
	}
	s.ExpiresAt = expiresAt
	r.sessions[id] = s
	return nil
}

func (r *MemoryRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.Active = false
	r.sessions[id] = s
	return nil
}

func (r *MemoryRepository) ReleaseExpired(_ context.Context, classID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.ClassID == classID && s.Active && s.Expired(now) {
			s.Active = false
			r.sessions[id] = s
		}
	}
	return nil
}
