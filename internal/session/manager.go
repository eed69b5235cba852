package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"presence/internal/geo"
)

// Default bounds on a requested session duration.
const (
	DefaultMinDuration = 1 * time.Minute
	DefaultMaxDuration = 480 * time.Minute
)

// Directory resolves a class to its registered anchor location. The class
// registry itself belongs to the class-management service.
type Directory interface {
	Anchor(ctx context.Context, classID string) (geo.Point, error)
}

// Manager owns the session lifecycle: start, extend, end, lazy expiry.
type Manager struct {
	repo        Repository
	dir         Directory
	minDuration time.Duration
	maxDuration time.Duration
	now         func() time.Time
}

// NewManager creates a manager with the given duration bounds; zero bounds
// fall back to the defaults.
func NewManager(repo Repository, dir Directory, minDuration, maxDuration time.Duration) *Manager {
	if minDuration <= 0 {
		minDuration = DefaultMinDuration
	}
	if maxDuration <= 0 {
		maxDuration = DefaultMaxDuration
	}
	return &Manager{
		repo:        repo,
		dir:         dir,
		minDuration: minDuration,
		maxDuration: maxDuration,
		now:         time.Now,
	}
}

// Start creates and persists a fresh active session for the class. The
// class's current anchor location is snapshotted into the session. Fails with
// ErrAlreadyActive while another session for the class is still open.
func (m *Manager) Start(ctx context.Context, classID string, duration time.Duration) (Session, error) {
	if classID == "" {
		return Session{}, errors.New("session: class id required")
	}
	if duration < m.minDuration || duration > m.maxDuration {
		return Session{}, fmt.Errorf("%w: %s not within [%s, %s]",
			ErrDurationOutOfRange, duration, m.minDuration, m.maxDuration)
	}

	anchor, err := m.dir.Anchor(ctx, classID)
	if err != nil {
		return Session{}, fmt.Errorf("session: resolve class anchor: %w", err)
	}
	token, err := NewToken()
	if err != nil {
		return Session{}, err
	}

	now := m.now().UTC()
	s := Session{
		ID:        uuid.NewString(),
		ClassID:   classID,
		Token:     token,
		Anchor:    anchor,
		CreatedAt: now,
		ExpiresAt: now.Add(duration),
		Active:    true,
	}

	// A lapsed session that was never explicitly ended must not block a new
	// one for the same class.
	if err := m.repo.ReleaseExpired(ctx, classID, now); err != nil {
		return Session{}, fmt.Errorf("session: release expired: %w", err)
	}
	if err := m.repo.Insert(ctx, s); err != nil {
		return Session{}, err
	}
	return s, nil
}

// Extend pushes the expiry further out by extra. The extension is additive:
// time already elapsed stays elapsed. A session that has ended or already
// expired cannot be extended; start a fresh one instead.
func (m *Manager) Extend(ctx context.Context, id string, extra time.Duration) (Session, error) {
	if extra <= 0 || extra > m.maxDuration {
		return Session{}, fmt.Errorf("%w: extension %s", ErrDurationOutOfRange, extra)
	}
	s, err := m.repo.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !s.Open(m.now()) {
		return Session{}, ErrNotActive
	}
	expiresAt := s.ExpiresAt.Add(extra)
	if err := m.repo.UpdateExpiry(ctx, id, expiresAt); err != nil {
		return Session{}, err
	}
	s.ExpiresAt = expiresAt
	return s, nil
}

// End closes the session immediately, independent of its expiry. Ending an
// already-ended session is a no-op success.
func (m *Manager) End(ctx context.Context, id string) error {
	return m.repo.Deactivate(ctx, id)
}

// Get returns the session by id.
func (m *Manager) Get(ctx context.Context, id string) (Session, error) {
	return m.repo.Get(ctx, id)
}

// ByToken resolves a scanned token to its session.
func (m *Manager) ByToken(ctx context.Context, token string) (Session, error) {
	return m.repo.GetByToken(ctx, token)
}

// ActiveForClass returns the class's open session, or nil when there is none.
// A session past its expiry is reported as none even if never explicitly
// ended.
func (m *Manager) ActiveForClass(ctx context.Context, classID string) (*Session, error) {
	s, err := m.repo.ActiveForClass(ctx, classID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.Open(m.now()) {
		return nil, nil
	}
	return &s, nil
}
