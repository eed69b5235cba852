package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"presence/internal/geo"
)

// Session is a time- and location-bounded authorization to accept
// check-ins for one class. Anchor is a snapshot taken at creation, so
// moving the class's registered location later does not change the
// geofence of a session already in flight.
type Session struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	Token     string    `json:"token"`
	Anchor    geo.Point `json:"anchor"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// Open reports whether the session can still accept check-ins at now.
func (s Session) Open(now time.Time) bool { return s.Active && !s.Expired(now) }

var (
	ErrAlreadyActive      = errors.New("session: class already has an active session")
	ErrNotFound           = errors.New("session: not found")
	ErrNotActive          = errors.New("session: not active")
	ErrDurationOutOfRange = errors.New("session: duration out of range")
)

// NewToken returns a 256-bit random token, URL-safe base64 without padding.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Repository persists sessions. Implementations must return value copies so
// concurrent readers always observe a consistent snapshot.
type Repository interface {
	// Insert stores a new active session. It fails with ErrAlreadyActive when
	// the class already holds an active session; the check and the insert are
	// atomic with respect to concurrent inserts.
	Insert(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	GetByToken(ctx context.Context, token string) (Session, error)
	// ActiveForClass returns the class's active session or ErrNotFound.
	ActiveForClass(ctx context.Context, classID string) (Session, error)
	// UpdateExpiry sets a new expiry on an active session; ErrNotActive when
	// the session has been ended.
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	// Deactivate ends a session. Deactivating an already-ended session is a
	// no-op; an unknown id is ErrNotFound.
	Deactivate(ctx context.Context, id string) error
	// ReleaseExpired deactivates active sessions of the class whose expiry is
	// at or before now, freeing the class for a fresh Start.
	ReleaseExpired(ctx context.Context, classID string, now time.Time) error
}
