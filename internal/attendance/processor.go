package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"presence/internal/geo"
	"presence/internal/session"
)

// DefaultMaxRadiusMeters is the geofence radius used when none is configured.
const DefaultMaxRadiusMeters = 50

// TokenResolver resolves a scanned token to its session.
type TokenResolver interface {
	ByToken(ctx context.Context, token string) (session.Session, error)
}

// Feed receives accepted records for the reporting collaborator.
type Feed interface {
	Publish(ctx context.Context, rec Record) error
}

// Processor is the single authority on whether a check-in is accepted. It
// never trusts distances or validity pre-computed on the device.
type Processor struct {
	sessions  TokenResolver
	repo      Repository
	feed      Feed // optional
	maxRadius float64
	now       func() time.Time
}

// NewProcessor creates a processor. feed may be nil; maxRadiusMeters falls
// back to DefaultMaxRadiusMeters when non-positive.
func NewProcessor(sessions TokenResolver, repo Repository, feed Feed, maxRadiusMeters float64) *Processor {
	if maxRadiusMeters <= 0 {
		maxRadiusMeters = DefaultMaxRadiusMeters
	}
	return &Processor{
		sessions:  sessions,
		repo:      repo,
		feed:      feed,
		maxRadius: maxRadiusMeters,
		now:       time.Now,
	}
}

// MaxRadiusMeters returns the configured geofence radius.
func (p *Processor) MaxRadiusMeters() float64 { return p.maxRadius }

// CheckIn validates the token, the session window and the claimed location,
// then records attendance exactly once per (session, student). A claimed
// location exactly at the radius is accepted.
func (p *Processor) CheckIn(ctx context.Context, token, studentID string, claimed geo.Point) (Record, error) {
	if token == "" {
		return Record{}, ErrInvalidToken
	}
	if studentID == "" {
		return Record{}, errors.New("attendance: student id required")
	}
	if !claimed.Valid() {
		return Record{}, errors.New("attendance: claimed location out of bounds")
	}

	s, err := p.sessions.ByToken(ctx, token)
	if errors.Is(err, session.ErrNotFound) {
		return Record{}, ErrInvalidToken
	}
	if err != nil {
		return Record{}, fmt.Errorf("attendance: resolve token: %w", err)
	}

	now := p.now().UTC()
	if !s.Open(now) {
		return Record{}, ErrSessionExpired
	}

	distance := geo.Distance(claimed, s.Anchor)
	if distance > p.maxRadius {
		return Record{}, &OutOfRangeError{DistanceMeters: distance, LimitMeters: p.maxRadius}
	}

	rec := Record{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		StudentID: studentID,
		Location:  claimed,
		MarkedAt:  now,
	}
	if err := p.repo.Insert(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Record{}, ErrDuplicate
		}
		return Record{}, fmt.Errorf("attendance: store record: %w", err)
	}

	if p.feed != nil {
		// Export is best effort; the check-in already happened.
		if err := p.feed.Publish(ctx, rec); err != nil {
			log.Printf("attendance: export publish failed for %s: %v", rec.ID, err)
		}
	}
	return rec, nil
}

// Export returns exactly the accepted check-ins for a session, no more, no
// fewer.
func (p *Processor) Export(ctx context.Context, sessionID string) ([]Record, error) {
	return p.repo.ListBySession(ctx, sessionID)
}
