package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"presence/internal/geo"
)

// Record is the durable result of one accepted check-in, unique per
// (session, student). Records are created by the processor and never mutated.
type Record struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	Location  geo.Point `json:"location"`
	MarkedAt  time.Time `json:"marked_at"`
}

var (
	ErrInvalidToken   = errors.New("attendance: invalid session token")
	ErrSessionExpired = errors.New("attendance: session expired")
	ErrDuplicate      = errors.New("attendance: student already checked in")
)

// OutOfRangeError reports a check-in attempted outside the session geofence.
// It carries the measured distance so the student can be told how far to
// move.
type OutOfRangeError struct {
	DistanceMeters float64
	LimitMeters    float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("attendance: out of range: %.0fm away, limit %.0fm",
		e.DistanceMeters, e.LimitMeters)
}

// Repository persists attendance records.
type Repository interface {
	// Insert stores a record. It fails with ErrDuplicate when a record
	// already exists for the same (session, student) pair, leaving the
	// existing record untouched; the check and the insert are atomic.
	Insert(ctx context.Context, rec Record) error
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
}
