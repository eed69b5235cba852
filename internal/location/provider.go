// Package location acquires position fixes on the student's device. It
// replaces callback-style geolocation APIs with a single blocking call that
// honors timeouts and cancellation.
package location

import (
	"context"
	"errors"
	"time"

	"presence/internal/geo"
)

// Defaults for a single acquisition attempt.
const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxStaleness = 60 * time.Second
)

var (
	ErrPermissionDenied    = errors.New("location: permission denied")
	ErrPositionUnavailable = errors.New("location: position unavailable")
	ErrTimeout             = errors.New("location: timed out")
	ErrUnsupported         = errors.New("location: not supported on this device")
)

// Fix is a single position measurement.
type Fix struct {
	Point          geo.Point
	AccuracyMeters float64
	MeasuredAt     time.Time
}

// Options controls one acquisition attempt.
type Options struct {
	// AccuracyHintMeters is advisory; providers may ignore it.
	AccuracyHintMeters float64
	// Timeout bounds the attempt; DefaultTimeout when zero.
	Timeout time.Duration
	// MaxStaleness is the oldest acceptable cached fix; DefaultMaxStaleness
	// when zero. Older fixes are re-acquired, never reused silently.
	MaxStaleness time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxStaleness <= 0 {
		o.MaxStaleness = DefaultMaxStaleness
	}
	return o
}

// Provider returns a single position fix. This is a one-shot request, not a
// subscription; implementations must honor ctx cancellation and the Options
// timeout and report failures with the package's sentinel errors.
type Provider interface {
	Acquire(ctx context.Context, opts Options) (Fix, error)
}
