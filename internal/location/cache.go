package location

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Cached wraps a Provider and reuses the last fix while it is younger than
// MaxStaleness. A stale fix triggers a fresh acquisition.
type Cached struct {
	inner Provider

	mu   sync.Mutex
	last Fix
	ok   bool
	now  func() time.Time
}

// NewCached creates a caching wrapper.
func NewCached(inner Provider) *Cached {
	return &Cached{inner: inner, now: time.Now}
}

// Acquire returns the cached fix if fresh enough, otherwise acquires anew.
func (c *Cached) Acquire(ctx context.Context, opts Options) (Fix, error) {
	opts = opts.withDefaults()

	c.mu.Lock()
	if c.ok && c.now().Sub(c.last.MeasuredAt) <= opts.MaxStaleness {
		fix := c.last
		c.mu.Unlock()
		return fix, nil
	}
	c.mu.Unlock()

	fix, err := c.inner.Acquire(ctx, opts)
	if err != nil {
		return Fix{}, err
	}
	// The inner provider may itself serve from a cache; a fix already past
	// MaxStaleness must not pass through as fresh.
	if age := c.now().Sub(fix.MeasuredAt); age > opts.MaxStaleness {
		return Fix{}, fmt.Errorf("%w: fix is %s old", ErrPositionUnavailable, age)
	}
	c.mu.Lock()
	c.last, c.ok = fix, true
	c.mu.Unlock()
	return fix, nil
}
