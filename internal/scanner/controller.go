// Package scanner drives the student device through the check-in flow:
// decode the QR payload, acquire a position fix, submit, and surface the
// outcome as user-facing states.
package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"presence/internal/attendance"
	"presence/internal/geo"
	"presence/internal/location"
	"presence/internal/payload"
)

// State is the user-visible phase of the check-in flow.
type State int

const (
	StateIdle State = iota
	StateAwaitingLocationPermission
	StateAcquiringLocation
	StateAwaitingScan
	StateSubmitting
	StateSucceeded
	StateAlreadyMarked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingLocationPermission:
		return "awaiting-location-permission"
	case StateAcquiringLocation:
		return "acquiring-location"
	case StateAwaitingScan:
		return "awaiting-scan"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateAlreadyMarked:
		return "already-marked"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Submitter delivers a check-in to the server.
type Submitter interface {
	Submit(ctx context.Context, sessionToken string, loc geo.Point) (attendance.Record, error)
}

// Result is the outcome of one scan attempt.
type Result struct {
	State  State
	Record attendance.Record
	Err    error
}

// Config tunes the controller.
type Config struct {
	// AcquireOptions is passed through to the location provider.
	AcquireOptions location.Options
	// Cooldown delays the return to AwaitingScan after a recoverable failure
	// so the student has a moment to move before rescanning.
	Cooldown time.Duration
	// PreCheckRadiusMeters enables a local distance pre-check against the
	// payload's anchor for fast feedback; zero disables it. The server-side
	// decision is the one that counts either way.
	PreCheckRadiusMeters float64
	// OnTransition, when set, observes every state change.
	OnTransition func(State)
}

// Controller is the device-side orchestrator. It is safe for one goroutine to
// run the flow while another cancels it.
type Controller struct {
	provider  location.Provider
	submitter Submitter
	cfg       Config

	mu    sync.Mutex
	state State
	// gen is bumped on Cancel; responses from an older generation are
	// discarded instead of applied.
	gen int
}

// New creates a controller in the Idle state.
func New(provider location.Provider, submitter Submitter, cfg Config) *Controller {
	return &Controller{provider: provider, submitter: submitter, cfg: cfg}
}

// State returns the current flow state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start warms up location access and leaves the controller awaiting a scan.
// A permission denial leaves the controller in AwaitingLocationPermission;
// the caller runs the platform permission flow and calls Start again.
func (c *Controller) Start(ctx context.Context) error {
	gen := c.currentGen()
	c.transition(gen, StateAwaitingLocationPermission)
	c.transition(gen, StateAcquiringLocation)

	_, err := c.provider.Acquire(ctx, c.cfg.AcquireOptions)
	switch {
	case err == nil:
	case errors.Is(err, location.ErrPermissionDenied):
		c.transition(gen, StateAwaitingLocationPermission)
		return err
	default:
		c.transition(gen, StateFailed)
		return err
	}

	c.transition(gen, StateAwaitingScan)
	return nil
}

// HandleScan processes one decoded QR payload end to end and returns the
// outcome. Client-local failures (bad payload, no fix) and protocol
// rejections other than a duplicate return the controller to AwaitingScan
// after the cooldown so the student can retry; a duplicate terminates as
// AlreadyMarked since the student is already recorded present.
func (c *Controller) HandleScan(ctx context.Context, raw []byte) Result {
	gen := c.currentGen()

	p, err := payload.Decode(raw)
	if err != nil {
		return c.recoverable(ctx, gen, err)
	}

	c.transition(gen, StateAcquiringLocation)
	fix, err := c.provider.Acquire(ctx, c.cfg.AcquireOptions)
	if err != nil {
		if errors.Is(err, location.ErrPermissionDenied) {
			c.transition(gen, StateAwaitingLocationPermission)
			return Result{State: StateAwaitingLocationPermission, Err: err}
		}
		return c.recoverable(ctx, gen, err)
	}

	if r := c.cfg.PreCheckRadiusMeters; r > 0 {
		if d := geo.Distance(fix.Point, p.Location); d > r {
			err := &attendance.OutOfRangeError{DistanceMeters: d, LimitMeters: r}
			return c.recoverable(ctx, gen, err)
		}
	}

	c.transition(gen, StateSubmitting)
	rec, err := c.submitter.Submit(ctx, p.SessionToken, fix.Point)
	if c.stale(gen) || ctx.Err() != nil {
		// Cancelled mid-flight; the late response must not be applied.
		c.transition(gen, StateIdle)
		return Result{State: StateIdle, Err: context.Canceled}
	}

	switch {
	case err == nil:
		c.transition(gen, StateSucceeded)
		return Result{State: StateSucceeded, Record: rec}
	case errors.Is(err, attendance.ErrDuplicate):
		c.transition(gen, StateAlreadyMarked)
		return Result{State: StateAlreadyMarked}
	default:
		return c.recoverable(ctx, gen, err)
	}
}

// Cancel aborts the flow from any state and releases it back to Idle. Any
// in-flight acquire or submit result is discarded when it arrives.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.gen++
	c.state = StateIdle
	cb := c.cfg.OnTransition
	c.mu.Unlock()
	if cb != nil {
		cb(StateIdle)
	}
}

func (c *Controller) recoverable(ctx context.Context, gen int, err error) Result {
	c.transition(gen, StateFailed)
	if c.cfg.Cooldown > 0 {
		t := time.NewTimer(c.cfg.Cooldown)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			c.transition(gen, StateIdle)
			return Result{State: StateIdle, Err: ctx.Err()}
		}
	}
	c.transition(gen, StateAwaitingScan)
	return Result{State: StateFailed, Err: err}
}

func (c *Controller) currentGen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Controller) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.gen
}

func (c *Controller) transition(gen int, s State) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = s
	cb := c.cfg.OnTransition
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}
