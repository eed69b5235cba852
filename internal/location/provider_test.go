package location

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/geo"
)

func TestHTTPProviderAcquire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"lat":40.0,"lng":-75.0,"accuracy_m":8.5}`))
	}))
	defer srv.Close()

	fix, err := NewHTTPProvider(srv.URL).Acquire(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, geo.Point{Lat: 40.0, Lng: -75.0}, fix.Point)
	assert.Equal(t, 8.5, fix.AccuracyMeters)
	assert.False(t, fix.MeasuredAt.IsZero())
}

func TestHTTPProviderErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"permission denied", http.StatusForbidden, ErrPermissionDenied},
		{"unauthorized", http.StatusUnauthorized, ErrPermissionDenied},
		{"unsupported", http.StatusNotImplemented, ErrUnsupported},
		{"unavailable", http.StatusServiceUnavailable, ErrPositionUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := NewHTTPProvider(srv.URL).Acquire(context.Background(), Options{})
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestHTTPProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	_, err := NewHTTPProvider(srv.URL).Acquire(context.Background(), Options{Timeout: 50 * time.Millisecond})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestHTTPProviderNoBaseURL(t *testing.T) {
	_, err := (&HTTPProvider{HTTP: http.DefaultClient}).Acquire(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrUnsupported)
}

type countingProvider struct {
	calls int
	fix   Fix
}

func (p *countingProvider) Acquire(_ context.Context, _ Options) (Fix, error) {
	p.calls++
	return p.fix, nil
}

func TestCachedReusesFreshFix(t *testing.T) {
	base := time.Now()
	inner := &countingProvider{fix: Fix{Point: geo.Point{Lat: 1}, MeasuredAt: base}}
	c := NewCached(inner)
	c.now = func() time.Time { return base }

	_, err := c.Acquire(context.Background(), Options{})
	require.NoError(t, err)
	_, err = c.Acquire(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedReacquiresStaleFix(t *testing.T) {
	base := time.Now()
	inner := &countingProvider{fix: Fix{Point: geo.Point{Lat: 1}, MeasuredAt: base}}
	c := NewCached(inner)

	_, err := c.Acquire(context.Background(), Options{})
	require.NoError(t, err)

	// 61s later the cached fix is past MaxStaleness and must not be reused.
	c.now = func() time.Time { return base.Add(61 * time.Second) }
	inner.fix.MeasuredAt = base.Add(61 * time.Second)
	_, err = c.Acquire(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedRejectsStaleInnerFix(t *testing.T) {
	base := time.Now()
	// The inner provider serves a fix that was measured 5 minutes ago, as an
	// HTTP sidecar with its own cache might.
	inner := &countingProvider{fix: Fix{Point: geo.Point{Lat: 1}, MeasuredAt: base.Add(-5 * time.Minute)}}
	c := NewCached(inner)
	c.now = func() time.Time { return base }

	_, err := c.Acquire(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrPositionUnavailable)

	// The stale fix must not have been cached either.
	inner.fix.MeasuredAt = base
	fix, err := c.Acquire(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, base, fix.MeasuredAt)
	assert.Equal(t, 2, inner.calls)
}
