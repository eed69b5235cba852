package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"presence/internal/geo"
)

// HTTPProvider reads fixes from a positioning sidecar on the device
// (GET {base}/position returning {"lat","lng","accuracy_m","measured_at"}).
type HTTPProvider struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPProvider creates a provider. The per-attempt deadline comes from
// Options, not from the http client.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{}}
}

// Acquire requests one fix from the sidecar.
func (p *HTTPProvider) Acquire(ctx context.Context, opts Options) (Fix, error) {
	opts = opts.withDefaults()
	if p.BaseURL == "" {
		return Fix{}, ErrUnsupported
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	u := p.BaseURL + "/position"
	if opts.AccuracyHintMeters > 0 {
		u = fmt.Sprintf("%s?accuracy_hint=%g", u, opts.AccuracyHintMeters)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Fix{}, err
	}

	resp, err := p.HTTP.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Fix{}, ErrTimeout
		}
		return Fix{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Fix{}, ErrPermissionDenied
	case resp.StatusCode == http.StatusNotImplemented:
		return Fix{}, ErrUnsupported
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return Fix{}, fmt.Errorf("%w: %s: %s", ErrPositionUnavailable, resp.Status, string(body))
	}

	var out struct {
		Lat            float64   `json:"lat"`
		Lng            float64   `json:"lng"`
		AccuracyMeters float64   `json:"accuracy_m"`
		MeasuredAt     time.Time `json:"measured_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Fix{}, fmt.Errorf("%w: decode response: %v", ErrPositionUnavailable, err)
	}
	point := geo.Point{Lat: out.Lat, Lng: out.Lng}
	if !point.Valid() {
		return Fix{}, fmt.Errorf("%w: coordinates out of bounds", ErrPositionUnavailable)
	}
	if out.MeasuredAt.IsZero() {
		out.MeasuredAt = time.Now()
	}
	return Fix{Point: point, AccuracyMeters: out.AccuracyMeters, MeasuredAt: out.MeasuredAt}, nil
}
