// Package classdir reads class anchor locations from the class-management
// collaborator. The class registry itself lives there; this side only looks
// up the anchor a new session should snapshot.
package classdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"presence/internal/geo"
)

// ErrUnknownClass marks a class id the directory has no record of.
var ErrUnknownClass = errors.New("classdir: unknown class")

// HTTPDirectory queries the class-management service for anchors.
type HTTPDirectory struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPDirectory creates a directory client.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: &http.Client{}}
}

// Anchor fetches the class's registered location.
func (d *HTTPDirectory) Anchor(ctx context.Context, classID string) (geo.Point, error) {
	u := d.BaseURL + "/classes/" + url.PathEscape(classID) + "/location"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return geo.Point{}, err
	}
	resp, err := d.HTTP.Do(req)
	if err != nil {
		return geo.Point{}, fmt.Errorf("classdir: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return geo.Point{}, ErrUnknownClass
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return geo.Point{}, fmt.Errorf("classdir: %s: %s", resp.Status, string(body))
	}

	var p geo.Point
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return geo.Point{}, fmt.Errorf("classdir: decode response: %w", err)
	}
	if !p.Valid() {
		return geo.Point{}, fmt.Errorf("classdir: class %s has invalid anchor", classID)
	}
	return p, nil
}

// Static serves anchors from a fixed map, for dev setups and tests.
type Static map[string]geo.Point

// Anchor looks the class up in the map.
func (s Static) Anchor(_ context.Context, classID string) (geo.Point, error) {
	p, ok := s[classID]
	if !ok {
		return geo.Point{}, ErrUnknownClass
	}
	return p, nil
}

// ParseStatic parses "c101=40.0:-75.0,c102=41.2:-73.9" into a Static
// directory.
func ParseStatic(spec string) (Static, error) {
	dir := make(Static)
	if spec == "" {
		return dir, nil
	}
	for _, entry := range strings.Split(spec, ",") {
		classID, coords, ok := strings.Cut(strings.TrimSpace(entry), "=")
		if !ok {
			return nil, fmt.Errorf("classdir: bad entry %q", entry)
		}
		latStr, lngStr, ok := strings.Cut(coords, ":")
		if !ok {
			return nil, fmt.Errorf("classdir: bad coordinates in %q", entry)
		}
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			return nil, fmt.Errorf("classdir: bad latitude in %q: %w", entry, err)
		}
		lng, err := strconv.ParseFloat(lngStr, 64)
		if err != nil {
			return nil, fmt.Errorf("classdir: bad longitude in %q: %w", entry, err)
		}
		p := geo.Point{Lat: lat, Lng: lng}
		if !p.Valid() {
			return nil, fmt.Errorf("classdir: coordinates out of bounds in %q", entry)
		}
		dir[classID] = p
	}
	return dir, nil
}
