// Package apiclient talks to the check-in API from the student's device and
// maps wire failures back to the protocol's typed errors.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"presence/internal/attendance"
	"presence/internal/geo"
)

// Client submits check-ins to the server.
type Client struct {
	BaseURL string
	Token   string // bearer token from the account service
	HTTP    *http.Client
}

// New creates a client. Deadlines come from the caller's context.
func New(baseURL, token string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Token: token, HTTP: &http.Client{}}
}

type checkInRequest struct {
	SessionToken string    `json:"session_token"`
	Location     geo.Point `json:"location"`
}

type apiError struct {
	Error          string  `json:"error"`
	Code           string  `json:"code"`
	DistanceMeters float64 `json:"distance_meters"`
	LimitMeters    float64 `json:"limit_meters"`
}

// Submit sends one check-in. Protocol rejections come back as the attendance
// package's errors so callers can branch on them with errors.Is/As.
func (c *Client) Submit(ctx context.Context, sessionToken string, loc geo.Point) (attendance.Record, error) {
	body, err := json.Marshal(checkInRequest{SessionToken: sessionToken, Location: loc})
	if err != nil {
		return attendance.Record{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/checkins", bytes.NewReader(body))
	if err != nil {
		return attendance.Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("apiclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		var rec attendance.Record
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return attendance.Record{}, fmt.Errorf("apiclient: decode response: %w", err)
		}
		return rec, nil
	}

	raw, _ := io.ReadAll(resp.Body)
	var apiErr apiError
	_ = json.Unmarshal(raw, &apiErr)

	switch apiErr.Code {
	case "invalid_token":
		return attendance.Record{}, attendance.ErrInvalidToken
	case "session_expired":
		return attendance.Record{}, attendance.ErrSessionExpired
	case "duplicate_check_in":
		return attendance.Record{}, attendance.ErrDuplicate
	case "out_of_range":
		return attendance.Record{}, &attendance.OutOfRangeError{
			DistanceMeters: apiErr.DistanceMeters,
			LimitMeters:    apiErr.LimitMeters,
		}
	}
	return attendance.Record{}, fmt.Errorf("apiclient: %s: %s", resp.Status, string(raw))
}
