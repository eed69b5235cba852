// Package payload serializes the scannable check-in payload. The payload is
// self-contained: token plus anchor location is everything a scanning client
// needs to submit a check-in without a prior network round trip.
package payload

import (
	"encoding/json"
	"errors"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"

	"presence/internal/geo"
	"presence/internal/session"
)

// ErrMalformed marks payload bytes that cannot be decoded.
var ErrMalformed = errors.New("payload: malformed")

// Payload is the QR code content handed from the session manager to the
// scanning client. It is ephemeral and never persisted.
type Payload struct {
	SessionToken string    `json:"sessionToken"`
	Location     geo.Point `json:"location"`
	ClassID      string    `json:"classId,omitempty"`
}

type wirePayload struct {
	SessionToken string     `json:"sessionToken"`
	Location     *geo.Point `json:"location"`
	ClassID      string     `json:"classId,omitempty"`
}

// Encode renders the session into payload bytes (JSON, UTF-8).
func Encode(s session.Session) ([]byte, error) {
	p := Payload{SessionToken: s.Token, Location: s.Anchor, ClassID: s.ClassID}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("payload: encode: %w", err)
	}
	return data, nil
}

// Decode parses payload bytes back into a Payload.
func Decode(data []byte) (Payload, error) {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.SessionToken == "" {
		return Payload{}, fmt.Errorf("%w: missing sessionToken", ErrMalformed)
	}
	if w.Location == nil {
		return Payload{}, fmt.Errorf("%w: missing location", ErrMalformed)
	}
	if !w.Location.Valid() {
		return Payload{}, fmt.Errorf("%w: location out of bounds", ErrMalformed)
	}
	return Payload{SessionToken: w.SessionToken, Location: *w.Location, ClassID: w.ClassID}, nil
}

// QRImage renders the session's payload as a QR code PNG of size x size
// pixels.
func QRImage(s session.Session, size int) ([]byte, error) {
	data, err := Encode(s)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(string(data), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("payload: render qr: %w", err)
	}
	return png, nil
}
