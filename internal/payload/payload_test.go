package payload

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/geo"
	"presence/internal/session"
)

func testSession() session.Session {
	return session.Session{
		ID:        "s1",
		ClassID:   "c101",
		Token:     "tok-abc",
		Anchor:    geo.Point{Lat: 40.0, Lng: -75.0},
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(30 * time.Minute),
		Active:    true,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data, err := Encode(testSession())
	require.NoError(t, err)

	p, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", p.SessionToken)
	assert.Equal(t, geo.Point{Lat: 40.0, Lng: -75.0}, p.Location)
	assert.Equal(t, "c101", p.ClassID)
}

func TestDecodeWithoutClassID(t *testing.T) {
	p, err := Decode([]byte(`{"sessionToken":"tok","location":{"lat":1,"lng":2}}`))
	require.NoError(t, err)
	assert.Empty(t, p.ClassID)
}

func TestDecodeMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", "@@@"},
		{"empty object", "{}"},
		{"missing token", `{"location":{"lat":1,"lng":2}}`},
		{"missing location", `{"sessionToken":"tok"}`},
		{"lat out of bounds", `{"sessionToken":"tok","location":{"lat":91,"lng":0}}`},
		{"lng out of bounds", `{"sessionToken":"tok","location":{"lat":0,"lng":-181}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.data))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestQRImage(t *testing.T) {
	png, err := QRImage(testSession(), 256)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected a PNG image")
}
