package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/classdir"
	"presence/internal/geo"
	"presence/internal/session"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "presence-test"
)

var classAnchor = geo.Point{Lat: 40.0000, Lng: -75.0000}

func newTestRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := classdir.Static{"c101": classAnchor}
	manager := session.NewManager(session.NewMemoryRepository(), dir, 0, 0)
	processor := attendance.NewProcessor(manager, attendance.NewMemoryRepository(), nil, 50)

	r := gin.New()
	New(manager, processor, testKey, testIssuer).Register(r)
	return r, manager
}

func bearer(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := auth.Issue(subject, role, testIssuer, testKey, time.Minute)
	require.NoError(t, err)
	return "Bearer " + tok
}

func doJSON(t *testing.T, r *gin.Engine, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func startSession(t *testing.T, r *gin.Engine, minutes int) map[string]any {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/v1/sessions", bearer(t, "inst-1", auth.RoleInstructor),
		gin.H{"class_id": "c101", "duration_minutes": minutes})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func checkInBody(token string, p geo.Point) gin.H {
	return gin.H{"session_token": token, "location": gin.H{"lat": p.Lat, "lng": p.Lng}}
}

func TestEndToEndScenario(t *testing.T) {
	r, _ := newTestRouter(t)

	// Instructor starts a 30-minute session for the class at (40, -75).
	sess := startSession(t, r, 30)
	token := sess["token"].(string)

	// Student A is ~5.5m from the anchor: accepted.
	w := doJSON(t, r, http.MethodPost, "/v1/checkins", bearer(t, "stu-a", auth.RoleStudent),
		checkInBody(token, geo.Point{Lat: 40.00005, Lng: -75.0000}))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Student B is ~111m away: rejected with the measured distance.
	w = doJSON(t, r, http.MethodPost, "/v1/checkins", bearer(t, "stu-b", auth.RoleStudent),
		checkInBody(token, geo.Point{Lat: 40.0010, Lng: -75.0000}))
	require.Equal(t, http.StatusForbidden, w.Code)
	var oor struct {
		Code           string  `json:"code"`
		DistanceMeters float64 `json:"distance_meters"`
		LimitMeters    float64 `json:"limit_meters"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &oor))
	assert.Equal(t, "out_of_range", oor.Code)
	assert.InDelta(t, 111, oor.DistanceMeters, 5)
	assert.Equal(t, 50.0, oor.LimitMeters)

	// Student A scans again with the same token: benign duplicate.
	w = doJSON(t, r, http.MethodPost, "/v1/checkins", bearer(t, "stu-a", auth.RoleStudent),
		checkInBody(token, geo.Point{Lat: 40.00005, Lng: -75.0000}))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate_check_in")

	// The export holds exactly student A.
	w = doJSON(t, r, http.MethodGet, "/v1/sessions/"+sess["id"].(string)+"/attendance",
		bearer(t, "inst-1", auth.RoleInstructor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var export struct {
		Count   int                 `json:"count"`
		Records []attendance.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &export))
	require.Equal(t, 1, export.Count)
	assert.Equal(t, "stu-a", export.Records[0].StudentID)
}

func TestCheckInInvalidToken(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/v1/checkins", bearer(t, "stu-a", auth.RoleStudent),
		checkInBody("no-such-token", classAnchor))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_token")
}

func TestCheckInExpiredSession(t *testing.T) {
	r, manager := newTestRouter(t)
	sess := startSession(t, r, 30)

	// End it, then a check-in must report the session as closed.
	require.NoError(t, manager.End(context.Background(), sess["id"].(string)))
	w := doJSON(t, r, http.MethodPost, "/v1/checkins", bearer(t, "stu-a", auth.RoleStudent),
		checkInBody(sess["token"].(string), classAnchor))
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "session_expired")
}

func TestStartSessionConflict(t *testing.T) {
	r, _ := newTestRouter(t)
	startSession(t, r, 30)

	w := doJSON(t, r, http.MethodPost, "/v1/sessions", bearer(t, "inst-1", auth.RoleInstructor),
		gin.H{"class_id": "c101", "duration_minutes": 30})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already_active")
}

func TestExtendSession(t *testing.T) {
	r, _ := newTestRouter(t)
	sess := startSession(t, r, 30)

	w := doJSON(t, r, http.MethodPost, fmt.Sprintf("/v1/sessions/%s/extend", sess["id"]),
		bearer(t, "inst-1", auth.RoleInstructor), gin.H{"additional_minutes": 15})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var extended map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &extended))
	before, err := time.Parse(time.RFC3339Nano, sess["expires_at"].(string))
	require.NoError(t, err)
	after, err := time.Parse(time.RFC3339Nano, extended["expires_at"].(string))
	require.NoError(t, err)
	assert.Equal(t, before.Add(15*time.Minute), after)
}

func TestEndSessionIdempotent(t *testing.T) {
	r, _ := newTestRouter(t)
	sess := startSession(t, r, 30)
	path := fmt.Sprintf("/v1/sessions/%s/end", sess["id"])

	w := doJSON(t, r, http.MethodPost, path, bearer(t, "inst-1", auth.RoleInstructor), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodPost, path, bearer(t, "inst-1", auth.RoleInstructor), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestActiveSessionResume(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/v1/classes/c101/session",
		bearer(t, "inst-1", auth.RoleInstructor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session":null`)

	sess := startSession(t, r, 30)
	w = doJSON(t, r, http.MethodGet, "/v1/classes/c101/session",
		bearer(t, "inst-1", auth.RoleInstructor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), sess["id"].(string))
}

func TestSessionQR(t *testing.T) {
	r, _ := newTestRouter(t)
	sess := startSession(t, r, 30)

	w := doJSON(t, r, http.MethodGet, fmt.Sprintf("/v1/sessions/%s/qr", sess["id"]),
		bearer(t, "inst-1", auth.RoleInstructor), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
}

func TestAuthEnforcement(t *testing.T) {
	r, _ := newTestRouter(t)

	// No token at all.
	w := doJSON(t, r, http.MethodPost, "/v1/sessions", "",
		gin.H{"class_id": "c101", "duration_minutes": 30})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// A student cannot drive the session control surface.
	w = doJSON(t, r, http.MethodPost, "/v1/sessions", bearer(t, "stu-a", auth.RoleStudent),
		gin.H{"class_id": "c101", "duration_minutes": 30})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// An instructor token cannot check in.
	w = doJSON(t, r, http.MethodPost, "/v1/checkins", bearer(t, "inst-1", auth.RoleInstructor),
		checkInBody("tok", classAnchor))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCheckInValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	// Missing location must be a 400, not a zero-coordinate check-in.
	w := doJSON(t, r, http.MethodPost, "/v1/checkins", bearer(t, "stu-a", auth.RoleStudent),
		gin.H{"session_token": "tok"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
