// Package httpapi exposes the session control surface and the check-in
// surface over HTTP.
package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/geo"
	"presence/internal/payload"
	"presence/internal/session"
)

// Error codes carried in failure responses so clients can branch without
// parsing messages.
const (
	codeInvalidToken     = "invalid_token"
	codeSessionExpired   = "session_expired"
	codeOutOfRange       = "out_of_range"
	codeDuplicateCheckIn = "duplicate_check_in"
	codeAlreadyActive    = "already_active"
	codeNotActive        = "not_active"
	codeNotFound         = "not_found"
	codeBadRequest       = "bad_request"
	codeTransient        = "transient_failure"
)

// Server wires the managers into gin handlers.
type Server struct {
	sessions *session.Manager
	checkins *attendance.Processor

	jwtSigningKey string
	jwtIssuer     string
}

// New creates a server.
func New(sessions *session.Manager, checkins *attendance.Processor, jwtSigningKey, jwtIssuer string) *Server {
	return &Server{
		sessions:      sessions,
		checkins:      checkins,
		jwtSigningKey: jwtSigningKey,
		jwtIssuer:     jwtIssuer,
	}
}

// Register mounts all routes on the engine.
func (s *Server) Register(r *gin.Engine) {
	instructor := r.Group("/v1", auth.RequireRole(s.jwtSigningKey, s.jwtIssuer, auth.RoleInstructor))
	instructor.POST("/sessions", s.startSession)
	instructor.POST("/sessions/:id/extend", s.extendSession)
	instructor.POST("/sessions/:id/end", s.endSession)
	instructor.GET("/sessions/:id/qr", s.sessionQR)
	instructor.GET("/sessions/:id/attendance", s.exportAttendance)
	instructor.GET("/classes/:classId/session", s.activeSession)

	student := r.Group("/v1", auth.RequireRole(s.jwtSigningKey, s.jwtIssuer, auth.RoleStudent))
	student.POST("/checkins", s.checkIn)
}

type sessionResponse struct {
	ID        string    `json:"id"`
	ClassID   string    `json:"class_id"`
	Token     string    `json:"token"`
	Anchor    latLng    `json:"anchor"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func toSessionResponse(s session.Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		ClassID:   s.ClassID,
		Token:     s.Token,
		Anchor:    latLng{s.Anchor.Lat, s.Anchor.Lng},
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		Active:    s.Active,
	}
}

func (s *Server) startSession(c *gin.Context) {
	var req struct {
		ClassID         string `json:"class_id" binding:"required"`
		DurationMinutes int    `json:"duration_minutes" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeBadRequest})
		return
	}

	sess, err := s.sessions.Start(c.Request.Context(), req.ClassID,
		time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

func (s *Server) extendSession(c *gin.Context) {
	var req struct {
		AdditionalMinutes int `json:"additional_minutes" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeBadRequest})
		return
	}

	sess, err := s.sessions.Extend(c.Request.Context(), c.Param("id"),
		time.Duration(req.AdditionalMinutes)*time.Minute)
	if err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (s *Server) endSession(c *gin.Context) {
	if err := s.sessions.End(c.Request.Context(), c.Param("id")); err != nil {
		writeSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

func (s *Server) activeSession(c *gin.Context) {
	sess, err := s.sessions.ActiveForClass(c.Request.Context(), c.Param("classId"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	if sess == nil {
		c.JSON(http.StatusOK, gin.H{"session": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": toSessionResponse(*sess)})
}

func (s *Server) sessionQR(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeSessionError(c, err)
		return
	}
	png, err := payload.QRImage(sess, qrSize(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "qr render failed", "code": codeTransient})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func qrSize(c *gin.Context) int {
	const def = 512
	var req struct {
		Size int `form:"size"`
	}
	if err := c.ShouldBindQuery(&req); err != nil || req.Size < 64 || req.Size > 2048 {
		return def
	}
	return req.Size
}

func (s *Server) exportAttendance(c *gin.Context) {
	records, err := s.checkins.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": codeTransient})
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (s *Server) checkIn(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	var req struct {
		SessionToken string `json:"session_token" binding:"required"`
		Location     *struct {
			Lat *float64 `json:"lat" binding:"required"`
			Lng *float64 `json:"lng" binding:"required"`
		} `json:"location" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		observeCheckin("bad_request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeBadRequest})
		return
	}

	claimed := geo.Point{Lat: *req.Location.Lat, Lng: *req.Location.Lng}
	rec, err := s.checkins.CheckIn(c.Request.Context(), req.SessionToken, claims.Subject, claimed)
	if err != nil {
		writeCheckinError(c, err)
		return
	}
	observeCheckin("accepted")
	c.JSON(http.StatusCreated, rec)
}

func writeSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeAlreadyActive})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": codeNotFound})
	case errors.Is(err, session.ErrNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeNotActive})
	case errors.Is(err, session.ErrDurationOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeBadRequest})
	default:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": codeTransient})
	}
}

func writeCheckinError(c *gin.Context, err error) {
	var oor *attendance.OutOfRangeError
	switch {
	case errors.Is(err, attendance.ErrInvalidToken):
		observeCheckin(codeInvalidToken)
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": codeInvalidToken})
	case errors.Is(err, attendance.ErrSessionExpired):
		observeCheckin(codeSessionExpired)
		c.JSON(http.StatusGone, gin.H{"error": err.Error(), "code": codeSessionExpired})
	case errors.As(err, &oor):
		observeCheckin(codeOutOfRange)
		c.JSON(http.StatusForbidden, gin.H{
			"error":           err.Error(),
			"code":            codeOutOfRange,
			"distance_meters": oor.DistanceMeters,
			"limit_meters":    oor.LimitMeters,
		})
	case errors.Is(err, attendance.ErrDuplicate):
		observeCheckin(codeDuplicateCheckIn)
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": codeDuplicateCheckIn})
	default:
		// Storage trouble: retryable, unlike a duplicate.
		observeCheckin(codeTransient)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": codeTransient})
	}
}
