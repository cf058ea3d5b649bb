package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shuttleattendance/internal/attendance"
	"shuttleattendance/internal/auth"
	"shuttleattendance/internal/tally"
)

// TallyReader serves the live per-day counters kept by the worker.
type TallyReader interface {
	Day(ctx context.Context, dateKey string) (tally.Day, error)
}

// Config carries the settings the HTTP layer needs.
type Config struct {
	SigningKey   string
	Issuer       string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	IssueTokens  bool
	StoreTimeout time.Duration
}

// Handler serves the attendance API.
type Handler struct {
	svc    *attendance.Service
	tally  TallyReader
	cfg    Config
	log    *zap.Logger
	checks map[string]func(context.Context) error
}

// New creates a Handler. tally may be nil when Redis is not configured.
func New(svc *attendance.Service, tally TallyReader, cfg Config, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Handler{svc: svc, tally: tally, cfg: cfg, log: log, checks: map[string]func(context.Context) error{}}
}

// AddCheck registers a dependency probed by /healthz.
func (h *Handler) AddCheck(name string, fn func(context.Context) error) {
	h.checks[name] = fn
}

func (h *Handler) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.cfg.StoreTimeout)
}

// Healthz reports each registered dependency.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	deps := gin.H{}
	for name, check := range h.checks {
		ok := check(ctx) == nil
		deps[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "dependencies": deps})
}

// RegisterAttendance handles a supervisor's QR scan.
func (h *Handler) RegisterAttendance(c *gin.Context) {
	var in attendance.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respondError(c, h.log, &attendance.ValidationError{Reason: "Invalid request body"})
		return
	}

	if claims, ok := auth.FromContext(c); ok {
		sid := strings.TrimSpace(in.SupervisorID)
		if sid != "" && claims.Role != auth.RoleAdmin && sid != claims.Subject {
			respondFail(c, http.StatusForbidden, "supervisorId does not match the signed-in supervisor", nil)
			return
		}
		if strings.TrimSpace(in.SupervisorName) == "" {
			in.SupervisorName = claims.Name
		}
	}

	ctx, cancel := h.withTimeout(c)
	defer cancel()
	rec, err := h.svc.Register(ctx, in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, http.StatusCreated, "Attendance registered successfully", gin.H{"attendance": rec})
}

// ListAttendance lists records for admin reporting.
func (h *Handler) ListAttendance(c *gin.Context) {
	f := attendance.Filter{
		SupervisorID: c.Query("supervisorId"),
		Status:       c.Query("status"),
		Limit:        queryInt(c, "limit", 50),
		Offset:       queryInt(c, "offset", 0),
	}
	if d := c.Query("date"); d != "" {
		day, err := attendance.ParseDay(d, h.svc.Location())
		if err != nil {
			respondError(c, h.log, &attendance.ValidationError{Reason: "date must be YYYY-MM-DD"})
			return
		}
		f.Start, f.End = attendance.DayBounds(day, h.svc.Location())
	}

	ctx, cancel := h.withTimeout(c)
	defer cancel()
	recs, err := h.svc.List(ctx, f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	respondOK(c, http.StatusOK, "ok", gin.H{"attendance": recs, "count": len(recs)})
}

// Summary counts accepted records per slot for a day.
func (h *Handler) Summary(c *gin.Context) {
	day, ok := h.dayParam(c)
	if !ok {
		return
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	counts, err := h.svc.Summary(ctx, day)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	var total int64
	for _, sc := range counts {
		total += sc.Count
	}
	respondOK(c, http.StatusOK, "ok", gin.H{
		"date":  attendance.DateKey(day, h.svc.Location()),
		"slots": counts,
		"total": total,
	})
}

// Tally returns the worker-maintained live counters for a day.
func (h *Handler) Tally(c *gin.Context) {
	if h.tally == nil {
		respondFail(c, http.StatusServiceUnavailable, "live tallies are not configured", nil)
		return
	}
	day, ok := h.dayParam(c)
	if !ok {
		return
	}
	ctx, cancel := h.withTimeout(c)
	defer cancel()
	t, err := h.tally.Day(ctx, attendance.DateKey(day, h.svc.Location()))
	if err != nil {
		h.log.Error("read tally", zap.Error(err))
		respondFail(c, http.StatusInternalServerError, "Internal server error, please try again", nil)
		return
	}
	respondOK(c, http.StatusOK, "ok", gin.H{"tally": t})
}

type sessionRequest struct {
	SupervisorID   string `json:"supervisorId" binding:"required"`
	SupervisorName string `json:"supervisorName"`
	Role           string `json:"role" binding:"omitempty,oneof=supervisor admin"`
}

// IssueSession signs tokens for a supervisor. Credentials are checked by the portal's
// auth service; this endpoint exists for development deployments only.
func (h *Handler) IssueSession(c *gin.Context) {
	if !h.cfg.IssueTokens {
		respondFail(c, http.StatusNotFound, "token issuing is disabled", nil)
		return
	}
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondFail(c, http.StatusBadRequest, "supervisorId is required", gin.H{"error": "ValidationError"})
		return
	}
	role := req.Role
	if role == "" {
		role = auth.RoleSupervisor
	}
	tokens, err := auth.Issue(req.SupervisorID, req.SupervisorName, role, h.cfg.Issuer, h.cfg.SigningKey, h.cfg.AccessTTL, h.cfg.RefreshTTL)
	if err != nil {
		h.log.Error("issue token", zap.Error(err))
		respondFail(c, http.StatusInternalServerError, "token issue failed", nil)
		return
	}
	respondOK(c, http.StatusCreated, "session issued", gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

func (h *Handler) dayParam(c *gin.Context) (time.Time, bool) {
	d := c.Query("date")
	if d == "" {
		return time.Now().In(h.svc.Location()), true
	}
	day, err := attendance.ParseDay(d, h.svc.Location())
	if err != nil {
		respondError(c, h.log, &attendance.ValidationError{Reason: "date must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return day, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
