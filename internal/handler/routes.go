package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shuttleattendance/internal/auth"
	"shuttleattendance/internal/httpmiddleware"
)

// Routes mounts the API on r. limiter may be nil to disable rate limiting.
func (h *Handler) Routes(r *gin.Engine, limiter *httpmiddleware.TokenBucket) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	v1 := r.Group("/v1")
	session := v1.Group("/supervisors")
	if limiter != nil {
		session.Use(limiter.Middleware(httpmiddleware.ByClientIP))
	}
	session.POST("/session", h.IssueSession)

	authed := v1.Group("", auth.SupervisorAuth(h.cfg.SigningKey, h.cfg.Issuer))
	if limiter != nil {
		authed.Use(limiter.Middleware(httpmiddleware.BySupervisor))
	}
	authed.POST("/attendance/register", auth.RequireRole(auth.RoleSupervisor, auth.RoleAdmin), h.RegisterAttendance)

	admin := authed.Group("/attendance", auth.RequireRole(auth.RoleAdmin))
	admin.GET("", h.ListAttendance)
	admin.GET("/summary", h.Summary)
	admin.GET("/tally", h.Tally)
}
