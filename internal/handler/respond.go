package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shuttleattendance/internal/attendance"
)

// Every response body is {success, message, ...payload}.

func respondOK(c *gin.Context, status int, message string, payload gin.H) {
	body := gin.H{"success": true, "message": message}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

func respondFail(c *gin.Context, status int, message string, payload gin.H) {
	body := gin.H{"success": false, "message": message}
	for k, v := range payload {
		body[k] = v
	}
	c.JSON(status, body)
}

// respondError maps the attendance error taxonomy onto HTTP. Anything unclassified
// is logged and answered with a generic 500 so driver errors never reach the caller.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var (
		dup *attendance.DuplicateScanError
		ve  *attendance.ValidationError
		qe  *attendance.MalformedQRError
		pe  *attendance.PersistenceError
	)
	switch {
	case errors.As(err, &dup):
		respondFail(c, http.StatusConflict, dup.Error(), gin.H{
			"isDuplicate":        true,
			"existingAttendance": dup.Existing,
		})
	case errors.As(err, &ve):
		respondFail(c, http.StatusBadRequest, ve.Error(), gin.H{"error": "ValidationError"})
	case errors.As(err, &qe):
		respondFail(c, http.StatusBadRequest, qe.Error(), gin.H{"error": "MalformedQRError"})
	case errors.As(err, &pe):
		log.Error("attendance store failure", zap.String("op", pe.Op), zap.Error(pe.Err), zap.String("path", c.FullPath()))
		respondFail(c, http.StatusInternalServerError, "Internal server error, please try again", nil)
	default:
		log.Error("unexpected attendance failure", zap.Error(err), zap.String("path", c.FullPath()))
		respondFail(c, http.StatusInternalServerError, "Internal server error, please try again", nil)
	}
}
