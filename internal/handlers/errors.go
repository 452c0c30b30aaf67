package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fittrack/backend/internal/services/affiliate"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// statusFor maps affiliate errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, affiliate.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, affiliate.ErrDuplicateCode):
		return http.StatusConflict
	case errors.Is(err, affiliate.ErrInactiveCode), errors.Is(err, affiliate.ErrSelfReferral):
		return http.StatusUnprocessableEntity
	case errors.Is(err, affiliate.ErrInvalidPercentage), errors.Is(err, affiliate.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are logged
// and replaced with a generic message.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"module", "handlers",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// queryTime parses an optional RFC3339 or YYYY-MM-DD query parameter
func queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	t, err := cast.ToTimeE(raw)
	if err != nil {
		return nil, errors.New("invalid " + key + ": use RFC3339 or YYYY-MM-DD")
	}
	t = t.UTC()
	return &t, nil
}

// queryInt parses an optional integer query parameter
func queryInt(c *gin.Context, key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil || v < 0 {
		return 0, errors.New("invalid " + key)
	}
	return v, nil
}
