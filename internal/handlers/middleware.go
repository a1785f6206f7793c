package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"abhyasika/internal/metrics"
	"abhyasika/internal/models"
	"abhyasika/internal/services"
)

const sessionKey = "session"

// RequestLogger logs one line per request and records its latency.
func RequestLogger(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	m = metrics.OrNew(m)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		m.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(latency.Seconds())

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
		}
		if sess := sessionFrom(c); sess != nil {
			fields = append(fields, zap.String("session_id", sess.SessionID), zap.String("library_id", sess.LibraryID()))
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// authenticate resolves the bearer token to a live session.
func (h *Handler) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	sess, err := h.sessions.Authenticate(strings.TrimSpace(token))
	if err != nil {
		c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

// tenantOnly admits ADMIN sessions whose license is still valid.
func (h *Handler) tenantOnly(c *gin.Context) {
	sess := sessionFrom(c)
	if sess.LibraryID() == "" {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": services.ErrForbidden.Error()})
		return
	}
	if sess.LicenseExpired(h.now()) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": services.ErrLicenseExpired.Error()})
		return
	}
	c.Next()
}

func (h *Handler) superAdminOnly(c *gin.Context) {
	if !sessionFrom(c).IsSuperAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": services.ErrForbidden.Error()})
		return
	}
	c.Next()
}

func sessionFrom(c *gin.Context) *models.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := v.(*models.Session)
	return sess
}
