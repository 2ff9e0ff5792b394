// Package middleware provides the gin middleware chain the control-plane
// API runs: correlation ids, structured request logging, and bearer-token
// authentication. Nebulous has owners, not tenants, so BearerAuth
// resolves the caller's owner principal from a bearer token rather than
// extracting a tenant from a JWT subject.
package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDKey = "request_id"
	OwnerKey     = "owner"
)

// RequestID generates or extracts a correlation id for request tracing.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

// StructuredLogger logs every request's method, path, status, latency,
// and request id through logrus so it composes with the rest of the
// ambient logging.
func StructuredLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"duration":   time.Since(start),
			"ip":         c.ClientIP(),
			"request_id": GetRequestID(c),
		}).Info("http request")
	}
}

// BearerAuth validates the Authorization header against the configured
// root API key and resolves the caller's owner principal. There is no
// external identity provider to verify a bearer token against, so a
// non-root token is accepted as-is and its value becomes the caller's
// owner id, while the root key authenticates as rootOwner, the principal
// every record is additionally visible to (config.AppConfig.RootOwner).
func BearerAuth(rootAPIKey, rootOwner string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			c.AbortWithStatusJSON(401, gin.H{"success": false, "message": "missing bearer token"})
			return
		}

		owner := token
		if rootAPIKey != "" && token == rootAPIKey {
			owner = rootOwner
		}

		c.Set(OwnerKey, owner)
		c.Next()
	}
}

// GetRequestID reads the correlation id RequestID set.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(RequestIDKey); ok {
		return v.(string)
	}
	return ""
}

// GetOwner reads the caller's owner principal BearerAuth resolved.
func GetOwner(c *gin.Context) string {
	if v, ok := c.Get(OwnerKey); ok {
		return v.(string)
	}
	return ""
}
