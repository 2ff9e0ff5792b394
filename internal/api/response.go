// Package api is the HTTP surface of the control plane: container and
// secret CRUD, health/readiness, and the Prometheus scrape endpoint,
// scoped to owners rather than tenants.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nebulous/internal/apierrors"
	"nebulous/internal/middleware"
)

// SuccessResponse sends a standardized success envelope, matching the
// teacher's handlers.SuccessResponse shape.
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := gin.H{
		"success":    true,
		"message":    message,
		"request_id": middleware.GetRequestID(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		response["data"] = data
	}
	c.JSON(statusCode, response)
}

// ErrorResponse sends a standardized error envelope and logs the
// underlying error through logrus.
func ErrorResponse(c *gin.Context, log *logrus.Entry, statusCode int, message string, err error) {
	if err != nil {
		log.WithError(err).WithField("request_id", middleware.GetRequestID(c)).Error(message)
	}
	response := gin.H{
		"success":    false,
		"message":    message,
		"request_id": middleware.GetRequestID(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	}
	if gin.Mode() == gin.DebugMode && err != nil {
		response["error_details"] = err.Error()
	}
	c.JSON(statusCode, response)
}

// ValidationErrorResponse sends a 400 validation-failure envelope.
func ValidationErrorResponse(c *gin.Context, field, message string) {
	c.JSON(400, gin.H{
		"success":    false,
		"message":    "validation failed",
		"errors":     gin.H{field: message},
		"request_id": middleware.GetRequestID(c),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// RespondError classifies err through apierrors.HTTPStatus and sends the
// matching envelope. Every handler that calls into the store, vault, or
// platform packages funnels its error through here so each error kind
// maps to an HTTP status consistently across the whole API.
func RespondError(c *gin.Context, log *logrus.Entry, err error) {
	ErrorResponse(c, log, apierrors.HTTPStatus(err), err.Error(), err)
}
