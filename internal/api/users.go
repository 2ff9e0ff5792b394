package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"nebulous/internal/middleware"
)

// UserHandler serves /v1/users/me: the only identity the API exposes,
// since there is no profile store of our own, just the owner principal
// resolved from the caller's bearer token.
type UserHandler struct {
	rootOwner string
}

func NewUserHandler(rootOwner string) *UserHandler {
	return &UserHandler{rootOwner: rootOwner}
}

// Me reports the caller's resolved owner principal and whether it is the
// root principal every record is additionally visible to.
func (h *UserHandler) Me(c *gin.Context) {
	owner := middleware.GetOwner(c)
	SuccessResponse(c, http.StatusOK, "current user", gin.H{
		"owner":   owner,
		"is_root": owner == h.rootOwner,
	})
}
