package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nebulous/internal/apierrors"
	"nebulous/internal/middleware"
	"nebulous/internal/models"
	"nebulous/internal/repository"
	"nebulous/internal/vault"
)

// SecretHandler serves /v1/secrets. Values never leave the vault boundary
// in responses except through Get, which reveals a secret only to its
// owner or to the root owner.
type SecretHandler struct {
	store     *repository.Store
	secrets   *vault.SecretService
	rootOwner string
	log       *logrus.Entry
}

func NewSecretHandler(store *repository.Store, secrets *vault.SecretService, rootOwner string, log *logrus.Logger) *SecretHandler {
	return &SecretHandler{
		store:     store,
		secrets:   secrets,
		rootOwner: rootOwner,
		log:       log.WithField("component", "api.secrets"),
	}
}

type secretRequest struct {
	Namespace string            `json:"namespace" binding:"required"`
	Name      string            `json:"name" binding:"required"`
	Value     string            `json:"value" binding:"required"`
	Labels    map[string]string `json:"labels"`
}

func (h *SecretHandler) Create(c *gin.Context) {
	var req secretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ValidationErrorResponse(c, "body", err.Error())
		return
	}
	owner := middleware.GetOwner(c)
	secret, err := h.secrets.Create(c.Request.Context(), req.Namespace, req.Name, owner, owner, []byte(req.Value), req.Labels)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, "secret created", secret)
}

// List returns secret metadata only; values are never included in a list
// response.
func (h *SecretHandler) List(c *gin.Context) {
	owner := middleware.GetOwner(c)
	secrets, err := h.store.Secrets.FindByOwners(c.Request.Context(), []string{owner})
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "secrets listed", secrets)
}

func (h *SecretHandler) resolve(c *gin.Context) (*models.Secret, bool) {
	secret, err := h.store.Secrets.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		RespondError(c, h.log, err)
		return nil, false
	}
	owner := middleware.GetOwner(c)
	if secret.Owner != owner && owner != h.rootOwner {
		RespondError(c, h.log, apierrors.NewNotFoundError("secret", secret.ID))
		return nil, false
	}
	return secret, true
}

// Get reveals a secret's decrypted value to its owner (or root) only.
func (h *SecretHandler) Get(c *gin.Context) {
	secret, ok := h.resolve(c)
	if !ok {
		return
	}
	_, plaintext, err := h.secrets.Reveal(c.Request.Context(), secret.ID)
	if err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "secret revealed", gin.H{
		"id":        secret.ID,
		"namespace": secret.Namespace,
		"name":      secret.Name,
		"value":     string(plaintext),
	})
}

func (h *SecretHandler) Delete(c *gin.Context) {
	secret, ok := h.resolve(c)
	if !ok {
		return
	}
	if err := h.store.Secrets.Delete(c.Request.Context(), secret.ID); err != nil {
		RespondError(c, h.log, err)
		return
	}
	SuccessResponse(c, http.StatusOK, "secret deleted", nil)
}
