package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nebulous/internal/middleware"
	"nebulous/internal/models"
	"nebulous/internal/repository"
	"nebulous/internal/vault"
)

const testRootOwner = "root"

func newTestSecretHandler(t *testing.T) *SecretHandler {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Secret{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	store := repository.NewStore(db)

	key, err := vault.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	secretService := vault.NewSecretService(v, store.Secrets)

	return NewSecretHandler(store, secretService, testRootOwner, logrus.New())
}

func newRouterWithOwner(owner string) *gin.Engine {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.OwnerKey, owner)
		c.Next()
	})
	return router
}

func TestSecretCreateAndGetRoundTrip(t *testing.T) {
	h := newTestSecretHandler(t)
	router := newRouterWithOwner("owner-1")
	router.POST("/v1/secrets", h.Create)
	router.GET("/v1/secrets/:id", h.Get)

	body := []byte(`{"namespace":"default","name":"api-key","value":"s3cr3t"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/secrets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var created struct {
		Data models.Secret `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/secrets/"+created.Data.ID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body=%s", getRec.Code, getRec.Body.String())
	}
	var revealed struct {
		Data struct {
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &revealed); err != nil {
		t.Fatalf("unmarshal get response: %v", err)
	}
	if revealed.Data.Value != "s3cr3t" {
		t.Fatalf("revealed value = %q, want s3cr3t", revealed.Data.Value)
	}
}

func TestSecretGetRejectsOtherOwner(t *testing.T) {
	h := newTestSecretHandler(t)
	creatorRouter := newRouterWithOwner("owner-1")
	creatorRouter.POST("/v1/secrets", h.Create)

	body := []byte(`{"namespace":"default","name":"api-key","value":"s3cr3t"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/secrets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	creatorRouter.ServeHTTP(rec, req)
	var created struct {
		Data models.Secret `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}

	otherRouter := newRouterWithOwner("owner-2")
	otherRouter.GET("/v1/secrets/:id", h.Get)
	getReq := httptest.NewRequest(http.MethodGet, "/v1/secrets/"+created.Data.ID, nil)
	getRec := httptest.NewRecorder()
	otherRouter.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for a non-owner, non-root caller", getRec.Code)
	}
}

func TestSecretGetAllowsRootOwner(t *testing.T) {
	h := newTestSecretHandler(t)
	creatorRouter := newRouterWithOwner("owner-1")
	creatorRouter.POST("/v1/secrets", h.Create)

	body := []byte(`{"namespace":"default","name":"api-key","value":"s3cr3t"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/secrets", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	creatorRouter.ServeHTTP(rec, req)
	var created struct {
		Data models.Secret `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}

	rootRouter := newRouterWithOwner(testRootOwner)
	rootRouter.GET("/v1/secrets/:id", h.Get)
	getReq := httptest.NewRequest(http.MethodGet, "/v1/secrets/"+created.Data.ID, nil)
	getRec := httptest.NewRecorder()
	rootRouter.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("status = %d, want root owner to reveal any secret", getRec.Code)
	}
}
