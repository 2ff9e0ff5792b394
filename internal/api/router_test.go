package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nebulous/internal/metrics"
	"nebulous/internal/models"
	"nebulous/internal/platform"
	"nebulous/internal/repository"
)

func newTestRouter(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Secret{}, &models.Container{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestRouterHealthzIsUnauthenticated(t *testing.T) {
	db := newTestRouter(t)
	router := NewRouter(RouterConfig{
		DB:         db,
		Store:      repository.NewStore(db),
		Registry:   platform.NewRegistry(),
		Metrics:    metrics.New(metrics.Config{Namespace: "nebulous", Subsystem: "test"}),
		Log:        logrus.New(),
		RootOwner:  testRootOwner,
		RootAPIKey: "root-key",
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouterV1RequiresBearerAuth(t *testing.T) {
	db := newTestRouter(t)
	router := NewRouter(RouterConfig{
		DB:         db,
		Store:      repository.NewStore(db),
		Registry:   platform.NewRegistry(),
		Metrics:    metrics.New(metrics.Config{Namespace: "nebulous", Subsystem: "test2"}),
		Log:        logrus.New(),
		RootOwner:  testRootOwner,
		RootAPIKey: "root-key",
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/containers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without a bearer token", rec.Code)
	}
}

func TestRouterV1AcceptsRootAPIKey(t *testing.T) {
	db := newTestRouter(t)
	router := NewRouter(RouterConfig{
		DB:         db,
		Store:      repository.NewStore(db),
		Registry:   platform.NewRegistry(),
		Metrics:    metrics.New(metrics.Config{Namespace: "nebulous", Subsystem: "test3"}),
		Log:        logrus.New(),
		RootOwner:  testRootOwner,
		RootAPIKey: "root-key",
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/containers", nil)
	req.Header.Set("Authorization", "Bearer root-key")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for the root API key, body=%s", rec.Code, rec.Body.String())
	}
}
