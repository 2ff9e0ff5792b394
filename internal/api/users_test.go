package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUserMeReportsOwnerAndRootFlag(t *testing.T) {
	h := NewUserHandler(testRootOwner)

	router := newRouterWithOwner("owner-1")
	router.GET("/v1/users/me", h.Me)
	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Data struct {
			Owner  string `json:"owner"`
			IsRoot bool   `json:"is_root"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Data.Owner != "owner-1" {
		t.Errorf("owner = %q, want owner-1", body.Data.Owner)
	}
	if body.Data.IsRoot {
		t.Error("is_root = true, want false for a non-root owner")
	}
}

func TestUserMeFlagsRootOwner(t *testing.T) {
	h := NewUserHandler(testRootOwner)

	router := newRouterWithOwner(testRootOwner)
	router.GET("/v1/users/me", h.Me)
	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body struct {
		Data struct {
			IsRoot bool `json:"is_root"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Data.IsRoot {
		t.Error("is_root = false, want true for the root owner")
	}
}
