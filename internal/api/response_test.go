package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"nebulous/internal/apierrors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestSuccessResponseShape(t *testing.T) {
	c, rec := newTestContext()
	SuccessResponse(c, http.StatusCreated, "container declared", map[string]string{"id": "cont_1"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["message"] != "container declared" {
		t.Errorf("message = %v", body["message"])
	}
	if _, ok := body["data"]; !ok {
		t.Error("expected data field to be present")
	}
}

func TestValidationErrorResponseShape(t *testing.T) {
	c, rec := newTestContext()
	ValidationErrorResponse(c, "image", "is required")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	errs, ok := body["errors"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected errors field, got %v", body["errors"])
	}
	if errs["image"] != "is required" {
		t.Errorf("errors.image = %v", errs["image"])
	}
}

func TestRespondErrorMapsNotFoundTo404(t *testing.T) {
	c, rec := newTestContext()
	log := logrus.New().WithField("test", "respond_error")

	RespondError(c, log, apierrors.NewNotFoundError("container", "cont_missing"))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRespondErrorMapsUnschedulableTo422(t *testing.T) {
	c, rec := newTestContext()
	log := logrus.New().WithField("test", "respond_error")

	RespondError(c, log, apierrors.NewUnschedulableError("no ready adapter"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestRespondErrorMapsPlainErrorTo500(t *testing.T) {
	c, rec := newTestContext()
	log := logrus.New().WithField("test", "respond_error")

	RespondError(c, log, errors.New("unexpected"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}
