package apierrors

import (
	"errors"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{NewNotFoundError("container", "abc"), http.StatusNotFound},
		{NewConflictError("container", "already exists"), http.StatusConflict},
		{NewUnschedulableError("no adapter"), http.StatusUnprocessableEntity},
		{NewValidationError("image", "required"), http.StatusBadRequest},
		{NewTransientError("op", errors.New("blip")), http.StatusServiceUnavailable},
		{NewFatalError("op", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestTransientErrorUnwrap(t *testing.T) {
	cause := errors.New("network blip")
	err := NewTransientError("runpod.create", cause)
	if !errors.Is(err, cause) {
		t.Error("expected TransientError to unwrap to its cause")
	}
}

func TestIsNotFoundErrorMatchesThroughUnwrap(t *testing.T) {
	base := NewNotFoundError("secret", "xyz")
	wrapped := NewTransientError("lookup", base)
	if _, ok := IsNotFoundError(wrapped); !ok {
		t.Error("expected NotFoundError to be found through TransientError's Unwrap chain")
	}
	if _, ok := IsNotFoundError(base); !ok {
		t.Error("expected base NotFoundError to match")
	}
}

func TestIsUnschedulableError(t *testing.T) {
	err := NewUnschedulableError("no accelerator available")
	if _, ok := IsUnschedulableError(err); !ok {
		t.Error("expected UnschedulableError to match itself")
	}
	if _, ok := IsUnschedulableError(errors.New("other")); ok {
		t.Error("plain error should not match UnschedulableError")
	}
}
