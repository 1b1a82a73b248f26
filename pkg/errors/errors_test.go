package errors

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"lock conflict", fmt.Errorf("opening writer: %w", ErrLockConflict), http.StatusConflict},
		{"malformed query", MalformedQuery("empty field in %q", ":x"), http.StatusBadRequest},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"io failure", IOFailure("commit", os.ErrPermission), http.StatusInternalServerError},
		{"extraction empty", ErrExtractionEmpty, http.StatusUnprocessableEntity},
		{"unavailable", ErrUnavailable, http.StatusServiceUnavailable},
		{"app error", New(ErrInternal, http.StatusTeapot, "x"), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestIOFailureWrapsBoth(t *testing.T) {
	err := IOFailure("writing manifest", os.ErrPermission)
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.Contains(t, err.Error(), "writing manifest")
}

func TestMalformedQueryMessage(t *testing.T) {
	err := MalformedQuery("field %q has no term", "title")
	assert.ErrorIs(t, err, ErrMalformedQuery)
	assert.Equal(t, `malformed query: field "title" has no term`, err.Error())
}
