package routed

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyMapsEachKindToItsStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&ValidationError{Fields: map[string][]string{"name": {"required"}}}, http.StatusUnprocessableEntity},
		{&NotFoundError{Resource: "widget"}, http.StatusNotFound},
		{&UnauthorizedError{}, http.StatusUnauthorized},
		{&ForbiddenError{}, http.StatusForbidden},
		{&MethodNotAllowedError{Allowed: []string{"GET"}}, http.StatusMethodNotAllowed},
		{&FileTooLargeError{FieldName: "avatar", Limit: 10}, http.StatusRequestEntityTooLarge},
		{&FileQuotaExceededError{FieldName: "avatar", Limit: 10}, http.StatusRequestEntityTooLarge},
		{&FileExtensionNotAllowedError{FieldName: "avatar", Extension: ".exe"}, http.StatusUnsupportedMediaType},
		{NewEngineError(400, "bad", "bad request"), http.StatusBadRequest},
	}

	for _, c := range cases {
		_, status := classify(c.err)
		assert.Equal(t, c.status, status, "%T", c.err)
	}
}

func TestClassifyFallsBackToInternalForPlainError(t *testing.T) {
	kind, status := classify(assertPlainError("boom"))
	assert.Equal(t, KindInternal, kind)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestEngineErrorWithoutStatusFallsBackTo500(t *testing.T) {
	_, status := classify(&EngineError{Code: "x", Message: "no status set"})
	assert.Equal(t, http.StatusInternalServerError, status)
}

type assertPlainError string

func (e assertPlainError) Error() string { return string(e) }
