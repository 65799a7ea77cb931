package routed

import (
	"fmt"
	"net/http"
)

// ErrorKind identifies a structural category of error the dispatcher knows
// how to map to a status code and a negotiated body, per the error taxonomy.
type ErrorKind uint8

// Error kinds, see the negotiator in negotiate.go for their default status
// codes and body shapes.
const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindMethodNotAllowed
	KindFileTooLarge
	KindFileQuotaExceeded
	KindFileExtensionNotAllowed
	KindEngine
)

// ValidationError carries a field -> messages map produced by the binding
// layer's rule engine (see validate.go).
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e.Fields))
}

// Kind implements the kindedError interface.
func (e *ValidationError) Kind() ErrorKind { return KindValidation }

// NotFoundError indicates a resource, distinct from a route, could not be
// located by a handler.
type NotFoundError struct{ Resource string }

func (e *NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Kind() ErrorKind { return KindNotFound }

// UnauthorizedError indicates missing or invalid authentication.
type UnauthorizedError struct{ Reason string }

func (e *UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return e.Reason
}

func (e *UnauthorizedError) Kind() ErrorKind { return KindUnauthorized }

// ForbiddenError indicates an authenticated caller lacks permission.
type ForbiddenError struct{ Reason string }

func (e *ForbiddenError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return e.Reason
}

func (e *ForbiddenError) Kind() ErrorKind { return KindForbidden }

// MethodNotAllowedError carries the set of methods registered at the
// matched path, to be rendered into the Allow header.
type MethodNotAllowedError struct{ Allowed []string }

func (e *MethodNotAllowedError) Error() string { return "method not allowed" }

func (e *MethodNotAllowedError) Kind() ErrorKind { return KindMethodNotAllowed }

// FileTooLargeError is raised when a single uploaded file exceeds
// maxFileSize.
type FileTooLargeError struct {
	FieldName string
	Limit     int64
}

func (e *FileTooLargeError) Error() string {
	return fmt.Sprintf("file for field %q exceeds the %d byte limit", e.FieldName, e.Limit)
}

func (e *FileTooLargeError) Kind() ErrorKind { return KindFileTooLarge }

// FileQuotaExceededError is raised when the per-request upload quota tracker
// cannot admit another chunk.
type FileQuotaExceededError struct {
	FieldName string
	Limit     int64
}

func (e *FileQuotaExceededError) Error() string {
	return fmt.Sprintf("upload quota of %d bytes exceeded while writing field %q", e.Limit, e.FieldName)
}

func (e *FileQuotaExceededError) Kind() ErrorKind { return KindFileQuotaExceeded }

// FileExtensionNotAllowedError is raised when an uploaded file's extension is
// missing from, or rejected by, the configured allow-list.
type FileExtensionNotAllowedError struct {
	FieldName string
	Extension string
}

func (e *FileExtensionNotAllowedError) Error() string {
	return fmt.Sprintf("extension %q of field %q is not allowed", e.Extension, e.FieldName)
}

func (e *FileExtensionNotAllowedError) Kind() ErrorKind { return KindFileExtensionNotAllowed }

// EngineError is an application-defined error carrying an explicit status
// and an optional machine-readable code.
type EngineError struct {
	Status  int
	Code    string
	Message string
}

func (e *EngineError) Error() string { return e.Message }

func (e *EngineError) Kind() ErrorKind { return KindEngine }

// NewEngineError returns an `EngineError` with the given status, code and
// message.
func NewEngineError(status int, code, message string) *EngineError {
	return &EngineError{Status: status, Code: code, Message: message}
}

// kindedError is implemented by every error type above so the negotiator can
// recover its `ErrorKind` without a type switch over every concrete type.
type kindedError interface {
	error
	Kind() ErrorKind
}

// classify maps an arbitrary error to its `ErrorKind` and default status,
// falling back to `KindInternal`/500 for anything that doesn't implement
// `kindedError`.
func classify(err error) (ErrorKind, int) {
	if ke, ok := err.(kindedError); ok {
		switch k := ke.Kind(); k {
		case KindValidation:
			return k, http.StatusUnprocessableEntity
		case KindNotFound:
			return k, http.StatusNotFound
		case KindUnauthorized:
			return k, http.StatusUnauthorized
		case KindForbidden:
			return k, http.StatusForbidden
		case KindMethodNotAllowed:
			return k, http.StatusMethodNotAllowed
		case KindFileTooLarge, KindFileQuotaExceeded:
			return k, http.StatusRequestEntityTooLarge
		case KindFileExtensionNotAllowed:
			return k, http.StatusUnsupportedMediaType
		case KindEngine:
			if ee, ok := err.(*EngineError); ok && ee.Status != 0 {
				return k, ee.Status
			}
			return k, http.StatusInternalServerError
		}
	}
	return KindInternal, http.StatusInternalServerError
}
