package dataverse

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ycnlabs/prospect/internal/app"
)

var (
	// ErrUnauthorized reports that the remote store rejected the bearer
	// token. Distinct from a locally absent credential: the caller should
	// prompt re-authentication.
	ErrUnauthorized = errors.New("remote rejected credential")
	// ErrNotFound reports that the addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict reports a concurrent-write conflict.
	ErrConflict = errors.New("concurrent write conflict")
)

// StatusError is any non-success reply from the remote API, preserving the
// upstream status and OData error payload.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("remote api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("remote api %d %s", e.Status, e.Code)
}

// Is maps well-known statuses onto the package sentinels so callers can use
// errors.Is without losing the original status and message.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound, app.ErrLeadNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusPreconditionFailed || e.Status == http.StatusConflict
	}
	return false
}
