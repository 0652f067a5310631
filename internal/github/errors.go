package github

import (
	"errors"
	"fmt"
)

// ErrorKind tags an upstream failure with the one condition the rest of the
// service needs to distinguish. The variant is constructed once here, at the
// translation boundary, so callers match on Kind instead of probing status
// codes ad hoc.
type ErrorKind string

const (
	// KindInvalidCredential means GitHub rejected the bearer token itself.
	KindInvalidCredential ErrorKind = "invalid_credential"
	// KindNotFound means the target resource does not exist upstream.
	KindNotFound ErrorKind = "not_found"
	// KindUpstream is any other HTTP-level failure; Status carries the
	// upstream code.
	KindUpstream ErrorKind = "upstream_error"
	// KindUnavailable covers network errors, timeouts and 5xx responses.
	KindUnavailable ErrorKind = "upstream_unavailable"
)

// APIError is the tagged error variant for all upstream failures.
type APIError struct {
	Kind    ErrorKind
	Status  int // upstream HTTP status, 0 for transport failures
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("github: %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("github: %s: %s", e.Kind, e.Message)
}

// AsAPIError unwraps err to an *APIError if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsInvalidCredential reports whether err means the token was rejected.
func IsInvalidCredential(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindInvalidCredential
}

// IsNotFound reports whether err means the resource is absent upstream.
func IsNotFound(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindNotFound
}

// IsUnavailable reports whether err is a transient upstream condition that
// must not be treated as an invalid credential.
func IsUnavailable(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.Kind == KindUnavailable
}

// classifyStatus builds the variant for a non-2xx, non-304 upstream status.
func classifyStatus(status int, message string) *APIError {
	switch {
	case status == 401:
		return &APIError{Kind: KindInvalidCredential, Status: status, Message: "credential rejected by GitHub"}
	case status == 404:
		return &APIError{Kind: KindNotFound, Status: status, Message: "resource not found"}
	case status >= 500:
		return &APIError{Kind: KindUnavailable, Status: status, Message: message}
	default:
		return &APIError{Kind: KindUpstream, Status: status, Message: message}
	}
}
