package model

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUpstreamError   = errors.New("upstream error")
	ErrRateLimited     = errors.New("rate limited")
	ErrConflict        = errors.New("conflict")
	ErrNetwork         = errors.New("network error")
	ErrProtocol        = errors.New("protocol violation")
	ErrSessionInactive = errors.New("no active counting session")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: 401,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError creates a 502 error for POS failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: 502,
		Err:        fmt.Errorf("%w: %w", ErrUpstreamError, err),
	}
}

// NewConflictError creates a 409 error for operations invalid in the current state.
func NewConflictError(reason string) *APIError {
	return &APIError{
		Code:       "CONFLICT",
		Message:    reason,
		StatusCode: 409,
		Err:        ErrConflict,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: 429,
		Err:        ErrRateLimited,
	}
}

// HTTPError is a non-2xx response from the POS API.
// Status is carried natively so retry classification never parses messages.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP status %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP status %d: %s", e.Method, e.URL, e.Status, e.Body)
}

// Unwrap maps well-known statuses onto sentinels so callers can use errors.Is.
func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case 404:
		return ErrNotFound
	case 401, 403:
		return ErrUnauthorized
	case 409:
		return ErrConflict
	case 429:
		return ErrRateLimited
	case 400, 422:
		return ErrInvalidRequest
	}
	if e.Status >= 500 {
		return ErrUpstreamError
	}
	return nil
}

// StatusOf returns the HTTP status carried anywhere in err's chain.
func StatusOf(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status, true
	}
	return 0, false
}

// NewProtocolError reports a POS response that is missing data the
// read-modify-write contract depends on.
func NewProtocolError(url, detail string) error {
	return fmt.Errorf("%w: %s: %s", ErrProtocol, url, detail)
}

// ToAPIError converts POS failures into errors suitable for the local API.
// Errors already carrying an APIError pass through unchanged.
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if status, ok := StatusOf(err); ok {
		switch status {
		case 404:
			return NewNotFoundError("product")
		case 401, 403:
			return NewUnauthorizedError("Gizmo authentication failed")
		case 429:
			return NewRateLimitError("Gizmo")
		}
		return NewUpstreamError("Gizmo", err)
	}
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrProtocol) {
		return NewUpstreamError("Gizmo", err)
	}
	if errors.Is(err, ErrSessionInactive) || errors.Is(err, ErrConflict) {
		return NewConflictError(err.Error())
	}
	if errors.Is(err, ErrNotFound) {
		return NewNotFoundError("product")
	}
	if errors.Is(err, ErrInvalidRequest) {
		return &APIError{Code: "VALIDATION_ERROR", Message: err.Error(), StatusCode: 400, Err: err}
	}
	return NewInternalError(err)
}
