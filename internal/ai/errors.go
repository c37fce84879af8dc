package ai

import (
	"errors"
	"fmt"
	"time"
)

// Typed provider failures. Each wraps the provider's *APIError, so
// errors.As(err, &apiErr) and StatusCode work on any of them.

// AuthError is a 401/403 or a missing API key.
type AuthError struct{ *APIError }

func (e *AuthError) Error() string { return "provider rejected credentials: " + detail(e.APIError) }

func (e *AuthError) Unwrap() error { return unwrapAPI(e.APIError) }

// RateLimitError is a 429. RetryAfter is zero when the provider sent no hint.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry in %ds: %s", int(e.RetryAfter.Seconds()), detail(e.APIError))
	}
	return "rate limited: " + detail(e.APIError)
}

func (e *RateLimitError) Unwrap() error { return unwrapAPI(e.APIError) }

// ModelNotFoundError means the configured model id does not exist for the
// provider.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string { return "model not available: " + detail(e.APIError) }

func (e *ModelNotFoundError) Unwrap() error { return unwrapAPI(e.APIError) }

// BadRequestError is a 400, usually an invalid parameter such as max_tokens.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return "request rejected: " + detail(e.APIError) }

func (e *BadRequestError) Unwrap() error { return unwrapAPI(e.APIError) }

// QuotaExceededError is a billing or credit failure.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string { return "quota exceeded: " + detail(e.APIError) }

func (e *QuotaExceededError) Unwrap() error { return unwrapAPI(e.APIError) }

// ServerError is a 5xx from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return "provider error: " + detail(e.APIError) }

func (e *ServerError) Unwrap() error { return unwrapAPI(e.APIError) }

// UnreachableError means no HTTP exchange happened: DNS failure, refused
// connection, a local Ollama that is not running, or a client timeout.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, 0 if there is none.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.StatusCode
	}
	return 0
}

func detail(e *APIError) string {
	if e == nil {
		return "no detail"
	}
	return e.Error()
}

// unwrapAPI keeps a nil *APIError from becoming a non-nil error interface.
func unwrapAPI(e *APIError) error {
	if e == nil {
		return nil
	}
	return e
}
