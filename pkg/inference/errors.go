package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoAPIKey            = errors.New("inference: API key required")
	ErrNoModel             = errors.New("inference: model required")
	ErrProviderUnavailable = errors.New("inference: provider unavailable")

	// ErrEmptyResponse means the model answered without any text.
	ErrEmptyResponse = errors.New("inference: empty response")
)

// APIError is a non-2xx answer from a provider. Code is the provider's
// own error code when it sends one.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Provider   string
}

func (e *APIError) Error() string {
	detail := fmt.Sprint(e.StatusCode)
	if e.Code != "" {
		detail += " (" + e.Code + ")"
	}
	return fmt.Sprintf("inference [%s]: API error %s: %s", e.Provider, detail, e.Message)
}

func (e *APIError) IsRateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

func (e *APIError) IsServerError() bool { return e.StatusCode >= 500 && e.StatusCode <= 599 }

// IsRetryable is true for rate limits and 5xx.
func (e *APIError) IsRetryable() bool { return e.IsRateLimited() || e.IsServerError() }

// ProviderError tags an error with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err) }

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError holds one error per provider tried, in order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	switch n := len(e.Errors); n {
	case 0:
		return "inference chain: no errors recorded"
	case 1:
		return fmt.Sprintf("inference chain: %v", e.Errors[0])
	default:
		return fmt.Sprintf("inference chain: all %d providers failed, last error: %v", n, e.Errors[n-1])
	}
}

func (e *ChainError) Unwrap() []error { return e.Errors }

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// IsRetryable reports whether err is a transient API failure.
func IsRetryable(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.IsRetryable()
}

// IsAuthError covers a missing key as well as 401/403.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrNoAPIKey) {
		return true
	}
	apiErr, ok := asAPIError(err)
	return ok && apiErr.IsUnauthorized()
}

func IsQuotaError(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.IsRateLimited()
}

func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
