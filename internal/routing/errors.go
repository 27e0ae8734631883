package routing

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrProviderUnavailable covers transport failures, server errors and an
	// open circuit.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	ErrNoRouteFound        = errors.New("no route found between the given points")
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrInvalidCoordinates  = errors.New("invalid coordinates")
)

// Provider error codes.
const (
	CodeInvalidOrigin      = "INVALID_ORIGIN"
	CodeInvalidDestination = "INVALID_DESTINATION"
	CodeRequestFailed      = "REQUEST_FAILED"
	CodeReadFailed         = "READ_FAILED"
	CodeDecodeFailed       = "DECODE_FAILED"
	CodeNoRoute            = "NO_ROUTE"
	CodeBadRequest         = "BAD_REQUEST"
	CodeRateLimit          = "RATE_LIMIT"
	CodeForbidden          = "FORBIDDEN"
	CodeNotConfigured      = "NOT_CONFIGURED"
)

// Error is a provider failure classified by one of the sentinel errors.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a later identical request might succeed.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// Unavailable reports a provider that could not answer. cause may be nil.
func Unavailable(provider, code, message string, cause error) *Error {
	err := ErrProviderUnavailable
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrProviderUnavailable, cause)
	}
	return &Error{Provider: provider, Code: code, Message: message, Err: err}
}

// NoRoute reports that the provider found no walkable path.
func NoRoute(provider, message string) *Error {
	return &Error{
		Provider: provider,
		Code:     CodeNoRoute,
		Message:  orDefault(message, "no route found between the given points"),
		Err:      ErrNoRouteFound,
	}
}

// Rejected reports a request the provider refused as malformed.
func Rejected(provider, message string) *Error {
	return &Error{
		Provider: provider,
		Code:     CodeBadRequest,
		Message:  orDefault(message, "routing provider rejected the request"),
		Err:      ErrInvalidCoordinates,
	}
}

// RateLimited reports an exhausted provider quota.
func RateLimited(provider string) *Error {
	return &Error{
		Provider: provider,
		Code:     CodeRateLimit,
		Message:  "provider quota exhausted",
		Err:      ErrRateLimitExceeded,
	}
}

// StatusError classifies the statuses every HTTP provider shares: 429 and
// 5xx. It returns nil for anything else.
func StatusError(provider string, status int) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited(provider)
	case status >= http.StatusInternalServerError:
		return Unavailable(provider, fmt.Sprintf("SERVER_%d", status),
			"routing provider is temporarily unavailable", nil)
	}
	return nil
}

// ValidateEndpoints checks both coordinates of req.
func ValidateEndpoints(provider string, req DirectionsRequest) error {
	if req.Origin.Validate() != nil {
		return &Error{Provider: provider, Code: CodeInvalidOrigin,
			Message: "invalid origin coordinates", Err: ErrInvalidCoordinates}
	}
	if req.Destination.Validate() != nil {
		return &Error{Provider: provider, Code: CodeInvalidDestination,
			Message: "invalid destination coordinates", Err: ErrInvalidCoordinates}
	}
	return nil
}

// HTTPDoer executes HTTP requests. *http.Client and resilience.Client
// satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Exchange sends req and reads the whole body. Transport and read failures
// come back as provider-unavailable errors.
func Exchange(client HTTPDoer, provider string, req *http.Request) (int, []byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, Unavailable(provider, CodeRequestFailed, "failed to reach routing provider", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, Unavailable(provider, CodeReadFailed, "failed to read routing response", err)
	}
	return resp.StatusCode, body, nil
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
