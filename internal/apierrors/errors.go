// Package apierrors provides shared error types for the cocapi client.
package apierrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrClientNotReady is returned when the key pool is initializing or
	// reinitializing and no key can be handed out.
	ErrClientNotReady = errors.New("client is not ready")

	// ErrLoginFailed is returned when a developer console login or key
	// management call fails.
	ErrLoginFailed = errors.New("login failed")

	// ErrRequestFailed is returned when the HTTP transport fails.
	ErrRequestFailed = errors.New("request failed")

	// ErrInvalidHeader is returned when an authorization header cannot be built.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrBadURL is returned when a request URL cannot be composed.
	ErrBadURL = errors.New("bad url")

	// ErrBadParameters is returned for HTTP 400 responses.
	ErrBadParameters = errors.New("bad parameters")

	// ErrAccessDenied is returned for HTTP 403 responses that survive a key refresh.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound is returned for HTTP 404 responses.
	ErrNotFound = errors.New("resource not found")

	// ErrRequestThrottled is returned for HTTP 429 responses.
	ErrRequestThrottled = errors.New("request throttled")

	// ErrUnknownError is returned for HTTP 500 responses.
	ErrUnknownError = errors.New("unknown server error")

	// ErrInMaintenance is returned for HTTP 503 responses.
	ErrInMaintenance = errors.New("api in maintenance")

	// ErrBadResponse is returned for any other unexpected status code.
	ErrBadResponse = errors.New("bad response")

	// ErrInvalidParameters is returned when caller-supplied arguments are rejected
	// before a request is sent.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrInvalidTag is returned when a tag cannot be encoded or decoded.
	ErrInvalidTag = errors.New("invalid tag")

	// ErrMalformedResponse is returned when a 200 response body does not match
	// the expected shape. It is never retried.
	ErrMalformedResponse = errors.New("malformed response body")
)

// APIError represents a non-200 HTTP response from the game API.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		if e.Message != "" {
			return fmt.Sprintf("API error %d: %s (reason: %s)", e.StatusCode, e.Message, e.Reason)
		}
		return fmt.Sprintf("API error %d (reason: %s)", e.StatusCode, e.Reason)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error %d", e.StatusCode)
}

// Is implements errors.Is for sentinel error matching.
func (e *APIError) Is(target error) bool {
	return target == StatusSentinel(e.StatusCode)
}

// StatusSentinel returns the sentinel a non-200 status code is classified as.
// 403 maps to ErrAccessDenied; the pipeline treats a first 403 as a stale
// credential before it ever reaches the caller.
func StatusSentinel(statusCode int) error {
	switch statusCode {
	case 400:
		return ErrBadParameters
	case 403:
		return ErrAccessDenied
	case 404:
		return ErrNotFound
	case 429:
		return ErrRequestThrottled
	case 500:
		return ErrUnknownError
	case 503:
		return ErrInMaintenance
	default:
		return ErrBadResponse
	}
}

// NetworkError represents a network-level failure.
type NetworkError struct {
	Err error
	URL string
}

func (e *NetworkError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("network error (%s): %v", e.URL, e.Err)
	}
	return fmt.Sprintf("network error: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *NetworkError) Is(target error) bool {
	return target == ErrRequestFailed
}

// LoginError reports a failed developer console operation for one credential.
type LoginError struct {
	Identity string
	Op       string
	Err      error
}

func (e *LoginError) Error() string {
	if e.Identity == "" {
		return fmt.Sprintf("login failed: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("login failed for %s: %s: %v", e.Identity, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoginError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *LoginError) Is(target error) bool {
	return target == ErrLoginFailed
}

// DecodeError indicates a 200 response whose body could not be decoded.
type DecodeError struct {
	URL  string
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response from %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for sentinel error matching.
func (e *DecodeError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// InvalidTagError carries the text that failed to encode or decode.
type InvalidTagError struct {
	Text   string
	Reason string
}

func (e *InvalidTagError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid tag %q: %s", e.Text, e.Reason)
	}
	return fmt.Sprintf("invalid tag %q", e.Text)
}

// Is implements errors.Is for sentinel error matching.
func (e *InvalidTagError) Is(target error) bool {
	return target == ErrInvalidTag
}

// InvalidParametersError explains why caller arguments were rejected.
type InvalidParametersError struct {
	Reason string
}

func (e *InvalidParametersError) Error() string {
	return "invalid parameters: " + e.Reason
}

// Is implements errors.Is for sentinel error matching.
func (e *InvalidParametersError) Is(target error) bool {
	return target == ErrInvalidParameters
}
