package cocapi

import (
	"github.com/cocapi/client-go/internal/apierrors"
)

// Sentinel errors for errors.Is() checks
var (
	// ErrClientNotReady is returned while the key pool is initializing or
	// reinitializing, or after a reinitialization failed.
	ErrClientNotReady = apierrors.ErrClientNotReady

	// ErrLoginFailed is returned when a developer console login or key
	// management call fails.
	ErrLoginFailed = apierrors.ErrLoginFailed

	// ErrRequestFailed is returned when the HTTP transport fails.
	ErrRequestFailed = apierrors.ErrRequestFailed

	// ErrInvalidHeader is returned when a key cannot be sent as a header.
	ErrInvalidHeader = apierrors.ErrInvalidHeader

	// ErrBadURL is returned when a request URL cannot be composed.
	ErrBadURL = apierrors.ErrBadURL

	// ErrBadParameters is returned for HTTP 400.
	ErrBadParameters = apierrors.ErrBadParameters

	// ErrAccessDenied is returned for HTTP 403 after a key refresh, or
	// immediately when the request body cannot be replayed.
	ErrAccessDenied = apierrors.ErrAccessDenied

	// ErrNotFound is returned for HTTP 404.
	ErrNotFound = apierrors.ErrNotFound

	// ErrRequestThrottled is returned for HTTP 429.
	ErrRequestThrottled = apierrors.ErrRequestThrottled

	// ErrUnknownError is returned for HTTP 500.
	ErrUnknownError = apierrors.ErrUnknownError

	// ErrInMaintenance is returned for HTTP 503.
	ErrInMaintenance = apierrors.ErrInMaintenance

	// ErrBadResponse is returned for any other non-200 status.
	ErrBadResponse = apierrors.ErrBadResponse

	// ErrInvalidParameters is returned when arguments are rejected before
	// anything is sent.
	ErrInvalidParameters = apierrors.ErrInvalidParameters

	// ErrInvalidTag is returned when a tag cannot be encoded or decoded.
	ErrInvalidTag = apierrors.ErrInvalidTag

	// ErrMalformedResponse is returned when a 200 body does not decode.
	ErrMalformedResponse = apierrors.ErrMalformedResponse
)

// APIError represents a non-200 HTTP response from the game API.
type APIError = apierrors.APIError

// NetworkError represents a network-level failure.
type NetworkError = apierrors.NetworkError

// LoginError reports a failed developer console operation for one credential.
type LoginError = apierrors.LoginError

// DecodeError indicates a 200 response whose body could not be decoded.
type DecodeError = apierrors.DecodeError

// InvalidTagError carries the text that failed to encode or decode.
type InvalidTagError = apierrors.InvalidTagError

// InvalidParametersError explains why caller arguments were rejected.
type InvalidParametersError = apierrors.InvalidParametersError
