// Package api provides the HTTP transport for the game statistics API. It
// composes request URLs, authorizes a request with a single key and
// classifies the reply.
//
// # Sending
//
// [Client.Send] performs exactly one attempt. The caller chooses the key and
// decides whether to try again; key rotation and the stale-key retry live in
// the root package.
//
// # Error Handling
//
// Non-200 replies become [apierrors.APIError] values that match one
// sentinel each:
//
//   - 400: ErrBadParameters
//   - 403: ErrAccessDenied
//   - 404: ErrNotFound
//   - 429: ErrRequestThrottled
//   - 500: ErrUnknownError
//   - 503: ErrInMaintenance
//   - anything else: ErrBadResponse
//
// Transport failures are [apierrors.NetworkError] values matching
// ErrRequestFailed.
//
// # Thread Safety
//
// The [Client] type is safe for concurrent use.
package api
