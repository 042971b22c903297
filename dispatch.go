package cocapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cocapi/client-go/internal/api"
	"github.com/cocapi/client-go/internal/apierrors"
)

// maxAttempts is the first send plus one resend after a key refresh.
const maxAttempts = 2

// Dispatch sends req with the next key in rotation and classifies the reply.
//
// A 403 is taken to mean the key went stale, usually because the public IP
// changed. The pool is refreshed once and the request resent with a fresh
// key; a second 403 is returned as ErrAccessDenied. A request whose body
// cannot be replayed (a body without GetBody) is never resent. No other
// status is retried.
func (c *Client) Dispatch(ctx context.Context, req *http.Request) (*Response, error) {
	start := time.Now()
	resp, err := c.dispatch(ctx, req)
	c.metrics.ObserveRequest(outcome(err), time.Since(start))
	return resp, err
}

func (c *Client) dispatch(ctx context.Context, req *http.Request) (*Response, error) {
	for attempt := 1; ; attempt++ {
		tok, err := c.pool.NextKey()
		if err != nil {
			return nil, err
		}

		resp, err := c.apiClient.Send(ctx, req, tok.Secret)
		if !isStaleKey(err) {
			if err != nil {
				c.log.Debug("request failed", "url", req.URL.Redacted(), "fingerprint", tok.Fingerprint(), "error", err)
			}
			return resp, err
		}

		if attempt == maxAttempts {
			c.log.Warn("key rejected after refresh", "identity", tok.Identity, "fingerprint", tok.Fingerprint(), "url", req.URL.Redacted())
			return nil, err
		}
		if !api.Replayable(req) {
			c.log.Warn("key rejected, request body cannot be replayed", "identity", tok.Identity, "fingerprint", tok.Fingerprint())
			return nil, err
		}

		c.log.Info("key rejected, refreshing key pool", "identity", tok.Identity, "fingerprint", tok.Fingerprint(), "generation", tok.Generation)
		if err := c.pool.ReinitSince(ctx, tok.Generation); err != nil {
			return nil, err
		}
		c.metrics.IncRetry()
	}
}

// isStaleKey reports whether err is the API rejecting the key itself.
func isStaleKey(err error) bool {
	var apiErr *apierrors.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}

// outcome is the metrics label for a dispatch result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrClientNotReady):
		return "not_ready"
	case errors.Is(err, ErrLoginFailed):
		return "login_failed"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrBadParameters):
		return "bad_parameters"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRequestThrottled):
		return "throttled"
	case errors.Is(err, ErrUnknownError):
		return "unknown_error"
	case errors.Is(err, ErrInMaintenance):
		return "maintenance"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	case errors.Is(err, ErrRequestFailed):
		return "request_failed"
	default:
		return "error"
	}
}
