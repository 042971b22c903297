package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cocapi/client-go/internal/apierrors"
)

// Default configuration values.
const (
	DefaultBaseURL     = "https://api.clashofclans.com/v1"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxBodySize = 16 << 20
)

// Config holds configuration for the API client.
type Config struct {
	// BaseURL is the game API root every request path is resolved against.
	// Default: DefaultBaseURL.
	BaseURL string
	// HTTPClient is the client used for requests. Default: a client with
	// DefaultTimeout.
	HTTPClient *http.Client
	// UserAgent, when set, is sent on every request.
	UserAgent string
	// MaxBodySize caps how many response bytes are read. Default: DefaultMaxBodySize.
	MaxBodySize int64
}

// Client sends authorized requests to the game API. It holds no key state;
// the caller supplies the key for every send.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	userAgent   string
	maxBodySize int64
}

// Response is a successful (HTTP 200) reply with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	URL        string
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &apierrors.DecodeError{URL: r.URL, Body: r.Body, Err: err}
	}
	return nil
}

// NewClient creates an API client.
func NewClient(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := parseAbsolute(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	maxBodySize := cfg.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}

	return &Client{
		baseURL:     base,
		httpClient:  httpClient,
		userAgent:   cfg.UserAgent,
		maxBodySize: maxBodySize,
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// NewRequest builds a request for path relative to the base URL. path must
// already be escaped; tags in it are expected in their %23 form.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u, err := parseAbsolute(c.baseURL.String() + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return nil, err
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrBadURL, err)
	}
	return req, nil
}

// Send performs one attempt of req authorized with key. A 200 response is
// returned as a Response; any other status is an *apierrors.APIError carrying
// the body. Transport failures are *apierrors.NetworkError. Send never
// retries.
func (c *Client) Send(ctx context.Context, req *http.Request, key string) (*Response, error) {
	if !validHeaderValue(key) {
		return nil, fmt.Errorf("%w: api key contains characters not allowed in a header", apierrors.ErrInvalidHeader)
	}

	out, err := prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	out.Header.Set("Authorization", "Bearer "+key)
	out.Header.Set("Accept", "application/json")
	if c.userAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.userAgent)
	}

	target := out.URL.String()
	resp, err := c.httpClient.Do(out)
	if err != nil {
		return nil, &apierrors.NetworkError{Err: err, URL: target}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, &apierrors.NetworkError{Err: err, URL: target}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		URL:        target,
	}, nil
}

// Replayable reports whether req can be sent a second time. Requests with a
// body must provide GetBody.
func Replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// prepare clones req onto ctx with a fresh body when one can be produced.
func prepare(ctx context.Context, req *http.Request) (*http.Request, error) {
	if req.URL == nil || !req.URL.IsAbs() || req.URL.Host == "" {
		return nil, fmt.Errorf("%w: request url must be absolute", apierrors.ErrBadURL)
	}

	out := req.Clone(ctx)
	if req.GetBody != nil && req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apierrors.ErrBadURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an absolute url", apierrors.ErrBadURL, raw)
	}
	return u, nil
}

func validHeaderValue(v string) bool {
	if v == "" {
		return false
	}
	for i := 0; i < len(v); i++ {
		b := v[i]
		if b < ' ' && b != '\t' || b == 0x7f {
			return false
		}
	}
	return true
}

// parseErrorResponse turns a non-200 reply into an APIError, keeping the
// reason and message when the body is the API's JSON error shape.
func parseErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}

	apiErr := &apierrors.APIError{StatusCode: statusCode, Body: body}
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Reason = errResp.Reason
		apiErr.Message = errResp.Message
	}
	return apiErr
}
