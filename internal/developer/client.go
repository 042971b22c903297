package developer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/cocapi/client-go/internal/apierrors"
)

// Defaults for the developer console.
const (
	DefaultBaseURL = "https://developer.clashofclans.com"
	DefaultScope   = "clash"
	DefaultTimeout = 30 * time.Second

	keyNamePrefix = "cocapi-"
)

// Console endpoints.
const (
	pathLogin     = "/api/login"
	pathListKeys  = "/api/apikey/list"
	pathCreateKey = "/api/apikey/create"
	pathRevokeKey = "/api/apikey/revoke"
)

// Config holds configuration for a console client.
type Config struct {
	// BaseURL is the developer console URL. Default: DefaultBaseURL.
	BaseURL string
	// HTTPClient supplies the transport and timeout. The client always gets
	// its own cookie jar so each login keeps a separate console session.
	HTTPClient *http.Client
	// Limiter paces key creation and revocation. Nil means unlimited.
	Limiter *rate.Limiter
	// Scope is the key scope requested on creation. Default: DefaultScope.
	Scope string
	// Logger receives debug output. Default: a null logger.
	Logger hclog.Logger
	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// Client talks to the developer console on behalf of one login.
// It is safe for concurrent use, although the console session it holds
// belongs to a single identity.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	scope      string
	log        hclog.Logger
	now        func() time.Time
}

// New creates a console client with a fresh cookie jar.
func New(cfg Config) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err) //coverage:ignore
	}

	httpClient := &http.Client{Timeout: DefaultTimeout, Jar: jar}
	if cfg.HTTPClient != nil {
		httpClient.Transport = cfg.HTTPClient.Transport
		httpClient.Timeout = cfg.HTTPClient.Timeout
		httpClient.CheckRedirect = cfg.HTTPClient.CheckRedirect
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    cfg.Limiter,
		scope:      cfg.Scope,
		log:        cfg.Logger,
		now:        cfg.Now,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.scope == "" {
		c.scope = DefaultScope
	}
	if c.log == nil {
		c.log = hclog.NewNullLogger()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Login authenticates against the console. The session cookie it issues is
// kept in the client's jar and sent with every later call.
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.do(ctx, pathLogin, loginRequest{Email: email, Password: password}, nil)
}

// ListKeys returns every key held by the logged-in account.
func (c *Client) ListKeys(ctx context.Context) ([]Key, error) {
	var result keyListResponse
	if err := c.do(ctx, pathListKeys, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Keys, nil
}

// CreateKey creates a key scoped to ip.
func (c *Client) CreateKey(ctx context.Context, ip string) (Key, error) {
	if err := c.wait(ctx); err != nil {
		return Key{}, err
	}

	now := c.now()
	req := createKeyRequest{
		Name:        keyNamePrefix + ulid.Make().String(),
		Description: "Created at " + now.UTC().Format(time.RFC3339) + " by cocapi",
		CidrRanges:  []string{ip},
		Scopes:      []string{c.scope},
	}

	var result createKeyResponse
	if err := c.do(ctx, pathCreateKey, req, &result); err != nil {
		return Key{}, err
	}
	if result.Key.ID == "" || result.Key.Key == "" {
		return Key{}, errors.New("create key: response carried no key")
	}

	c.log.Debug("key created", "id", result.Key.ID, "fingerprint", result.Key.Fingerprint(), "ip", ip)
	return result.Key, nil
}

// RevokeKey revokes the key with the given id.
func (c *Client) RevokeKey(ctx context.Context, id string) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	if err := c.do(ctx, pathRevokeKey, revokeKeyRequest{ID: id}, nil); err != nil {
		return err
	}
	c.log.Debug("key revoked", "id", id)
	return nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("key mutation limiter: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, body interface{}, result interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &apierrors.NetworkError{Err: err, URL: c.baseURL + path}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apierrors.NetworkError{Err: err, URL: c.baseURL + path}
	}

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp.StatusCode, raw)
	}

	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return &apierrors.DecodeError{URL: path, Body: raw, Err: err}
		}
	}
	return nil
}

// parseErrorResponse extracts the console's error message when present.
func parseErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
		Status  struct {
			Message string `json:"message"`
		} `json:"status"`
	}

	apiErr := &apierrors.APIError{StatusCode: statusCode, Body: body}
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Reason = errResp.Reason
		apiErr.Message = errResp.Message
		if apiErr.Message == "" {
			apiErr.Message = errResp.Status.Message
		}
	}
	return apiErr
}
