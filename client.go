package cocapi

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/cocapi/client-go/internal/api"
	"github.com/cocapi/client-go/internal/keypool"
	"github.com/cocapi/client-go/internal/metrics"
)

// Credential is one developer console login. Each credential holds up to
// KeyCap keys.
type Credential = keypool.Credential

// KeyCap is the most keys one developer account can hold.
const KeyCap = keypool.KeyCap

// Response is a successful API reply with its body fully read.
type Response = api.Response

// Stats describes the key pool.
type Stats = keypool.Stats

// SessionStats describes one credential's keys.
type SessionStats = keypool.SessionStats

// Client dispatches game API requests across every key of every credential
// and re-provisions keys when the host's public IP changes.
//
// A Client is safe for concurrent use.
type Client struct {
	apiClient *api.Client
	pool      *keypool.Pool
	log       hclog.Logger
	metrics   *metrics.Collector
}

// New logs in every credential, makes sure each holds keys valid for the
// current public IP and returns a ready client. It fails if any credential
// fails.
func New(ctx context.Context, creds []Credential, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	logger := cfg.logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout}
	}
	var collector *metrics.Collector
	if cfg.registerer != nil {
		collector = metrics.New(cfg.registerer)
	}

	apiClient, err := api.NewClient(api.Config{
		BaseURL:    cfg.baseURL,
		HTTPClient: httpClient,
		UserAgent:  cfg.userAgent,
	})
	if err != nil {
		return nil, err
	}

	pool, err := keypool.Init(ctx, keypool.Config{
		Credentials:   creds,
		DeveloperURL:  cfg.developerURL,
		IPEchoURL:     cfg.ipEchoURL,
		HTTPClient:    httpClient,
		Limiter:       rate.NewLimiter(cfg.mutationRate, cfg.mutationBurst),
		ReinitTimeout: cfg.reinitTimeout,
		Logger:        logger,
		Metrics:       collector,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		apiClient: apiClient,
		pool:      pool,
		log:       logger.Named("dispatch"),
		metrics:   collector,
	}, nil
}

// Ready reports whether the client can dispatch requests.
func (c *Client) Ready() bool {
	return c.pool.Ready()
}

// Reinit refreshes every credential's keys against the current public IP.
// Dispatch does this on its own when a key is rejected; call Reinit to
// recover after a failed refresh has left the client not ready.
func (c *Client) Reinit(ctx context.Context) error {
	return c.pool.Reinit(ctx)
}

// Stats describes the key pool.
func (c *Client) Stats() Stats {
	return c.pool.Stats()
}

// NewRequest builds a request against the game API. path must already be
// escaped; use the tag package's PathEscaped for tags.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	return c.apiClient.NewRequest(ctx, method, path, query, body)
}
