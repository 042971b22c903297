package cocapi

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/cocapi/client-go/internal/api"
	"github.com/cocapi/client-go/internal/developer"
	"github.com/cocapi/client-go/internal/keypool"
)

const (
	defaultBaseURL      = api.DefaultBaseURL
	defaultDeveloperURL = developer.DefaultBaseURL
	defaultIPEchoURL    = developer.DefaultIPEchoURL
	defaultTimeout      = 30 * time.Second
	defaultUserAgent    = "cocapi-go"
)

// clientConfig holds configuration for the client.
type clientConfig struct {
	baseURL      string
	developerURL string
	ipEchoURL    string
	httpClient   *http.Client
	timeout      time.Duration
	userAgent    string
	logger       hclog.Logger
	registerer   prometheus.Registerer

	mutationRate  rate.Limit
	mutationBurst int
	reinitTimeout time.Duration
}

// Option configures the client.
type Option func(*clientConfig)

func defaultConfig() *clientConfig {
	return &clientConfig{
		baseURL:       defaultBaseURL,
		developerURL:  defaultDeveloperURL,
		ipEchoURL:     defaultIPEchoURL,
		timeout:       defaultTimeout,
		userAgent:     defaultUserAgent,
		mutationRate:  rate.Limit(keypool.DefaultMutationsPerSec),
		mutationBurst: keypool.DefaultMutationBurst,
		reinitTimeout: keypool.DefaultReinitTimeout,
	}
}

// WithBaseURL sets the game API base URL.
// Default: https://api.clashofclans.com/v1
func WithBaseURL(url string) Option {
	return func(c *clientConfig) {
		c.baseURL = url
	}
}

// WithDeveloperURL sets the developer console URL used to manage keys.
// Default: https://developer.clashofclans.com
func WithDeveloperURL(url string) Option {
	return func(c *clientConfig) {
		c.developerURL = url
	}
}

// WithIPEchoURL sets the service used to discover the host's public IP.
// It must answer GET with the address as plain text.
// Default: https://api.ipify.org
func WithIPEchoURL(url string) Option {
	return func(c *clientConfig) {
		c.ipEchoURL = url
	}
}

// WithHTTPClient sets a custom HTTP client. Its transport is shared by game
// API, console and IP echo calls; console clients get their own cookie jars.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the per-request timeout used when no HTTP client is given.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent sent to the game API.
func WithUserAgent(ua string) Option {
	return func(c *clientConfig) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger. Default: a null logger.
func WithLogger(logger hclog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithMetrics registers the client's Prometheus metrics on registerer.
func WithMetrics(registerer prometheus.Registerer) Option {
	return func(c *clientConfig) {
		c.registerer = registerer
	}
}

// WithKeyMutationRate bounds how fast keys are created and revoked across
// all credentials.
// Default: 5 per second, burst 5
func WithKeyMutationRate(perSecond float64, burst int) Option {
	return func(c *clientConfig) {
		c.mutationRate = rate.Limit(perSecond)
		c.mutationBurst = burst
	}
}

// WithReinitTimeout bounds one key pool reinitialization.
// Default: 2 minutes
func WithReinitTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.reinitTimeout = timeout
	}
}
