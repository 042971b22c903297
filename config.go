package cocapi

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/cocapi/client-go/internal/keypool"
)

// DefaultEnvPrefix is the prefix of environment variables read by LoadConfig.
const DefaultEnvPrefix = "COCAPI_"

// Config is the file and environment form of the client options.
//
// Environment variables use the format COCAPI_SECTION_KEY, for example
// COCAPI_KEYS_RATE=2 or COCAPI_API_URL=http://localhost:8080/v1. A single
// credential can be given as COCAPI_EMAIL and COCAPI_PASSWORD; it is added
// after any credentials listed in the file.
type Config struct {
	Credentials []Credential `koanf:"credentials"`
	Email       string       `koanf:"email"`
	Password    string       `koanf:"password"`

	API       APIConfig      `koanf:"api"`
	Developer EndpointConfig `koanf:"developer"`
	IP        EndpointConfig `koanf:"ip"`
	Keys      KeysConfig     `koanf:"keys"`
	Log       LogConfig      `koanf:"log"`
}

// APIConfig configures the game API transport.
type APIConfig struct {
	URL       string        `koanf:"url"`
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"useragent"`
}

// EndpointConfig holds a single service URL.
type EndpointConfig struct {
	URL string `koanf:"url"`
}

// KeysConfig configures key management.
type KeysConfig struct {
	// Rate is the number of key creations and revocations allowed per second.
	Rate  float64 `koanf:"rate"`
	Burst int     `koanf:"burst"`
	// Reinit bounds one key pool reinitialization.
	Reinit time.Duration `koanf:"reinit"`
}

// LogConfig configures the logger built by Config.Logger.
type LogConfig struct {
	Level string `koanf:"level"`
	JSON  bool   `koanf:"json"`
}

// DefaultConfig returns the configuration New uses when given no options.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			URL:       defaultBaseURL,
			Timeout:   defaultTimeout,
			UserAgent: defaultUserAgent,
		},
		Developer: EndpointConfig{URL: defaultDeveloperURL},
		IP:        EndpointConfig{URL: defaultIPEchoURL},
		Keys: KeysConfig{
			Rate:   keypool.DefaultMutationsPerSec,
			Burst:  keypool.DefaultMutationBurst,
			Reinit: keypool.DefaultReinitTimeout,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads configuration from the YAML file at path, when path is
// not empty, and then from COCAPI_ environment variables. Later sources
// override earlier ones; anything unset keeps its DefaultConfig value.
func LoadConfig(path string) (*Config, error) {
	return loadConfig(path, DefaultEnvPrefix)
}

func loadConfig(path, envPrefix string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// COCAPI_KEYS_RATE -> keys.rate
	envTransformer := func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := k.Load(env.Provider(envPrefix, ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// AllCredentials returns the listed credentials followed by the single
// Email/Password credential when both are set.
func (c *Config) AllCredentials() []Credential {
	creds := append([]Credential(nil), c.Credentials...)
	if c.Email != "" && c.Password != "" {
		creds = append(creds, Credential{Email: c.Email, Password: c.Password})
	}
	return creds
}

// Logger builds an hclog logger from the Log section, writing to stderr.
func (c *Config) Logger() hclog.Logger {
	level := hclog.LevelFromString(c.Log.Level)
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "cocapi",
		Level:      level,
		JSONFormat: c.Log.JSON,
		Output:     os.Stderr,
	})
}

// Options converts the configuration to client options.
func (c *Config) Options() []Option {
	var opts []Option
	if c.API.URL != "" {
		opts = append(opts, WithBaseURL(c.API.URL))
	}
	if c.API.Timeout > 0 {
		opts = append(opts, WithTimeout(c.API.Timeout))
	}
	if c.API.UserAgent != "" {
		opts = append(opts, WithUserAgent(c.API.UserAgent))
	}
	if c.Developer.URL != "" {
		opts = append(opts, WithDeveloperURL(c.Developer.URL))
	}
	if c.IP.URL != "" {
		opts = append(opts, WithIPEchoURL(c.IP.URL))
	}
	if c.Keys.Rate > 0 && c.Keys.Burst > 0 {
		opts = append(opts, WithKeyMutationRate(c.Keys.Rate, c.Keys.Burst))
	}
	if c.Keys.Reinit > 0 {
		opts = append(opts, WithReinitTimeout(c.Keys.Reinit))
	}
	return append(opts, WithLogger(c.Logger()))
}

// NewFromConfig creates a client from cfg. opts are applied after the
// options derived from cfg and override them.
func NewFromConfig(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	return New(ctx, cfg.AllCredentials(), append(cfg.Options(), opts...)...)
}
