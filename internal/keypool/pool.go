package keypool

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/cocapi/client-go/internal/apierrors"
	"github.com/cocapi/client-go/internal/developer"
	"github.com/cocapi/client-go/internal/metrics"
)

// Defaults for pool configuration.
const (
	DefaultReinitTimeout   = 2 * time.Minute
	DefaultMutationsPerSec = 5
	DefaultMutationBurst   = 5
)

const reinitKey = "reinit"

// IPResolver reports the host's current public address.
type IPResolver interface {
	Resolve(ctx context.Context) (netip.Addr, error)
}

// Config holds configuration for a Pool.
type Config struct {
	// Credentials are the console logins, in rotation order.
	Credentials []Credential
	// DeveloperURL is the developer console base URL.
	DeveloperURL string
	// IPEchoURL is the plain-text IP echo endpoint.
	IPEchoURL string
	// HTTPClient supplies transport and timeout for console and echo calls.
	HTTPClient *http.Client
	// Limiter paces key mutations across every session. Default:
	// DefaultMutationsPerSec with DefaultMutationBurst.
	Limiter *rate.Limiter
	// Resolver overrides the IP echo lookup.
	Resolver IPResolver
	// NewConsole overrides how a session's console client is built.
	NewConsole func(Credential) (Console, error)
	// ReinitTimeout bounds one reinitialization. Default: DefaultReinitTimeout.
	ReinitTimeout time.Duration
	Logger        hclog.Logger
	Metrics       *metrics.Collector
}

// Pool owns every Session and hands out their keys round-robin.
type Pool struct {
	sessions      []*Session
	resolver      IPResolver
	reinitTimeout time.Duration
	log           hclog.Logger
	metrics       *metrics.Collector

	ready      atomic.Bool
	view       atomic.Pointer[rotation]
	cursor     atomic.Uint64
	generation atomic.Uint64

	ipMu sync.RWMutex
	ip   netip.Addr

	flight singleflight.Group
}

// SessionStats describes one session's key set.
type SessionStats struct {
	Identity   string
	Keys       int
	UsableKeys int
}

// Stats is a point-in-time description of the pool.
type Stats struct {
	Ready      bool
	IP         string
	Generation uint64
	TotalKeys  int
	Sessions   []SessionStats
}

// Init builds a session per credential, resolves the public IP once and
// authenticates every session concurrently. Init fails if any session fails.
func Init(ctx context.Context, cfg Config) (*Pool, error) {
	p, err := newPool(cfg)
	if err != nil {
		return nil, err
	}
	if err := p.initialize(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func newPool(cfg Config) (*Pool, error) {
	if len(cfg.Credentials) == 0 {
		return nil, &apierrors.InvalidParametersError{Reason: "at least one credential is required"}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(DefaultMutationsPerSec), DefaultMutationBurst)
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = &developer.IPResolver{URL: cfg.IPEchoURL, HTTPClient: cfg.HTTPClient}
	}
	newConsole := cfg.NewConsole
	if newConsole == nil {
		newConsole = func(Credential) (Console, error) {
			return developer.New(developer.Config{
				BaseURL:    cfg.DeveloperURL,
				HTTPClient: cfg.HTTPClient,
				Limiter:    limiter,
				Logger:     logger.Named("developer"),
			})
		}
	}

	p := &Pool{
		resolver:      resolver,
		reinitTimeout: cfg.ReinitTimeout,
		log:           logger.Named("keypool"),
		metrics:       cfg.Metrics,
	}
	if p.reinitTimeout <= 0 {
		p.reinitTimeout = DefaultReinitTimeout
	}

	seen := make(map[string]bool, len(cfg.Credentials))
	for _, cred := range cfg.Credentials {
		if cred.Email == "" || cred.Password == "" {
			return nil, &apierrors.InvalidParametersError{Reason: "credential email and password are required"}
		}
		if seen[cred.Email] {
			return nil, &apierrors.InvalidParametersError{Reason: "duplicate credential " + cred.Email}
		}
		seen[cred.Email] = true

		console, err := newConsole(cred)
		if err != nil {
			return nil, fmt.Errorf("create console client for %s: %w", cred.Email, err)
		}
		p.sessions = append(p.sessions, NewSession(cred, console, p.log))
	}
	return p, nil
}

func (p *Pool) initialize(ctx context.Context) error {
	ip, err := p.resolveIP(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range p.sessions {
		s := s
		g.Go(func() error {
			return s.Authenticate(gctx, ip)
		})
	}
	if err := g.Wait(); err != nil {
		p.log.Error("key pool init failed", "error", err)
		return err
	}

	p.publish(ip)
	return nil
}

// Reinit refreshes every session against the current public IP. Concurrent
// callers share one run.
func (p *Pool) Reinit(ctx context.Context) error {
	return p.reinitSince(ctx, p.generation.Load(), false)
}

// ReinitSince is Reinit for a caller holding a key from generation. If the
// pool has already been refreshed past that generation it returns at once.
func (p *Pool) ReinitSince(ctx context.Context, generation uint64) error {
	return p.reinitSince(ctx, generation, true)
}

func (p *Pool) reinitSince(ctx context.Context, generation uint64, skipIfNewer bool) error {
	if skipIfNewer && p.isNewer(generation) {
		return nil
	}

	ch := p.flight.DoChan(reinitKey, func() (interface{}, error) {
		if skipIfNewer && p.isNewer(generation) {
			return nil, nil
		}

		// Detached from the first caller; bounded by reinitTimeout instead.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.reinitTimeout)
		defer cancel()

		start := time.Now()
		err := p.reinit(rctx)
		p.metrics.ObserveReinit(err, time.Since(start))
		return nil, err
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) isNewer(generation uint64) bool {
	return p.ready.Load() && p.generation.Load() > generation
}

func (p *Pool) reinit(ctx context.Context) error {
	p.ready.Store(false)
	p.metrics.SetReady(false)
	p.log.Warn("reinitializing key pool", "generation", p.generation.Load())

	ip, err := p.resolveIP(ctx)
	if err != nil {
		return err
	}

	// One session at a time; the console limits key mutations.
	for _, s := range p.sessions {
		if err := s.RefreshKeys(ctx, ip); err != nil {
			p.log.Error("key pool reinit failed", "identity", s.Identity(), "error", err)
			return err
		}
	}

	p.publish(ip)
	return nil
}

func (p *Pool) resolveIP(ctx context.Context) (netip.Addr, error) {
	ip, err := p.resolver.Resolve(ctx)
	if err != nil {
		return netip.Addr{}, &apierrors.LoginError{Op: "resolve ip", Err: err}
	}
	return ip, nil
}

// publish swaps in a fresh rotation built from every session's usable keys
// and marks the pool ready.
func (p *Pool) publish(ip netip.Addr) {
	generation := p.generation.Load() + 1

	perSession := make([][]Token, len(p.sessions))
	total := 0
	for i, s := range p.sessions {
		keys := s.UsableKeys(ip)
		tokens := make([]Token, len(keys))
		for j, k := range keys {
			tokens[j] = Token{Identity: s.Identity(), KeyID: k.ID, Secret: k.Key}
		}
		perSession[i] = tokens
		total += len(tokens)
		p.metrics.SetUsableKeys(s.Identity(), len(tokens))
	}

	p.ipMu.Lock()
	p.ip = ip
	p.ipMu.Unlock()

	p.view.Store(newRotation(generation, perSession))
	p.cursor.Store(0)
	p.generation.Store(generation)
	p.ready.Store(true)
	p.metrics.SetReady(true)

	p.log.Info("key pool ready", "ip", ip.String(), "sessions", len(p.sessions), "keys", total, "generation", generation)
}

// Ready reports whether NextKey can hand out keys.
func (p *Pool) Ready() bool {
	return p.ready.Load()
}

// Generation is incremented every time a refreshed key set is published.
func (p *Pool) Generation() uint64 {
	return p.generation.Load()
}

// CurrentIP returns the public address the current keys were issued for.
func (p *Pool) CurrentIP() netip.Addr {
	p.ipMu.RLock()
	defer p.ipMu.RUnlock()
	return p.ip
}

// Sessions returns the pool's sessions in rotation order.
func (p *Pool) Sessions() []*Session {
	return append([]*Session(nil), p.sessions...)
}

// Stats describes the pool.
func (p *Pool) Stats() Stats {
	st := Stats{
		Ready:      p.Ready(),
		Generation: p.Generation(),
	}
	ip := p.CurrentIP()
	if ip.IsValid() {
		st.IP = ip.String()
	}

	view := p.view.Load()
	for i, s := range p.sessions {
		ss := SessionStats{Identity: s.Identity(), Keys: len(s.Keys())}
		if view != nil && i < len(view.perSession) {
			ss.UsableKeys = view.perSession[i]
		}
		st.TotalKeys += ss.UsableKeys
		st.Sessions = append(st.Sessions, ss)
	}
	return st
}
