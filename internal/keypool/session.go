package keypool

import (
	"context"
	"errors"
	"net/netip"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/cocapi/client-go/internal/apierrors"
	"github.com/cocapi/client-go/internal/developer"
)

// KeyCap is the most keys the console lets one account hold.
const KeyCap = 10

// errNoUsableKeys is the cause attached when a session ends a refresh
// without a key valid for the current IP.
var errNoUsableKeys = errors.New("no key allows the current ip")

// Credential is one developer console login.
type Credential struct {
	Email    string `koanf:"email"`
	Password string `koanf:"password"`
}

// Console is the part of the developer console a Session drives.
type Console interface {
	Login(ctx context.Context, email, password string) error
	ListKeys(ctx context.Context) ([]developer.Key, error)
	CreateKey(ctx context.Context, ip string) (developer.Key, error)
	RevokeKey(ctx context.Context, id string) error
}

// Session owns one credential and the keys it holds.
type Session struct {
	cred    Credential
	console Console
	log     hclog.Logger

	mu            sync.Mutex
	keys          []developer.Key
	authenticated bool
}

// NewSession creates an unauthenticated session.
func NewSession(cred Credential, console Console, logger hclog.Logger) *Session {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Session{
		cred:    cred,
		console: console,
		log:     logger.With("identity", cred.Email),
	}
}

// Identity returns the login the session acts for.
func (s *Session) Identity() string {
	return s.cred.Email
}

// Authenticated reports whether Authenticate has succeeded.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Keys returns a copy of the keys last seen on the console.
func (s *Session) Keys() []developer.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]developer.Key(nil), s.keys...)
}

// UsableKeys returns the held keys that allow ip, in console order.
func (s *Session) UsableKeys(ip netip.Addr) []developer.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []developer.Key
	for _, k := range s.keys {
		if k.AllowsIP(ip) {
			out = append(out, k)
		}
	}
	return out
}

// Authenticate logs in, lists the account's keys and makes sure at least
// one of them allows ip. An account with no keys gets KeyCap new ones.
func (s *Session) Authenticate(ctx context.Context, ip netip.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loginLocked(ctx); err != nil {
		return err
	}
	s.authenticated = true
	return s.reconcileLocked(ctx, ip)
}

// RefreshKeys revokes every held key that does not allow ip and creates the
// same number of replacements scoped to ip. The console session is renewed
// first since it may have expired since Authenticate.
func (s *Session) RefreshKeys(ctx context.Context, ip netip.Addr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loginLocked(ctx); err != nil {
		s.authenticated = false
		return err
	}
	s.authenticated = true
	return s.reconcileLocked(ctx, ip)
}

func (s *Session) loginLocked(ctx context.Context) error {
	if err := s.console.Login(ctx, s.cred.Email, s.cred.Password); err != nil {
		return s.fail("login", err)
	}
	keys, err := s.console.ListKeys(ctx)
	if err != nil {
		return s.fail("list keys", err)
	}
	s.keys = keys
	return nil
}

// reconcileLocked brings s.keys to a state where every key allows ip and
// the count stays within KeyCap. Revocations always happen before
// creations so the account never exceeds the cap.
func (s *Session) reconcileLocked(ctx context.Context, ip netip.Addr) error {
	var fresh, stale []developer.Key
	for _, k := range s.keys {
		if k.AllowsIP(ip) {
			fresh = append(fresh, k)
		} else {
			stale = append(stale, k)
		}
	}

	target := len(s.keys)
	if target == 0 {
		target = KeyCap
	}
	if target > KeyCap {
		target = KeyCap
	}
	if len(fresh) > target {
		stale = append(stale, fresh[target:]...)
		fresh = fresh[:target]
	}

	if len(stale) == 0 && len(fresh) == target {
		return nil
	}

	s.log.Info("refreshing keys", "ip", ip.String(), "usable", len(fresh), "stale", len(stale), "target", target)

	for _, k := range stale {
		if err := s.console.RevokeKey(ctx, k.ID); err != nil {
			return s.fail("revoke key", err)
		}
	}
	for i := len(fresh); i < target; i++ {
		if _, err := s.console.CreateKey(ctx, ip.String()); err != nil {
			return s.fail("create key", err)
		}
	}

	keys, err := s.console.ListKeys(ctx)
	if err != nil {
		return s.fail("list keys", err)
	}
	s.keys = keys

	for _, k := range keys {
		if k.AllowsIP(ip) {
			return nil
		}
	}
	return s.fail("refresh keys", errNoUsableKeys)
}

func (s *Session) fail(op string, err error) error {
	s.log.Warn("console call failed", "op", op, "error", err)
	return &apierrors.LoginError{Identity: s.cred.Email, Op: op, Err: err}
}
