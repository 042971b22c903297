package keypool

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cocapi/client-go/internal/apierrors"
	"github.com/cocapi/client-go/internal/developer"
	"github.com/cocapi/client-go/internal/fakeconsole"
	"github.com/cocapi/client-go/internal/metrics"
)

// gatedResolver wraps the fake echo endpoint and can hold callers until
// released.
type gatedResolver struct {
	inner developer.IPResolver
	calls atomic.Int32

	mu   sync.Mutex
	gate chan struct{}
}

func (r *gatedResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	r.calls.Add(1)
	r.mu.Lock()
	gate := r.gate
	r.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return r.inner.Resolve(ctx)
}

func (r *gatedResolver) hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
}

func (r *gatedResolver) release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	close(r.gate)
	r.gate = nil
}

// newFixture starts a fake console with one account per key count, each
// seeded with keys that allow the fake's default IP.
func newFixture(t *testing.T, keyCounts ...int) (*fakeconsole.Server, []Credential) {
	t.Helper()
	srv := fakeconsole.New()
	t.Cleanup(srv.Close)

	emails := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	var creds []Credential
	for i, n := range keyCounts {
		email := emails[i]
		srv.AddAccount(email, testPassword)
		for j := 0; j < n; j++ {
			srv.SeedKey(email, fakeconsole.DefaultIP)
		}
		creds = append(creds, Credential{Email: email, Password: testPassword})
	}
	return srv, creds
}

func testConfig(srv *fakeconsole.Server, creds []Credential) Config {
	return Config{
		Credentials:  creds,
		DeveloperURL: srv.URL,
		IPEchoURL:    srv.IPURL(),
	}
}

func TestInit_RotationFairness(t *testing.T) {
	srv, creds := newFixture(t, 3, 2, 4)

	p, err := Init(context.Background(), testConfig(srv, creds))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if !p.Ready() {
		t.Fatal("Ready() = false after Init")
	}
	if got := srv.IPCalls.Load(); got != 1 {
		t.Errorf("ip lookups = %d, want 1", got)
	}

	var want []Token
	for _, s := range p.Sessions() {
		for _, k := range s.UsableKeys(netip.MustParseAddr(fakeconsole.DefaultIP)) {
			want = append(want, Token{Identity: s.Identity(), KeyID: k.ID, Secret: k.Key, Generation: 1})
		}
	}
	if len(want) != 9 {
		t.Fatalf("total keys = %d, want 9", len(want))
	}

	seen := make(map[string]bool)
	for i := 0; i < 9; i++ {
		tok, err := p.NextKey()
		if err != nil {
			t.Fatalf("NextKey() error = %v", err)
		}
		if tok != want[i] {
			t.Errorf("call %d = %+v, want %+v", i+1, tok, want[i])
		}
		seen[tok.KeyID] = true
	}
	if len(seen) != 9 {
		t.Errorf("distinct keys = %d, want 9", len(seen))
	}

	tok, _ := p.NextKey()
	if tok != want[0] {
		t.Errorf("10th call = %+v, want wrap to %+v", tok, want[0])
	}
}

func TestInit_SessionOrderMatchesCredentials(t *testing.T) {
	srv, creds := newFixture(t, 1, 1, 1)

	p, err := Init(context.Background(), testConfig(srv, creds))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	for i, s := range p.Sessions() {
		if s.Identity() != creds[i].Email {
			t.Errorf("session %d = %s, want %s", i, s.Identity(), creds[i].Email)
		}
	}
}

func TestInit_FailsIfAnyCredentialFails(t *testing.T) {
	srv, creds := newFixture(t, 1, 1, 1)
	creds[1].Password = "wrong"

	p, err := Init(context.Background(), testConfig(srv, creds))
	if err == nil {
		t.Fatal("expected Init to fail")
	}
	if p != nil {
		t.Error("pool should be nil on failure")
	}
	if !errors.Is(err, apierrors.ErrLoginFailed) {
		t.Errorf("error = %v, want ErrLoginFailed", err)
	}
}

func TestInit_InvalidCredentials(t *testing.T) {
	srv := fakeconsole.New()
	defer srv.Close()

	tests := []struct {
		name  string
		creds []Credential
	}{
		{"empty", nil},
		{"missing password", []Credential{{Email: "a@example.com"}}},
		{"duplicate", []Credential{{Email: "a@example.com", Password: "x"}, {Email: "a@example.com", Password: "y"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), testConfig(srv, tt.creds))
			if !errors.Is(err, apierrors.ErrInvalidParameters) {
				t.Errorf("error = %v, want ErrInvalidParameters", err)
			}
		})
	}
	if got := srv.IPCalls.Load(); got != 0 {
		t.Errorf("ip lookups = %d, want 0", got)
	}
}

func TestInit_IPLookupFailure(t *testing.T) {
	srv, creds := newFixture(t, 1)
	cfg := testConfig(srv, creds)
	cfg.IPEchoURL = srv.URL + "/missing"

	_, err := Init(context.Background(), cfg)
	if !errors.Is(err, apierrors.ErrLoginFailed) {
		t.Errorf("error = %v, want ErrLoginFailed", err)
	}
	if got := srv.Logins.Load(); got != 0 {
		t.Errorf("logins = %d, want 0", got)
	}
}

func TestNextKey_NotReady(t *testing.T) {
	srv, creds := newFixture(t, 1)

	p, err := newPool(testConfig(srv, creds))
	if err != nil {
		t.Fatalf("newPool() error = %v", err)
	}
	if _, err := p.NextKey(); !errors.Is(err, apierrors.ErrClientNotReady) {
		t.Errorf("NextKey() error = %v, want ErrClientNotReady", err)
	}
}

func TestNextKey_ConcurrentFairness(t *testing.T) {
	srv, creds := newFixture(t, 3, 2, 4)

	p, err := Init(context.Background(), testConfig(srv, creds))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	const workers, perWorker = 30, 90
	var mu sync.Mutex
	counts := make(map[string]int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make(map[string]int)
			for i := 0; i < perWorker; i++ {
				tok, err := p.NextKey()
				if err != nil {
					t.Errorf("NextKey() error = %v", err)
					return
				}
				local[tok.KeyID]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(counts) != 9 {
		t.Fatalf("distinct keys = %d, want 9", len(counts))
	}
	for id, n := range counts {
		if n != workers*perWorker/9 {
			t.Errorf("key %s used %d times, want %d", id, n, workers*perWorker/9)
		}
	}
}

func TestReinit_ReplacesStaleKeys(t *testing.T) {
	srv, creds := newFixture(t, 2, 3)
	ctx := context.Background()

	p, err := Init(ctx, testConfig(srv, creds))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	old, _ := p.NextKey()

	srv.SetIP("203.0.113.9")
	if srv.Authorized(old.Secret) {
		t.Fatal("old key should be stale after the IP change")
	}

	if err := p.Reinit(ctx); err != nil {
		t.Fatalf("Reinit() error = %v", err)
	}
	if got := p.CurrentIP().String(); got != "203.0.113.9" {
		t.Errorf("CurrentIP() = %s, want 203.0.113.9", got)
	}
	if got := p.Generation(); got != 2 {
		t.Errorf("Generation() = %d, want 2", got)
	}
	if got := srv.Revokes.Load(); got != 5 {
		t.Errorf("revokes = %d, want 5", got)
	}

	st := p.Stats()
	if st.TotalKeys != 5 {
		t.Errorf("TotalKeys = %d, want 5", st.TotalKeys)
	}
	for i := 0; i < st.TotalKeys; i++ {
		tok, err := p.NextKey()
		if err != nil {
			t.Fatalf("NextKey() error = %v", err)
		}
		if !srv.Authorized(tok.Secret) {
			t.Errorf("key %s not valid for the new IP", tok.KeyID)
		}
		if tok.Generation != 2 {
			t.Errorf("Generation = %d, want 2", tok.Generation)
		}
	}
}

func TestReinit_SingleFlight(t *testing.T) {
	srv, creds := newFixture(t, 1, 1)
	resolver := &gatedResolver{inner: developer.IPResolver{URL: srv.IPURL()}}
	cfg := testConfig(srv, creds)
	cfg.Resolver = resolver
	ctx := context.Background()

	p, err := Init(ctx, cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	logins := srv.Logins.Load()

	resolver.hold()
	const callers = 10
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.ReinitSince(ctx, 1)
		}()
	}

	waitFor(t, func() bool { return resolver.calls.Load() == 2 })
	if p.Ready() {
		t.Error("Ready() = true while reinit is running")
	}
	if _, err := p.NextKey(); !errors.Is(err, apierrors.ErrClientNotReady) {
		t.Errorf("NextKey() during reinit error = %v, want ErrClientNotReady", err)
	}
	time.Sleep(50 * time.Millisecond)
	resolver.release()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Reinit() error = %v", err)
		}
	}
	if got := resolver.calls.Load(); got != 2 {
		t.Errorf("ip lookups = %d, want 2 (init + one reinit)", got)
	}
	if got := srv.Logins.Load() - logins; got != 2 {
		t.Errorf("logins during reinit = %d, want 2 (one per session)", got)
	}
	if got := p.Generation(); got != 2 {
		t.Errorf("Generation() = %d, want 2", got)
	}
}

func TestReinitSince_SkipsWhenAlreadyRefreshed(t *testing.T) {
	srv, creds := newFixture(t, 1)
	ctx := context.Background()

	p, err := Init(ctx, testConfig(srv, creds))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	tok, _ := p.NextKey()

	if err := p.ReinitSince(ctx, tok.Generation); err != nil {
		t.Fatalf("ReinitSince() error = %v", err)
	}
	lookups := srv.IPCalls.Load()

	// A second rejection of a key from the old generation must not refresh again.
	if err := p.ReinitSince(ctx, tok.Generation); err != nil {
		t.Fatalf("ReinitSince() error = %v", err)
	}
	if got := srv.IPCalls.Load(); got != lookups {
		t.Errorf("ip lookups = %d, want %d", got, lookups)
	}
	if got := p.Generation(); got != 2 {
		t.Errorf("Generation() = %d, want 2", got)
	}
}

func TestReinit_FailureLeavesPoolNotReady(t *testing.T) {
	srv, creds := newFixture(t, 1, 1)
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	cfg := testConfig(srv, creds)
	cfg.Metrics = metrics.New(reg)

	p, err := Init(ctx, cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	srv.SetIP("203.0.113.9")
	srv.SetFailCreate(true)

	err = p.Reinit(ctx)
	if !errors.Is(err, apierrors.ErrLoginFailed) {
		t.Fatalf("Reinit() error = %v, want ErrLoginFailed", err)
	}
	if p.Ready() {
		t.Error("Ready() = true after failed reinit")
	}
	if _, err := p.NextKey(); !errors.Is(err, apierrors.ErrClientNotReady) {
		t.Errorf("NextKey() error = %v, want ErrClientNotReady", err)
	}

	srv.SetFailCreate(false)
	if err := p.Reinit(ctx); err != nil {
		t.Fatalf("Reinit() after recovery error = %v", err)
	}
	if !p.Ready() {
		t.Error("Ready() = false after recovery")
	}
	tok, err := p.NextKey()
	if err != nil {
		t.Fatalf("NextKey() error = %v", err)
	}
	if !srv.Authorized(tok.Secret) {
		t.Error("recovered key is not valid")
	}
}

func TestReinit_CallerCancellationDoesNotStrandPool(t *testing.T) {
	srv, creds := newFixture(t, 1)
	resolver := &gatedResolver{inner: developer.IPResolver{URL: srv.IPURL()}}
	cfg := testConfig(srv, creds)
	cfg.Resolver = resolver

	p, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	resolver.hold()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Reinit(ctx) }()

	waitFor(t, func() bool { return resolver.calls.Load() == 2 })
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Reinit() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Reinit did not return after cancellation")
	}

	resolver.release()
	waitFor(t, p.Ready)
	if got := p.Generation(); got != 2 {
		t.Errorf("Generation() = %d, want 2", got)
	}
}

func TestStats(t *testing.T) {
	srv, creds := newFixture(t, 2, 1)

	p, err := Init(context.Background(), testConfig(srv, creds))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	st := p.Stats()
	if !st.Ready || st.IP != fakeconsole.DefaultIP || st.Generation != 1 || st.TotalKeys != 3 {
		t.Errorf("Stats() = %+v", st)
	}
	if len(st.Sessions) != 2 {
		t.Fatalf("len(Sessions) = %d, want 2", len(st.Sessions))
	}
	if st.Sessions[0].UsableKeys != 2 || st.Sessions[1].UsableKeys != 1 {
		t.Errorf("Sessions = %+v", st.Sessions)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
