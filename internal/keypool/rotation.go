package keypool

import (
	"github.com/cocapi/client-go/internal/apierrors"
	"github.com/cocapi/client-go/internal/developer"
)

// Token is one key handed out for a single request.
type Token struct {
	Identity string
	KeyID    string
	Secret   string
	// Generation is the pool generation the key was issued under. Pass it to
	// ReinitSince when the key is rejected.
	Generation uint64
}

// Fingerprint returns a log-safe digest of the secret.
func (t Token) Fingerprint() string {
	return developer.Fingerprint(t.Secret)
}

// rotation is an immutable view of the flattened (session, key) space.
// Tokens are stored session-major, key-minor in pool construction order.
type rotation struct {
	tokens     []Token
	perSession []int
	generation uint64
}

func newRotation(generation uint64, sessions [][]Token) *rotation {
	r := &rotation{
		perSession: make([]int, len(sessions)),
		generation: generation,
	}
	for i, keys := range sessions {
		r.perSession[i] = len(keys)
		for _, tok := range keys {
			tok.Generation = generation
			r.tokens = append(r.tokens, tok)
		}
	}
	return r
}

// at maps a cursor value onto the flattened key space. The modulus is
// taken against this view's own length, so the result is always in range
// no matter how key counts changed between views.
func (r *rotation) at(n uint64) Token {
	return r.tokens[n%uint64(len(r.tokens))]
}

// NextKey returns the next key in round-robin order across every session.
// N calls, where N is the total key count, visit each key exactly once.
// It performs no I/O and is safe for concurrent use.
func (p *Pool) NextKey() (Token, error) {
	if !p.ready.Load() {
		return Token{}, apierrors.ErrClientNotReady
	}
	view := p.view.Load()
	if view == nil || len(view.tokens) == 0 {
		return Token{}, apierrors.ErrClientNotReady
	}
	n := p.cursor.Add(1) - 1
	return view.at(n), nil
}
