package keypool

import (
	"fmt"
	"testing"
)

func tokensFor(identity string, n int) []Token {
	out := make([]Token, n)
	for i := range out {
		out[i] = Token{Identity: identity, KeyID: fmt.Sprintf("%s-%d", identity, i)}
	}
	return out
}

func TestRotation_SessionMajorOrder(t *testing.T) {
	r := newRotation(7, [][]Token{tokensFor("a", 3), tokensFor("b", 2), tokensFor("c", 4)})

	want := []string{"a-0", "a-1", "a-2", "b-0", "b-1", "c-0", "c-1", "c-2", "c-3", "a-0"}
	for i, id := range want {
		tok := r.at(uint64(i))
		if tok.KeyID != id {
			t.Errorf("at(%d) = %s, want %s", i, tok.KeyID, id)
		}
		if tok.Generation != 7 {
			t.Errorf("at(%d).Generation = %d, want 7", i, tok.Generation)
		}
	}
	if got := r.perSession; len(got) != 3 || got[0] != 3 || got[1] != 2 || got[2] != 4 {
		t.Errorf("perSession = %v, want [3 2 4]", got)
	}
}

func TestRotation_SkipsEmptySessions(t *testing.T) {
	r := newRotation(1, [][]Token{nil, tokensFor("b", 1), {}, tokensFor("d", 1)})

	for i, id := range []string{"b-0", "d-0", "b-0"} {
		if got := r.at(uint64(i)).KeyID; got != id {
			t.Errorf("at(%d) = %s, want %s", i, got, id)
		}
	}
}

func TestRotation_CursorWrap(t *testing.T) {
	r := newRotation(1, [][]Token{tokensFor("a", 3)})

	last := ^uint64(0)
	if got := r.at(last).KeyID; got != fmt.Sprintf("a-%d", last%3) {
		t.Errorf("at(last) = %s", got)
	}
	last++
	if got := r.at(last).KeyID; got != "a-0" {
		t.Errorf("at(last+1) = %s, want a-0", got)
	}
}

func TestNextKey_EmptyView(t *testing.T) {
	p := &Pool{}
	p.view.Store(newRotation(1, [][]Token{nil}))
	p.ready.Store(true)

	if _, err := p.NextKey(); err == nil {
		t.Error("expected error for a pool with no keys")
	}
}
