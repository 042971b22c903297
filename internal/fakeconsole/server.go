// Package fakeconsole is an in-memory developer console, IP echo service and
// game API front door for tests. It issues keys, enforces their IP ranges and counts every call
// so tests can assert on exactly how much key management happened.
package fakeconsole

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cocapi/client-go/internal/developer"
)

const sessionCookie = "session"

// DefaultIP is the public address reported until SetIP is called.
const DefaultIP = "198.51.100.7"

type account struct {
	password string
	keys     []developer.Key
}

// Server is a fake developer console.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	ip         string
	accounts   map[string]*account
	nextID     int
	failCreate bool
	failList   bool
	game       http.Handler

	Logins  atomic.Int32
	Lists   atomic.Int32
	Creates atomic.Int32
	Revokes atomic.Int32
	IPCalls atomic.Int32
	// GameCalls counts game API requests, rejected ones included.
	GameCalls atomic.Int32
}

// New starts a fake console. Callers must Close it.
func New() *Server {
	s := &Server{
		ip:       DefaultIP,
		accounts: make(map[string]*account),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ip", s.handleIP)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/apikey/list", s.withAccount(s.handleList))
	mux.HandleFunc("/api/apikey/create", s.withAccount(s.handleCreate))
	mux.HandleFunc("/api/apikey/revoke", s.withAccount(s.handleRevoke))
	mux.HandleFunc("/v1/", s.handleGame)
	s.Server = httptest.NewServer(mux)
	return s
}

// IPURL is the echo endpoint to hand to an IPResolver.
func (s *Server) IPURL() string {
	return s.URL + "/ip"
}

// GameURL is the game API base URL. Requests under it are rejected with 403
// unless they carry a live key valid for the current IP.
func (s *Server) GameURL() string {
	return s.URL + "/v1"
}

// HandleGame sets the handler for authorized game API requests. Without
// one, authorized requests get an empty JSON object.
func (s *Server) HandleGame(h http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game = h
}

// AddAccount registers a login.
func (s *Server) AddAccount(email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = &account{password: password}
}

// SeedKey adds a key to an account without going through the API.
func (s *Server) SeedKey(email string, cidrs ...string) developer.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[email]
	key := s.newKeyLocked("seeded", "seeded key", cidrs)
	acc.keys = append(acc.keys, key)
	return key
}

// RemoveKey drops a key as if it had been revoked out of band.
func (s *Server) RemoveKey(email, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[email]
	acc.keys = removeKey(acc.keys, id)
}

// SetIP changes the address reported by the echo endpoint and enforced on keys.
func (s *Server) SetIP(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ip = ip
}

// SetFailCreate makes key creation fail with a 500.
func (s *Server) SetFailCreate(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = fail
}

// SetFailList makes key listing fail with a 500.
func (s *Server) SetFailList(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failList = fail
}

// Keys returns a copy of the keys an account holds.
func (s *Server) Keys(email string) []developer.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[email]
	if !ok {
		return nil
	}
	return append([]developer.Key(nil), acc.keys...)
}

// Authorized reports whether token is a live key that allows the current IP.
func (s *Server) Authorized(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ip, err := netip.ParseAddr(s.ip)
	if err != nil {
		return false
	}
	for _, acc := range s.accounts {
		for _, k := range acc.keys {
			if k.Key == token {
				return k.AllowsIP(ip)
			}
		}
	}
	return false
}

// AuthorizeRequest checks the bearer token of a game API request.
func (s *Server) AuthorizeRequest(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && s.Authorized(token)
}

func (s *Server) handleIP(w http.ResponseWriter, r *http.Request) {
	s.IPCalls.Add(1)
	s.mu.Lock()
	ip := s.ip
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, ip)
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	s.GameCalls.Add(1)
	if !s.AuthorizeRequest(r) {
		writeError(w, http.StatusForbidden, "accessDenied.invalidIp", "Invalid authorization: API key does not allow access from this IP")
		return
	}
	s.mu.Lock()
	h := s.game
	s.mu.Unlock()
	if h == nil {
		writeJSON(w, map[string]any{})
		return
	}
	h.ServeHTTP(w, r)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.Logins.Add(1)
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", err.Error())
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[body.Email]
	s.mu.Unlock()
	if !ok || acc.password != body.Password {
		writeError(w, http.StatusForbidden, "invalidCredentials", "invalid credentials")
		return
	}

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: body.Email, Path: "/"})
	writeJSON(w, map[string]any{"status": map[string]any{"code": 0, "message": "ok"}})
}

func (s *Server) withAccount(next func(http.ResponseWriter, *http.Request, *account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			writeError(w, http.StatusForbidden, "accessDenied", "not logged in")
			return
		}
		s.mu.Lock()
		acc, ok := s.accounts[cookie.Value]
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusForbidden, "accessDenied", "unknown session")
			return
		}
		next(w, r, acc)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, acc *account) {
	s.Lists.Add(1)
	s.mu.Lock()
	fail := s.failList
	keys := append([]developer.Key{}, acc.keys...)
	s.mu.Unlock()
	if fail {
		writeError(w, http.StatusInternalServerError, "unknownException", "list failed")
		return
	}
	writeJSON(w, map[string]any{"keys": keys})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, acc *account) {
	s.Creates.Add(1)
	var body struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		CidrRanges  []string `json:"cidrRanges"`
		Scopes      []string `json:"scopes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", err.Error())
		return
	}

	s.mu.Lock()
	if s.failCreate {
		s.mu.Unlock()
		writeError(w, http.StatusInternalServerError, "unknownException", "create failed")
		return
	}
	if len(acc.keys) >= 10 {
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, "tooManyKeys", "key limit reached")
		return
	}
	key := s.newKeyLocked(body.Name, body.Description, body.CidrRanges)
	key.Scopes = body.Scopes
	acc.keys = append(acc.keys, key)
	s.mu.Unlock()

	writeJSON(w, map[string]any{"key": key})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request, acc *account) {
	s.Revokes.Add(1)
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "badRequest", err.Error())
		return
	}

	s.mu.Lock()
	acc.keys = removeKey(acc.keys, body.ID)
	s.mu.Unlock()
	writeJSON(w, map[string]any{"status": map[string]any{"code": 0}})
}

func (s *Server) newKeyLocked(name, description string, cidrs []string) developer.Key {
	s.nextID++
	id := fmt.Sprintf("key-%d", s.nextID)
	return developer.Key{
		ID:          id,
		Name:        name,
		Description: description,
		CidrRanges:  append([]string(nil), cidrs...),
		Scopes:      []string{developer.DefaultScope},
		Key:         "token-" + id,
	}
}

func removeKey(keys []developer.Key, id string) []developer.Key {
	out := keys[:0]
	for _, k := range keys {
		if k.ID != id {
			out = append(out, k)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"reason": reason, "message": message})
}
