package developer

import (
	"encoding/hex"
	"net/netip"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Key is an API key as listed by the developer console.
type Key struct {
	ID          string   `json:"id"`
	DeveloperID string   `json:"developerId,omitempty"`
	Tier        string   `json:"tier,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Scopes      []string `json:"scopes"`
	CidrRanges  []string `json:"cidrRanges"`
	Key         string   `json:"key"`
}

// AllowsIP reports whether ip falls inside any of the key's ranges.
// Entries without a prefix length are treated as single addresses.
func (k Key) AllowsIP(ip netip.Addr) bool {
	ip = ip.Unmap()
	for _, r := range k.CidrRanges {
		prefix, ok := parseRange(r)
		if ok && prefix.Contains(ip) {
			return true
		}
	}
	return false
}

// Fingerprint returns a short, stable digest of the secret for log lines.
func (k Key) Fingerprint() string {
	return Fingerprint(k.Key)
}

// Fingerprint hashes a key secret with BLAKE2b and returns the first eight
// bytes in hex.
func Fingerprint(secret string) string {
	sum := blake2b.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8])
}

func parseRange(r string) (netip.Prefix, bool) {
	r = strings.TrimSpace(r)
	if strings.Contains(r, "/") {
		p, err := netip.ParsePrefix(r)
		if err != nil {
			return netip.Prefix{}, false
		}
		return p.Masked(), true
	}
	addr, err := netip.ParseAddr(r)
	if err != nil {
		return netip.Prefix{}, false
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), true
}

// loginRequest is the POST /api/login body.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// keyListResponse is the POST /api/apikey/list response.
type keyListResponse struct {
	Keys []Key `json:"keys"`
}

// createKeyRequest is the POST /api/apikey/create body.
type createKeyRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	CidrRanges  []string `json:"cidrRanges"`
	Scopes      []string `json:"scopes"`
}

// createKeyResponse is the POST /api/apikey/create response.
type createKeyResponse struct {
	Key Key `json:"key"`
}

// revokeKeyRequest is the POST /api/apikey/revoke body.
type revokeKeyRequest struct {
	ID string `json:"id"`
}
