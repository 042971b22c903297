package developer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"strings"

	"github.com/cocapi/client-go/internal/apierrors"
)

// DefaultIPEchoURL returns the caller's public address as plain text.
const DefaultIPEchoURL = "https://api.ipify.org"

// maxIPBody caps how much of the echo response is read.
const maxIPBody = 256

// IPResolver asks an external echo service for the host's public address.
type IPResolver struct {
	URL        string
	HTTPClient *http.Client
}

// Resolve returns the public address reported by the echo service.
func (r *IPResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	url := r.URL
	if url == "" {
		url = DefaultIPEchoURL
	}
	httpClient := r.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return netip.Addr{}, &apierrors.NetworkError{Err: err, URL: url}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIPBody))
	if err != nil {
		return netip.Addr{}, &apierrors.NetworkError{Err: err, URL: url}
	}
	if resp.StatusCode != http.StatusOK {
		return netip.Addr{}, &apierrors.APIError{StatusCode: resp.StatusCode, Body: body}
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(string(body)))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("parse public ip %q: %w", strings.TrimSpace(string(body)), err)
	}
	return addr.Unmap(), nil
}
