package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// checkIPURL answers with the caller's public IPv4 address in plain text.
const checkIPURL = "http://checkip.amazonaws.com"

// resolveDisplayHost decides the host[:port] embedded in the printed access
// URL: the PORTAL_HOST override wins, then the public-IP probe, then
// localhost. A port is appended unless the override already carries one.
func resolveDisplayHost(ctx context.Context, override string, port int) string {
	hostname := strings.TrimSpace(override)
	if hostname == "" {
		ip, err := fetchPublicIP(ctx, checkIPURL)
		if err != nil {
			hostname = "localhost"
		} else {
			hostname = ip
		}
	}
	if !strings.Contains(hostname, ":") {
		hostname = fmt.Sprintf("%s:%d", hostname, port)
	}
	return hostname
}

func fetchPublicIP(ctx context.Context, url string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", err
	}
	ip := strings.TrimSpace(string(b))
	if ip == "" {
		return "", fmt.Errorf("empty response from %s", url)
	}
	return ip, nil
}

// selfCheck verifies the portal answers at baseURL. Any HTTP response
// counts as reachable (403 just means no token); only a transport failure
// is an error.
func selfCheck(ctx context.Context, baseURL string) error {
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, baseURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
