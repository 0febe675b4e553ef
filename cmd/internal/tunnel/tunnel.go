// Package tunnel starts an optional external tunnel binary (ngrok or
// cloudflared) and discovers the public URL it exposes.
package tunnel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Provider names a supported tunnel binary.
type Provider string

const (
	ProviderNone        Provider = "none"
	ProviderNgrok       Provider = "ngrok"
	ProviderCloudflared Provider = "cloudflared"
)

// ParseProvider validates a --tunnel flag value.
func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderNone, ProviderNgrok, ProviderCloudflared:
		return Provider(s), nil
	default:
		return "", fmt.Errorf("unknown tunnel provider %q (want ngrok, cloudflared, or none)", s)
	}
}

const (
	ngrokAPIURL       = "http://127.0.0.1:4040/api/tunnels"
	ngrokWait         = 10 * time.Second
	cloudflaredWait   = 15 * time.Second
	ngrokPollInterval = 500 * time.Millisecond
)

var cloudflaredURLRe = regexp.MustCompile(`https://[a-z0-9-]+\.trycloudflare\.com`)

// Tunnel is a running tunnel subprocess and its public endpoint.
type Tunnel struct {
	PublicURL string
	cmd       *exec.Cmd
}

// Stop kills the subprocess and reaps it. Safe on a nil receiver.
func (t *Tunnel) Stop() {
	if t == nil || t.cmd == nil || t.cmd.Process == nil {
		return
	}
	_ = t.cmd.Process.Kill()
	_ = t.cmd.Wait()
}

// Start launches the provider's binary for the local port and waits a
// bounded time for it to report a public URL. ProviderNone returns nil.
func Start(ctx context.Context, provider Provider, port int) (*Tunnel, error) {
	switch provider {
	case ProviderNone:
		return nil, nil
	case ProviderNgrok:
		return startNgrok(ctx, port)
	case ProviderCloudflared:
		return startCloudflared(ctx, port)
	default:
		return nil, fmt.Errorf("unknown tunnel provider %q", provider)
	}
}

func startNgrok(ctx context.Context, port int) (*Tunnel, error) {
	cmd := exec.Command("ngrok", "http", strconv.Itoa(port), "--log", "stdout", "--log-format", "json")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ngrok: %w", err)
	}
	t := &Tunnel{cmd: cmd}

	// ngrok does not print its public URL; poll its local agent API.
	deadline := time.Now().Add(ngrokWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-time.After(ngrokPollInterval):
		}

		url, err := queryNgrokAPI(ctx, ngrokAPIURL)
		if err != nil {
			continue
		}
		if url != "" {
			t.PublicURL = url
			return t, nil
		}
	}

	t.Stop()
	return nil, errors.New("ngrok tunnel did not come up in time")
}

type ngrokTunnelList struct {
	Tunnels []struct {
		PublicURL string `json:"public_url"`
	} `json:"tunnels"`
}

// queryNgrokAPI asks the ngrok agent API for the first https public URL.
func queryNgrokAPI(ctx context.Context, apiURL string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return firstHTTPSTunnel(body)
}

func firstHTTPSTunnel(body []byte) (string, error) {
	var list ngrokTunnelList
	if err := json.Unmarshal(body, &list); err != nil {
		return "", err
	}
	for _, t := range list.Tunnels {
		if strings.HasPrefix(t.PublicURL, "https://") {
			return t.PublicURL, nil
		}
	}
	return "", nil
}

func startCloudflared(ctx context.Context, port int) (*Tunnel, error) {
	cmd := exec.Command("cloudflared", "tunnel", "--url", fmt.Sprintf("http://localhost:%d", port))
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("cloudflared stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start cloudflared: %w", err)
	}
	t := &Tunnel{cmd: cmd}

	// cloudflared prints the assigned URL on stderr.
	urlCh := make(chan string, 1)
	go func() {
		if url, ok := scanForCloudflaredURL(stderr); ok {
			urlCh <- url
		}
		close(urlCh)
	}()

	select {
	case <-ctx.Done():
		t.Stop()
		return nil, ctx.Err()
	case url, ok := <-urlCh:
		if !ok || url == "" {
			t.Stop()
			return nil, errors.New("cloudflared tunnel did not report a URL")
		}
		t.PublicURL = url
		return t, nil
	case <-time.After(cloudflaredWait):
		t.Stop()
		return nil, errors.New("cloudflared tunnel did not come up in time")
	}
}

// scanForCloudflaredURL reads lines until one carries a trycloudflare URL.
func scanForCloudflaredURL(r io.Reader) (string, bool) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if m := cloudflaredURLRe.FindString(sc.Text()); m != "" {
			return m, true
		}
	}
	return "", false
}
