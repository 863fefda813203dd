package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/vk/wasmchat/internal/ctxlog"
)

// Config describes the rerouting policy for a Client.
type Config struct {
	// RestrictedHost is the origin whose direct retrievals are expected to
	// be rejected. Subdomains of it are treated as restricted too.
	RestrictedHost string

	// MirrorHosts are known-safe origins that serve the same resources;
	// URLs already pointing at one of them never need indirection.
	MirrorHosts []string

	// Proxies is the ordered candidate list of endpoint templates. The
	// percent-encoded original URL is appended to each template.
	Proxies []string

	// Timeout applies per attempt.
	Timeout time.Duration
}

// TransportError reports that a retrieval exhausted every candidate and the
// final direct attempt. Per-candidate failures are never surfaced
// individually.
type TransportError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("retrieval of %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client performs network retrieval with the rerouting policy applied.
type Client struct {
	cfg  Config
	http *resty.Client
}

// New creates a Client. Callers own its lifecycle and should Close it when
// done.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: resty.New().SetTimeout(cfg.Timeout),
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	c.http.Close()
	return nil
}

// Fetch retrieves the resource at rawURL and returns its body. Resources on
// the restricted host are routed through the proxy candidates in fixed
// order; everything else goes direct and the candidate list is never
// consulted.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing resource URL: %w", err)
	}

	if !c.needsProxy(u) {
		logger.Debug("Fetching resource directly.")
		return c.get(ctx, rawURL)
	}

	attempts := 0
	for i, tmpl := range c.cfg.Proxies {
		attempts++
		proxied := tmpl + url.QueryEscape(rawURL)
		body, err := c.get(ctx, proxied)
		if err != nil {
			// Skip, never retry; the next candidate gets its chance.
			logger.Debug("Proxy candidate failed.", "candidate", i, "error", err)
			continue
		}
		logger.Debug("Proxy candidate succeeded.", "candidate", i)
		return body, nil
	}

	// Last resort: the direct path may have been unblocked since the list
	// was configured.
	logger.Debug("All proxy candidates exhausted, attempting direct retrieval.")
	attempts++
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Attempts: attempts, Err: err}
	}
	return body, nil
}

// needsProxy reports whether the resource's origin requires indirection:
// true iff it is the restricted host (or a subdomain) and not one of the
// known-safe mirrors.
func (c *Client) needsProxy(u *url.URL) bool {
	host := u.Hostname()
	if c.cfg.RestrictedHost == "" {
		return false
	}
	for _, mirror := range c.cfg.MirrorHosts {
		if host == mirror {
			return false
		}
	}
	return host == c.cfg.RestrictedHost || strings.HasSuffix(host, "."+c.cfg.RestrictedHost)
}

// get performs one retrieval attempt. A non-success HTTP status is an error
// so that the fallback chain classifies it like a transport fault.
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(u)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return resp.Bytes(), nil
}
