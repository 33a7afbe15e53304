// Package fetch retrieves web pages for URL ingestion. Every request goes
// through scheme and address validation (including each redirect hop and
// the dial-time resolved address) so a crafted URL cannot reach loopback or
// private networks, and robots.txt is honoured per host.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/synthesis-kb/synthesis/internal/errors"
)

const (
	// UserAgent identifies us to fetched sites and robots.txt.
	UserAgent = "synthesis-bot/1.0"

	// MaxBodyBytes caps a fetched page body.
	MaxBodyBytes = 10 << 20

	defaultTimeout = 30 * time.Second
)

// Page is a fetched document.
type Page struct {
	URL         string // final URL after redirects
	ContentType string
	Body        []byte
}

// Client is the guarded HTTP fetcher.
type Client struct {
	http *http.Client
	log  *slog.Logger

	mu     sync.Mutex
	robots map[string]*robotstxt.RobotsData // keyed by scheme://host
}

// New builds a Client. The underlying transport re-validates the resolved
// address at dial time, so DNS answers that change between validation and
// connect cannot bypass the guard.
func New(log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil {
				return fmt.Errorf("fetch: dial to unresolved host %q", host)
			}
			if reason := disallowedIP(ip); reason != "" {
				return fmt.Errorf("fetch: refusing to dial %s address %s", reason, ip)
			}
			return nil
		},
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("fetch: too many redirects")
				}
				return validateURL(req.URL)
			},
		},
		log:    log,
		robots: make(map[string]*robotstxt.RobotsData),
	}
}

// Fetch downloads a page. The URL must be http or https to a public
// address, and the host's robots.txt must allow our user agent.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.InvalidInputf("invalid url %q", rawURL)
	}
	if err := validateURL(u); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidInput, "url rejected")
	}

	allowed, err := c.robotsAllow(ctx, u)
	if err != nil {
		c.log.Warn("robots.txt check failed, proceeding", "host", u.Host, "error", err)
	} else if !allowed {
		return nil, errors.InvalidInputf("robots.txt disallows fetching %s", rawURL)
	}

	body, finalURL, contentType, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}
	return &Page{URL: finalURL, ContentType: contentType, Body: body}, nil
}

func (c *Client) get(ctx context.Context, rawURL string) (body []byte, finalURL, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", "", errors.Wrap(err, errors.CodeInvalidInput, "build request")
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", "", errors.Wrap(err, errors.CodeProviderUnavailable,
			fmt.Sprintf("fetch %s", rawURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, "", "", errors.RateLimited(resp.Request.URL.Host, nil)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", "", errors.NotFound("page", rawURL)
	}
	if resp.StatusCode >= 400 {
		return nil, "", "", errors.InvalidInputf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > MaxBodyBytes {
		return nil, "", "", errors.PayloadTooLarge(
			fmt.Sprintf("page is %d bytes, cap is %d", resp.ContentLength, MaxBodyBytes))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, "", "", errors.Wrap(err, errors.CodeProviderUnavailable, "read response body")
	}
	if len(data) > MaxBodyBytes {
		return nil, "", "", errors.PayloadTooLarge(
			fmt.Sprintf("page exceeds the %d byte cap", MaxBodyBytes))
	}
	return data, resp.Request.URL.String(), resp.Header.Get("Content-Type"), nil
}

// robotsAllow checks and caches the host's robots.txt verdict for our agent.
func (c *Client) robotsAllow(ctx context.Context, u *url.URL) (bool, error) {
	key := u.Scheme + "://" + u.Host

	c.mu.Lock()
	data, ok := c.robots[key]
	c.mu.Unlock()

	if !ok {
		raw, _, _, err := c.get(ctx, key+"/robots.txt")
		if err != nil {
			if errors.IsCode(err, errors.CodeNotFound) {
				// No robots.txt means everything is allowed.
				data = &robotstxt.RobotsData{}
			} else {
				return true, err
			}
		} else {
			data, err = robotstxt.FromBytes(raw)
			if err != nil {
				return true, err
			}
		}
		c.mu.Lock()
		c.robots[key] = data
		c.mu.Unlock()
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, UserAgent), nil
}

// validateURL enforces the scheme whitelist and resolves the host, rejecting
// loopback, link-local, private (RFC1918), and unique-local addresses for
// both address families. Applied to the initial URL and every redirect hop.
func validateURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if reason := disallowedIP(ip); reason != "" {
			return fmt.Errorf("%s address %s is not allowed", reason, ip)
		}
		return nil
	}
	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("loopback host %q is not allowed", host)
	}

	ips, err := net.DefaultResolver.LookupIPAddr(context.Background(), host)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", host, err)
	}
	for _, addr := range ips {
		if reason := disallowedIP(addr.IP); reason != "" {
			return fmt.Errorf("host %q resolves to %s address %s", host, reason, addr.IP)
		}
	}
	return nil
}

// disallowedIP names why an address is off limits, or returns "".
func disallowedIP(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback"
	case ip.IsUnspecified():
		return "unspecified"
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsPrivate():
		return "private"
	case ip.IsMulticast():
		return "multicast"
	}
	return ""
}
