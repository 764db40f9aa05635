package gtfs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ClientOptions configures a bundle Client.
type ClientOptions struct {
	StaticURL string
	Timeout   time.Duration // whole download, 0 means none
	UserAgent string
	RateLimit float64
	RateBurst int
	Transport http.RoundTripper
}

// Client downloads static GTFS bundles.
type Client struct {
	staticURL  string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a bundle client for opts.StaticURL.
func NewClient(opts ClientOptions) *Client {
	c := &Client{
		staticURL:  opts.StaticURL,
		httpClient: &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		userAgent:  opts.UserAgent,
	}
	if opts.RateLimit > 0 {
		burst := max(opts.RateBurst, 1)
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c
}

// BundleURL returns the static URL with category added as a query parameter.
func (c *Client) BundleURL(category string) (string, error) {
	u, err := url.Parse(c.staticURL)
	if err != nil {
		return "", fmt.Errorf("parse static url: %w", err)
	}
	if category != "" {
		q := u.Query()
		q.Set("category", category)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// FetchBundle opens a download of the bundle for category. The body is returned
// unbuffered; the caller must close it. Non-2xx responses are errors.
func (c *Client) FetchBundle(ctx context.Context, category string) (io.ReadCloser, error) {
	target, err := c.BundleURL(category)
	if err != nil {
		return nil, err
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to fetch bundle %s: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, target)
	}
	return resp.Body, nil
}
