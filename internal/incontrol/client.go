// Package incontrol is a minimal client for the Peplink InControl2 REST API:
// the OAuth2 client-credentials token endpoint and the organization and
// device inventory reads.
package incontrol

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"warrantyreport/internal/common/logger"
)

// DefaultBaseURL is the public InControl2 API endpoint.
const DefaultBaseURL = "https://api.ic.peplink.com"

const (
	defaultTimeout = 30 * time.Second
	// maxBodySize bounds how much of any response is read into memory.
	maxBodySize = 32 << 20
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	BaseURL   string
	ProxyURL  string
	Timeout   time.Duration
	UserAgent string
	Logger    *slog.Logger
}

// Client issues InControl2 API requests. Each method makes exactly one HTTP
// request; nothing is paced, retried or cached.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Client from opts.
func NewClient(opts Options) (*Client, error) {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxy)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL:   base,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: opts.Logger,
	}, nil
}

// BaseURL returns the API root requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends req and returns the status code and body. A non-2xx status is
// not an error here; callers map it to their own error type.
func (c *Client) do(req *http.Request) (int, []byte, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	logger.LogDebug(c.logger, "API request completed",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start).Round(time.Millisecond))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) newBearerRequest(ctx context.Context, path string, query url.Values, token string) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
