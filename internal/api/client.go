package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultBaseURL is the public AirVPN API root.
const DefaultBaseURL = "https://airvpn.org/api"

const defaultTimeout = 30 * time.Second

// Client reads the AirVPN account API.
//
// Every call is a GET against baseURL plus an endpoint path, with the API key
// sent as the "key" query parameter and "format=json" forcing a JSON body.
// AirVPN rate limits per key, so a Client makes a single attempt per call
// unless WithRetries asks for more; only 5xx and 429 answers are retried.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient returns a Client for the API rooted at baseURL, or DefaultBaseURL
// when baseURL is empty. A trailing slash is dropped since endpoint paths
// carry their own. Surrounding whitespace in apiKey, common when the key is
// pasted into an env var, is removed.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(apiKey),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       slog.Default(),
		retryBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithTimeout bounds each HTTP attempt, including reading the body.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries allows up to n extra attempts on 5xx and 429 answers, waiting
// about backoff before the first and doubling after each.
func WithRetries(n int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max(n, 0)
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger. A nil logger keeps the default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient replaces the transport, e.g. with httptest's client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}
