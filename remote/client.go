// Package remote is the client for the Hackpad 1.0 REST API.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/wolfeidau/hackpad-cli/telemetry"
)

const (
	// DefaultTimeout is the default timeout for API requests.
	DefaultTimeout = 30 * time.Second

	// DefaultRequestsPerSecond is the default sustained request rate.
	DefaultRequestsPerSecond = 10

	// DefaultConcurrency bounds parallel title lookups when listing pads.
	DefaultConcurrency = 4

	// DefaultSearchLimit is the page size used for searches.
	DefaultSearchLimit = 20

	apiPrefix = "/api/1.0"

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 1024
)

// ErrNotFound is returned when the API responds with 404.
var ErrNotFound = errors.New("not found")

// Client talks to a single Hackpad site.
type Client struct {
	site        string
	clientID    string
	secret      string
	httpClient  *http.Client
	timeout     time.Duration
	limiter     *rate.Limiter
	concurrency int
	searchLimit int
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client whose transport requests are sent through.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithCredentials enables two-legged OAuth 1.0a signing with the workspace
// client id and secret.
func WithCredentials(clientID, secret string) Option {
	return func(c *Client) {
		c.clientID = clientID
		c.secret = secret
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRateLimit limits requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithConcurrency sets how many pad titles are fetched in parallel.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		c.concurrency = max(n, 1)
	}
}

// WithSearchLimit sets the number of results requested per search.
func WithSearchLimit(n int) Option {
	return func(c *Client) {
		c.searchLimit = n
	}
}

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the site at siteURL.
func New(siteURL string, opts ...Option) *Client {
	c := &Client{
		site:        strings.TrimSuffix(siteURL, "/"),
		timeout:     DefaultTimeout,
		limiter:     rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), DefaultRequestsPerSecond),
		concurrency: DefaultConcurrency,
		searchLimit: DefaultSearchLimit,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var base http.RoundTripper
	if c.httpClient != nil {
		base = c.httpClient.Transport
	}
	instrumented := &http.Client{Transport: telemetry.NewInstrumentedTransport(base)}

	if c.clientID != "" {
		// oauth1 signs on top of the transport carried by the context client.
		ctx := context.WithValue(context.Background(), oauth1.HTTPClient, instrumented)
		c.httpClient = oauth1.NewConfig(c.clientID, c.secret).Client(ctx, oauth1.NewToken("", ""))
	} else {
		c.httpClient = instrumented
	}
	c.httpClient.Timeout = c.timeout

	return c
}

// Site returns the base URL of the site.
func (c *Client) Site() string {
	return c.site
}

// get performs a GET against the API and returns the response body.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	target := c.site + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	ctx = telemetry.WithEndpoint(ctx, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json, text/plain, text/html")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug("api request",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// getJSON performs a GET and decodes the JSON response into v.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, v any) error {
	body, err := c.get(ctx, endpoint, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

func padPath(id string, rest ...string) string {
	return "/pad/" + url.PathEscape(id) + "/" + strings.Join(rest, "/")
}
