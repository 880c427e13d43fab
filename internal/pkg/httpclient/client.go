// Package httpclient is a rate-limited JSON GET client that retries transient
// failures and honors Retry-After on HTTP 429.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/oracle-pusher/internal/pkg/retry"
)

// maxErrorBody bounds how much of an error response is kept in StatusError.
const maxErrorBody = 512

// Config holds the configuration for the HTTP client.
type Config struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	RateLimit      rate.Limit
	RateBurst      int
	UserAgent      string
}

// DefaultConfig returns sensible defaults for the HTTP client.
func DefaultConfig() Config {
	return Config{
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		RateLimit:      rate.Limit(5),
		RateBurst:      1,
		UserAgent:      "oracle-pusher",
	}
}

// RequestConfig holds per-request configuration.
type RequestConfig struct {
	URL     string
	Query   url.Values
	Headers map[string]string
}

// StatusError is a non-2xx response. 429 and 5xx are retried; other codes
// are permanent.
type StatusError struct {
	Code int
	Body string

	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// RetryAfter returns the delay requested by the server, if any.
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}

// Client wraps an HTTP client with retry logic and rate limiting.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig retry.Config
	userAgent   string
	logger      *slog.Logger
}

// NewClient creates a new HTTP client with the given configuration.
// Zero-valued fields in cfg fall back to DefaultConfig.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	applyDefaults(&cfg, DefaultConfig())

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		retryConfig: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
			BackoffFactor:  cfg.BackoffFactor,
			Jitter:         true,
		},
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

func applyDefaults(cfg *Config, defaults Config) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = defaults.InitialBackoff
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaults.MaxBackoff
	}
	if cfg.BackoffFactor == 0 {
		cfg.BackoffFactor = defaults.BackoffFactor
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaults.RateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaults.RateBurst
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
}

// GetJSON performs a rate-limited GET and decodes the JSON body into result.
func (c *Client) GetJSON(ctx context.Context, reqCfg RequestConfig, result any) error {
	fullURL := reqCfg.URL
	if len(reqCfg.Query) > 0 {
		fullURL = reqCfg.URL + "?" + reqCfg.Query.Encode()
	}

	onRetry := func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"maxRetries", c.retryConfig.MaxRetries,
			"backoff", wait,
			"error", err,
		)
	}

	return retry.DoVoid(ctx, c.retryConfig, nil, onRetry, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(fmt.Errorf("rate limiter: %w", err))
		}
		return c.get(ctx, fullURL, reqCfg.Headers, result)
	})
}

func (c *Client) get(ctx context.Context, fullURL string, headers map[string]string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return retry.Permanent(err)
		}
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(body, result); err != nil {
		return retry.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{Code: resp.StatusCode, Body: string(body)}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		se.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		return se
	case resp.StatusCode >= 500:
		return se
	default:
		return retry.Permanent(se)
	}
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
