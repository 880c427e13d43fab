// Package hermes implements the PriceSnapshotSource port using the Pyth
// Hermes price service API.
//
// Both quotes and update payloads come from /v2/updates/price/latest: quotes
// use the parsed section, payloads the hex encoded binary section. Requests go
// through the shared httpclient, so they are rate limited and retried with
// exponential backoff. Every failure is returned as *entity.SnapshotFetchError.
package hermes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/pkg/hexutil"
	"github.com/archon-research/oracle-pusher/internal/pkg/httpclient"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

// Compile-time check that Client implements outbound.PriceSnapshotSource.
var _ outbound.PriceSnapshotSource = (*Client)(nil)

const latestPath = "/v2/updates/price/latest"

// ClientConfig holds configuration for the Hermes client.
type ClientConfig struct {
	// BaseURL is the Hermes base URL, e.g. https://hermes.pyth.network
	BaseURL string

	// Timeout is the maximum time to wait for a single HTTP request.
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts for transient failures.
	MaxRetries int

	// InitialBackoff is the initial delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum delay between retries.
	MaxBackoff time.Duration

	// RateLimitPerSec is the request rate limit. Public Hermes allows 30 req/10s per IP.
	RateLimitPerSec float64

	// Logger is the structured logger for the client.
	Logger *slog.Logger
}

// ClientConfigDefaults returns a config with default values.
func ClientConfigDefaults() ClientConfig {
	return ClientConfig{
		BaseURL:         "https://hermes.pyth.network",
		Timeout:         15 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      5 * time.Second,
		RateLimitPerSec: 2.5,
		Logger:          slog.Default(),
	}
}

// Client implements PriceSnapshotSource using Pyth Hermes.
type Client struct {
	baseURL string
	http    *httpclient.Client
	logger  *slog.Logger
}

// NewClient creates a new Hermes client.
func NewClient(config ClientConfig) (*Client, error) {
	applyDefaults(&config, ClientConfigDefaults())

	if _, err := url.ParseRequestURI(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", config.BaseURL, err)
	}

	logger := config.Logger.With("component", "hermes-client")

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		http: httpclient.NewClient(httpclient.Config{
			Timeout:        config.Timeout,
			MaxRetries:     config.MaxRetries,
			InitialBackoff: config.InitialBackoff,
			MaxBackoff:     config.MaxBackoff,
			BackoffFactor:  2.0,
			RateLimit:      rate.Limit(config.RateLimitPerSec),
			RateBurst:      1,
		}, logger),
		logger: logger,
	}, nil
}

func applyDefaults(config *ClientConfig, defaults ClientConfig) {
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.RateLimitPerSec == 0 {
		config.RateLimitPerSec = defaults.RateLimitPerSec
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
}

// FetchQuotes fetches one snapshot of the latest prices for the given feeds.
func (c *Client) FetchQuotes(ctx context.Context, feedIDs []entity.FeedID) (map[entity.FeedID]entity.PriceQuote, error) {
	if len(feedIDs) == 0 {
		return map[entity.FeedID]entity.PriceQuote{}, nil
	}

	var response latestPriceUpdatesResponse
	if err := c.fetchLatest(ctx, feedIDs, true, &response); err != nil {
		return nil, &entity.SnapshotFetchError{Op: "quotes", Err: err}
	}

	quotes := make(map[entity.FeedID]entity.PriceQuote, len(response.Parsed))
	for _, p := range response.Parsed {
		quote, err := toQuote(p)
		if err != nil {
			return nil, &entity.SnapshotFetchError{Op: "quotes", Err: err}
		}
		quotes[quote.FeedID] = quote
	}

	c.logger.Debug("fetched quotes", "requested", len(feedIDs), "received", len(quotes))
	return quotes, nil
}

// FetchUpdatePayload fetches the signed binary update for the given feeds.
func (c *Client) FetchUpdatePayload(ctx context.Context, feedIDs []entity.FeedID) ([][]byte, error) {
	if len(feedIDs) == 0 {
		return nil, &entity.SnapshotFetchError{Op: "payload", Err: errors.New("no feed ids requested")}
	}

	var response latestPriceUpdatesResponse
	if err := c.fetchLatest(ctx, feedIDs, false, &response); err != nil {
		return nil, &entity.SnapshotFetchError{Op: "payload", Err: err}
	}

	if len(response.Binary.Data) == 0 {
		return nil, &entity.SnapshotFetchError{Op: "payload", Err: errors.New("response carried no update data")}
	}
	if response.Binary.Encoding != "" && response.Binary.Encoding != "hex" {
		return nil, &entity.SnapshotFetchError{Op: "payload", Err: fmt.Errorf("unexpected encoding %q", response.Binary.Encoding)}
	}

	payload := make([][]byte, 0, len(response.Binary.Data))
	for i, data := range response.Binary.Data {
		b, err := hexutil.DecodeBytes(data)
		if err != nil {
			return nil, &entity.SnapshotFetchError{Op: "payload", Err: fmt.Errorf("update data %d: %w", i, err)}
		}
		payload = append(payload, b)
	}

	return payload, nil
}

func (c *Client) fetchLatest(ctx context.Context, feedIDs []entity.FeedID, parsed bool, result *latestPriceUpdatesResponse) error {
	params := url.Values{
		"encoding": {"hex"},
		"parsed":   {strconv.FormatBool(parsed)},
	}
	for _, id := range feedIDs {
		params.Add("ids[]", id.String())
	}

	return c.http.GetJSON(ctx, httpclient.RequestConfig{
		URL:   c.baseURL + latestPath,
		Query: params,
	}, result)
}

func toQuote(p parsedPrice) (entity.PriceQuote, error) {
	id, err := entity.ParseFeedID(p.ID)
	if err != nil {
		return entity.PriceQuote{}, err
	}
	mantissa, err := strconv.ParseInt(p.Price.Price, 10, 64)
	if err != nil {
		return entity.PriceQuote{}, fmt.Errorf("parsing price for %s: %w", p.ID, err)
	}
	return entity.PriceQuote{
		FeedID:      id,
		Mantissa:    mantissa,
		Exponent:    p.Price.Expo,
		PublishTime: time.Unix(p.Price.PublishTime, 0).UTC(),
	}, nil
}
