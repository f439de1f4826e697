package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// ErrUnavailable is returned when the oracle could not be reached after
// all retries, or when the circuit breaker refused the call.
var ErrUnavailable = errors.New("oracle unavailable")

// ErrBadQuery is returned when the oracle rejected the query itself.
// Retrying a bad query cannot help.
var ErrBadQuery = errors.New("oracle rejected query")

// ClientConfig controls the oracle HTTP client
type ClientConfig struct {
	BaseURL          string
	Timeout          time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
	RequestsPerSec   float64
	Burst            int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultClientConfig returns conservative client settings
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:          baseURL,
		Timeout:          10 * time.Second,
		MaxRetries:       3,
		RetryBackoff:     500 * time.Millisecond,
		RequestsPerSec:   2,
		Burst:            4,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Client queries the ranking oracle over HTTP
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	breaker      *Breaker
	maxRetries   int
	retryBackoff time.Duration
	logger       *slog.Logger
}

// NewClient creates an oracle client from config
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	return &Client{
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker:      NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		logger:       logger.With(slog.String("component", "oracle_client")),
	}
}

// BreakerState exposes the circuit breaker state for health reporting
func (c *Client) BreakerState() BreakerState {
	return c.breaker.State()
}

// Fetch queries the oracle for the ranked listing of one keyword. Transient
// failures are retried with exponential backoff; repeated failures open the
// circuit breaker and subsequent calls fail fast with ErrUnavailable.
func (c *Client) Fetch(ctx context.Context, keyword string) (QueryResult, error) {
	if err := c.breaker.Allow(); err != nil {
		c.logger.WarnContext(ctx, "oracle call refused by breaker",
			slog.String("keyword", keyword))
		return QueryResult{}, fmt.Errorf("%w: circuit breaker open", ErrUnavailable)
	}

	var lastErr error
	backoff := c.retryBackoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.breaker.Failure()
				return QueryResult{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := c.limiter.Wait(ctx); err != nil {
			c.breaker.Failure()
			return QueryResult{}, err
		}

		result, err := c.fetchOnce(ctx, keyword)
		if err == nil {
			c.breaker.Success()
			c.logger.DebugContext(ctx, "oracle query succeeded",
				slog.String("keyword", keyword),
				slog.Int("listings", len(result.Listings)),
				slog.Int("attempt", attempt+1))
			return result, nil
		}
		if errors.Is(err, ErrBadQuery) {
			// Permanent: the breaker only tracks availability.
			c.breaker.Success()
			return QueryResult{}, err
		}
		lastErr = err
		c.logger.WarnContext(ctx, "oracle query attempt failed",
			slog.String("keyword", keyword),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}

	c.breaker.Failure()
	return QueryResult{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, keyword string) (QueryResult, error) {
	endpoint := fmt.Sprintf("%s/analyze?keyword=%s", c.baseURL, url.QueryEscape(keyword))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return QueryResult{}, fmt.Errorf("build oracle request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return QueryResult{}, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return QueryResult{}, fmt.Errorf("%w: status %d", ErrBadQuery, resp.StatusCode)
	default:
		return QueryResult{}, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var result QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return QueryResult{}, fmt.Errorf("decode oracle response: %w", err)
	}
	if result.Keyword == "" {
		result.Keyword = keyword
	}
	if result.FetchedAt.IsZero() {
		result.FetchedAt = time.Now().UTC()
	}
	return result, nil
}
