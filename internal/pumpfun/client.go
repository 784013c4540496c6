// Package pumpfun provides clients for the pump.fun frontend API and the
// PumpPortal token-creation feed.
package pumpfun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the pump.fun frontend API endpoint.
const DefaultBaseURL = "https://frontend-api.pump.fun"

const defaultMaxResponseSize = 10 * 1024 * 1024 // 10MB

// ErrNotFound is returned when the API has no coin for the given mint.
var ErrNotFound = errors.New("pumpfun: coin not found")

// Client is an HTTP client for the pump.fun frontend API. Outbound calls
// are bounded by a rate limiter and a circuit breaker so fallback storms
// cannot hammer a failing upstream.
type Client struct {
	baseURL         string
	apiKey          string
	httpClient      *http.Client
	limiter         *rate.Limiter
	breaker         *gobreaker.CircuitBreaker
	maxResponseSize int64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithAPIKey sets a bearer token sent on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit overrides the outbound request rate.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a pump.fun frontend API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:         DefaultBaseURL,
		limiter:         rate.NewLimiter(rate.Limit(10), 20),
		maxResponseSize: defaultMaxResponseSize,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "pumpfun",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// A missing coin is a valid answer, not an upstream failure.
			return err == nil || errors.Is(err, ErrNotFound)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Latest returns the most recently created coins, newest first.
func (c *Client) Latest(ctx context.Context, limit int) ([]Coin, error) {
	params := url.Values{}
	params.Set("offset", "0")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("sort", "created_timestamp")
	params.Set("order", "DESC")
	params.Set("includeNsfw", "false")

	body, err := c.get(ctx, "/coins?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("get latest coins: %w", err)
	}

	var coins []Coin
	if err := json.Unmarshal(body, &coins); err != nil {
		return nil, fmt.Errorf("unmarshal coins: %w", err)
	}

	return coins, nil
}

// Coin returns a single coin by mint address.
// Returns ErrNotFound when the API has no record of the mint.
func (c *Client) Coin(ctx context.Context, mint string) (*Coin, error) {
	body, err := c.get(ctx, "/coins/"+mint)
	if err != nil {
		return nil, err
	}

	var coin Coin
	if err := json.Unmarshal(body, &coin); err != nil {
		return nil, fmt.Errorf("unmarshal coin: %w", err)
	}
	if coin.Mint == "" {
		return nil, ErrNotFound
	}

	return &coin, nil
}

// get performs a rate-limited GET through the circuit breaker.
func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doGet(ctx, endpoint)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) doGet(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	// The frontend API sits behind Cloudflare and rejects default Go agents.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, truncate(body, 200))
	}

	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
