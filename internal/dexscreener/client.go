// Package dexscreener implements a client for the DexScreener pair API,
// used both as a last-resort discovery source and for refreshing market
// data of known tokens.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the DexScreener API endpoint.
const DefaultBaseURL = "https://api.dexscreener.com"

// MaxTokensPerRequest is the API limit on comma-separated addresses in a
// single tokens lookup.
const MaxTokensPerRequest = 30

const defaultMaxResponseSize = 10 * 1024 * 1024 // 10MB

// Pair is a trading pair from DexScreener.
type Pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd string `json:"priceUsd"` // decimal string
	Volume   struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 *float64 `json:"h24"` // nil when the API omits it
	} `json:"priceChange"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64   `json:"fdv"`
	MarketCap     float64   `json:"marketCap"`
	PairCreatedAt int64     `json:"pairCreatedAt"` // Unix milliseconds
	Info          *PairInfo `json:"info"`
}

// PairInfo carries enrichment details attached to a pair.
type PairInfo struct {
	ImageURL string `json:"imageUrl"`
	Websites []struct {
		Label string `json:"label"`
		URL   string `json:"url"`
	} `json:"websites"`
	Socials []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"socials"`
}

// Price parses the decimal price string, 0 when absent or malformed.
func (p *Pair) Price() float64 {
	if p.PriceUsd == "" {
		return 0
	}
	v, err := strconv.ParseFloat(p.PriceUsd, 64)
	if err != nil {
		return 0
	}
	return v
}

type pairsResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Client is an HTTP client for the DexScreener API.
type Client struct {
	baseURL         string
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

// NewClient creates a DexScreener API client.
// The default rate limit follows the documented 300 requests/minute cap.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:         DefaultBaseURL,
		limiter:         rate.NewLimiter(rate.Limit(5), 10),
		maxResponseSize: defaultMaxResponseSize,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "dexscreener",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns pairs matching a free-text query.
func (c *Client) Search(ctx context.Context, query string) ([]Pair, error) {
	params := url.Values{}
	params.Set("q", query)

	body, err := c.get(ctx, "/latest/dex/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("search pairs: %w", err)
	}

	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal search response: %w", err)
	}

	return resp.Pairs, nil
}

// Tokens returns all pairs for the given token addresses.
// At most MaxTokensPerRequest addresses per call.
func (c *Client) Tokens(ctx context.Context, addresses []string) ([]Pair, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	if len(addresses) > MaxTokensPerRequest {
		return nil, fmt.Errorf("too many addresses: %d > %d", len(addresses), MaxTokensPerRequest)
	}

	body, err := c.get(ctx, "/latest/dex/tokens/"+strings.Join(addresses, ","))
	if err != nil {
		return nil, fmt.Errorf("get token pairs: %w", err)
	}

	var resp pairsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal tokens response: %w", err)
	}

	return resp.Pairs, nil
}

// BestPairFor picks the most liquid pair whose base token matches the mint.
// Returns nil when no pair matches.
func BestPairFor(pairs []Pair, mint string) *Pair {
	var best *Pair
	for i := range pairs {
		if pairs[i].BaseToken.Address != mint {
			continue
		}
		if best == nil || pairs[i].Liquidity.USD > best.Liquidity.USD {
			best = &pairs[i]
		}
	}
	return best
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("api error (%d)", resp.StatusCode)
	}

	return body, nil
}
