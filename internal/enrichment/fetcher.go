package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"pumpwatch/internal/observability"
)

// Gateway mirrors tried in order for IPFS-addressed documents.
var defaultGateways = []string{
	"https://gateway.pinata.cloud/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
}

const (
	defaultMaxAttempts     = 3
	defaultBaseDelay       = 500 * time.Millisecond
	defaultMaxResponseSize = 1 * 1024 * 1024 // metadata documents are small
)

// Document is the off-chain token metadata JSON referenced by a mint's
// metadata URI.
type Document struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Twitter     string `json:"twitter"`
	Telegram    string `json:"telegram"`
	Website     string `json:"website"`
	CreatedOn   string `json:"createdOn"`
}

// Fetcher retrieves off-chain metadata documents. IPFS URIs are tried
// through each gateway mirror in order; rate-limit responses are retried
// with exponential backoff before moving on.
type Fetcher struct {
	httpClient      *http.Client
	gateways        []string
	limiter         *rate.Limiter
	maxAttempts     int
	baseDelay       time.Duration
	maxResponseSize int64
}

// FetcherOption configures Fetcher.
type FetcherOption func(*Fetcher)

// WithGateways overrides the gateway mirror list.
func WithGateways(gateways []string) FetcherOption {
	return func(f *Fetcher) {
		f.gateways = gateways
	}
}

// WithMaxAttempts sets per-URL attempts on rate-limit responses.
func WithMaxAttempts(n int) FetcherOption {
	return func(f *Fetcher) {
		f.maxAttempts = n
	}
}

// WithBaseDelay sets the initial backoff delay.
func WithBaseDelay(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient.Timeout = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// NewFetcher creates a document fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		gateways:        defaultGateways,
		limiter:         rate.NewLimiter(rate.Limit(5), 10),
		maxAttempts:     defaultMaxAttempts,
		baseDelay:       defaultBaseDelay,
		maxResponseSize: defaultMaxResponseSize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves and parses the document behind uri. Mirrors are tried in
// order; the first parseable response wins.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (*Document, error) {
	candidates := f.candidateURLs(uri)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no fetchable URL for %q", uri)
	}

	var lastErr error
	for _, u := range candidates {
		doc, err := f.fetchWithBackoff(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug().Err(err).Str("url", u).Msg("enrichment: mirror failed")
			lastErr = err
			continue
		}
		return doc, nil
	}

	return nil, fmt.Errorf("all mirrors failed: %w", lastErr)
}

// fetchWithBackoff fetches a single URL, retrying only on HTTP 429.
func (f *Fetcher) fetchWithBackoff(ctx context.Context, url string) (*Document, error) {
	delay := f.baseDelay

	for attempt := 1; ; attempt++ {
		doc, retryable, err := f.fetchOnce(ctx, url)
		if err == nil {
			return doc, nil
		}
		if !retryable || attempt >= f.maxAttempts {
			return nil, err
		}
		observability.RecordEnrichmentRetry()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (doc *Document, retryable bool, err error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, false, fmt.Errorf("rate limiter wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxResponseSize))
	if err != nil {
		return nil, false, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("gateway error (%d)", resp.StatusCode)
	}

	var d Document
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, false, fmt.Errorf("unmarshal document: %w", err)
	}

	return &d, false, nil
}

// candidateURLs expands a metadata URI into the list of URLs to try.
// IPFS-addressed URIs map onto each gateway mirror; anything else is
// fetched as-is.
func (f *Fetcher) candidateURLs(uri string) []string {
	cidPath, ok := ipfsPath(uri)
	if !ok {
		if uri == "" {
			return nil
		}
		return []string{uri}
	}

	urls := make([]string, 0, len(f.gateways))
	for _, gw := range f.gateways {
		urls = append(urls, gw+cidPath)
	}
	return urls
}

// GatewayURL rewrites an ipfs:// URI to an HTTPS URL on the primary
// gateway so stored links render in a browser. Non-IPFS URIs pass through.
func GatewayURL(uri string) string {
	if cidPath, ok := ipfsPath(uri); ok {
		return defaultGateways[0] + cidPath
	}
	return uri
}

// ipfsPath extracts "CID[/path]" from ipfs:// URIs and gateway URLs.
func ipfsPath(uri string) (string, bool) {
	if rest, found := strings.CutPrefix(uri, "ipfs://"); found {
		return strings.TrimPrefix(rest, "ipfs/"), rest != ""
	}
	if idx := strings.Index(uri, "/ipfs/"); idx >= 0 {
		rest := uri[idx+len("/ipfs/"):]
		return rest, rest != ""
	}
	return "", false
}
