package fetcher

import (
	"context"

	"pumpwatch/internal/dexscreener"
	"pumpwatch/internal/enrichment"
	"pumpwatch/internal/pumpfun"
)

// Source names used in cycle stats, logs and metrics labels.
const (
	SourcePumpFun     = "pumpfun"
	SourcePumpPortal  = "pumpportal"
	SourceDexScreener = "dexscreener"
)

// LaunchSource lists recent pump.fun launches and resolves single coins.
type LaunchSource interface {
	Latest(ctx context.Context, limit int) ([]pumpfun.Coin, error)
	Coin(ctx context.Context, mint string) (*pumpfun.Coin, error)
}

// StreamSource collects live new-token events for one bounded session.
// Partial results are valid; an empty session is an error.
type StreamSource interface {
	Collect(ctx context.Context) ([]pumpfun.NewTokenEvent, error)
}

// MarketSource queries DexScreener pair data.
type MarketSource interface {
	Search(ctx context.Context, query string) ([]dexscreener.Pair, error)
	Tokens(ctx context.Context, addresses []string) ([]dexscreener.Pair, error)
}

// URIResolver resolves the on-chain metadata URI for a mint address.
type URIResolver interface {
	MetadataURI(ctx context.Context, mint string) (string, error)
}

// DocumentFetcher retrieves an off-chain metadata document by URI.
type DocumentFetcher interface {
	Fetch(ctx context.Context, uri string) (*enrichment.Document, error)
}
