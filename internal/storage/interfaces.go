package storage

import (
	"context"
	"time"

	"pumpwatch/internal/domain"
)

// Sort field allow-list for TokenStore.List. Anything else falls back to
// createdAt descending.
const (
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
	SortVolume24h = "volume24h"
	SortMarketCap = "marketCap"
	SortPriceUsd  = "priceUsd"
	SortName      = "name"
	SortSymbol    = "symbol"

	OrderAsc  = "asc"
	OrderDesc = "desc"

	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ListParams controls pagination and ordering for TokenStore.List.
type ListParams struct {
	Page      int    // 1-based
	PageSize  int    // clamped to [1, MaxPageSize]
	SortField string // one of the Sort* constants
	SortOrder string // "asc" or "desc"
}

// Normalize clamps the parameters into their valid ranges and applies the
// createdAt-desc fallback for unrecognized sort fields or orders.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	switch p.SortField {
	case SortCreatedAt, SortUpdatedAt, SortVolume24h, SortMarketCap, SortPriceUsd, SortName, SortSymbol:
	default:
		p.SortField = SortCreatedAt
		p.SortOrder = OrderDesc
	}
	switch p.SortOrder {
	case OrderAsc, OrderDesc:
	default:
		p.SortOrder = OrderDesc
	}
	return p
}

// ListResult is one page of tokens plus the totals needed to build a
// pagination envelope.
type ListResult struct {
	Tokens     []*domain.TokenRecord
	Total      int64
	TotalPages int
}

// StaleCutoffs configures the three deletion predicates of DeleteStale.
// A record is stale when it is older than MaxAge, OR older than
// UnenrichedMaxAge with no image and no description, OR older than
// NoMarketMaxAge with non-positive market cap.
type StaleCutoffs struct {
	MaxAge           time.Duration
	UnenrichedMaxAge time.Duration
	NoMarketMaxAge   time.Duration
}

// DefaultStaleCutoffs returns the standard cleanup thresholds.
func DefaultStaleCutoffs() StaleCutoffs {
	return StaleCutoffs{
		MaxAge:           7 * 24 * time.Hour,
		UnenrichedMaxAge: 48 * time.Hour,
		NoMarketMaxAge:   24 * time.Hour,
	}
}

// CleanupStats reports how many rows each DeleteStale predicate removed.
type CleanupStats struct {
	AgedOut    int64 // older than MaxAge
	Unenriched int64 // older than UnenrichedMaxAge, image and description missing
	NoMarket   int64 // older than NoMarketMaxAge, market cap <= 0
}

// Total returns the number of rows deleted across all predicates.
func (c CleanupStats) Total() int64 {
	return c.AgedOut + c.Unenriched + c.NoMarket
}

// StoreStats are aggregate figures over the current stored set.
type StoreStats struct {
	TokenCount     int64
	TotalMarketCap float64
	TotalVolume24h float64
	NewLast24h     int64
}

// TokenStore provides access to token snapshot storage.
type TokenStore interface {
	// Upsert inserts the record or, when the address already exists, updates
	// it in place: name/symbol and the numeric snapshot fields are always
	// overwritten, enrichment fields only when the incoming value is
	// non-empty. CreatedAt/UpdatedAt are written back into the argument.
	// Returns true when a new row was created, ErrInvalidInput when the
	// record fails validation.
	Upsert(ctx context.Context, t *domain.TokenRecord) (bool, error)

	// GetByAddress retrieves a token by mint address.
	// Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address string) (*domain.TokenRecord, error)

	// List returns one page of tokens ordered by the (allow-listed) sort
	// field, plus the total count across all pages.
	List(ctx context.Context, params ListParams) (*ListResult, error)

	// ListMissingEnrichment returns up to limit tokens with no image URL,
	// oldest-updated first, for the enrichment reprocessing task.
	ListMissingEnrichment(ctx context.Context, limit int) ([]*domain.TokenRecord, error)

	// DeleteStale removes rows matching any of the three staleness
	// predicates and reports per-predicate counts.
	DeleteStale(ctx context.Context, cutoffs StaleCutoffs) (*CleanupStats, error)

	// Stats computes aggregate figures over the current stored set.
	Stats(ctx context.Context) (*StoreStats, error)
}
