package domain

import (
	"errors"
	"strings"
	"time"
)

// TokenRecord is the persisted snapshot of a tracked token.
// Corresponds to the tokens table in PostgreSQL; address is the unique key.
type TokenRecord struct {
	Address     string  // on-chain mint address, immutable once created
	Name        string  // display name, refreshed from upstream
	Symbol      string  // ticker symbol, refreshed from upstream
	Description *string // enrichment, nullable
	ImageURL    *string // enrichment, nullable
	Website     *string // enrichment, nullable
	Twitter     *string // enrichment, nullable
	Telegram    *string // enrichment, nullable
	MetadataURI *string // off-chain metadata document URI, nullable
	PriceUsd    float64 // last-known price snapshot, overwritten each cycle
	MarketCap   float64 // last-known market cap snapshot (USD)
	Volume24h   float64 // last-known 24h volume snapshot (USD)
	CreatedAt   int64   // first insert timestamp (ms)
	UpdatedAt   int64   // last write timestamp (ms)
}

// Validation errors returned by TokenRecord.Validate.
var (
	ErrEmptyAddress   = errors.New("token address is empty")
	ErrEmptyName      = errors.New("token name is empty")
	ErrEmptySymbol    = errors.New("token symbol is empty")
	ErrNegativeNumber = errors.New("numeric field is negative")
)

// Validate checks the create-time invariants: non-empty address/name/symbol
// and non-negative numeric fields.
func (t *TokenRecord) Validate() error {
	if strings.TrimSpace(t.Address) == "" {
		return ErrEmptyAddress
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(t.Symbol) == "" {
		return ErrEmptySymbol
	}
	if t.PriceUsd < 0 || t.MarketCap < 0 || t.Volume24h < 0 {
		return ErrNegativeNumber
	}
	return nil
}

// Age returns how long ago the record was first created relative to now.
func (t *TokenRecord) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(t.CreatedAt))
}

// NeedsEnrichment reports whether the best-effort enrichment fields are
// still missing and the record should be picked up by the reprocessing task.
func (t *TokenRecord) NeedsEnrichment() bool {
	return !hasValue(t.ImageURL) || !hasValue(t.Description)
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}
