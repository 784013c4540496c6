package memory

import (
	"cmp"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pumpwatch/internal/domain"
	"pumpwatch/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
// Used by the -use-memory dev mode and unit tests.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*domain.TokenRecord // keyed by address
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		tokens: make(map[string]*domain.TokenRecord),
	}
}

var _ storage.TokenStore = (*TokenStore)(nil)

// Upsert inserts the record or updates the existing row for the same
// address, mirroring the Postgres merge semantics.
func (s *TokenStore) Upsert(_ context.Context, t *domain.TokenRecord) (bool, error) {
	if t == nil {
		return false, storage.ErrInvalidInput
	}
	if err := t.Validate(); err != nil {
		return false, fmt.Errorf("%w: %s", storage.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	existing, exists := s.tokens[t.Address]
	if !exists {
		t.CreatedAt = now
		t.UpdatedAt = now
		rec := *t
		s.tokens[t.Address] = &rec
		return true, nil
	}

	existing.Name = t.Name
	existing.Symbol = t.Symbol
	existing.PriceUsd = t.PriceUsd
	existing.MarketCap = t.MarketCap
	existing.Volume24h = t.Volume24h
	// Enrichment fields only move forward: an empty incoming value never
	// clears a populated one.
	if nonEmpty(t.Description) {
		existing.Description = t.Description
	}
	if nonEmpty(t.ImageURL) {
		existing.ImageURL = t.ImageURL
	}
	if nonEmpty(t.Website) {
		existing.Website = t.Website
	}
	if nonEmpty(t.Twitter) {
		existing.Twitter = t.Twitter
	}
	if nonEmpty(t.Telegram) {
		existing.Telegram = t.Telegram
	}
	if nonEmpty(t.MetadataURI) {
		existing.MetadataURI = t.MetadataURI
	}
	existing.UpdatedAt = now

	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = existing.UpdatedAt
	return false, nil
}

// GetByAddress retrieves a token by address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(_ context.Context, address string) (*domain.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tokens[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	rec := *t
	return &rec, nil
}

// List returns one page of tokens plus the total count.
func (s *TokenStore) List(_ context.Context, params storage.ListParams) (*storage.ListResult, error) {
	params = params.Normalize()

	s.mu.RLock()
	all := make([]*domain.TokenRecord, 0, len(s.tokens))
	for _, t := range s.tokens {
		rec := *t
		all = append(all, &rec)
	}
	s.mu.RUnlock()

	sortTokens(all, params.SortField, params.SortOrder)

	total := int64(len(all))
	totalPages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))

	start := (params.Page - 1) * params.PageSize
	if start >= len(all) {
		return &storage.ListResult{Tokens: nil, Total: total, TotalPages: totalPages}, nil
	}
	end := start + params.PageSize
	if end > len(all) {
		end = len(all)
	}

	return &storage.ListResult{Tokens: all[start:end], Total: total, TotalPages: totalPages}, nil
}

// ListMissingEnrichment returns up to limit tokens with no image URL,
// oldest-updated first.
func (s *TokenStore) ListMissingEnrichment(_ context.Context, limit int) ([]*domain.TokenRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	var missing []*domain.TokenRecord
	for _, t := range s.tokens {
		if !nonEmpty(t.ImageURL) {
			rec := *t
			missing = append(missing, &rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(missing, func(i, j int) bool {
		if missing[i].UpdatedAt != missing[j].UpdatedAt {
			return missing[i].UpdatedAt < missing[j].UpdatedAt
		}
		return missing[i].Address < missing[j].Address
	})

	if len(missing) > limit {
		missing = missing[:limit]
	}
	return missing, nil
}

// DeleteStale removes records matching any of the three staleness
// predicates. Predicates are checked in order, so each deleted record is
// counted under exactly one predicate.
func (s *TokenStore) DeleteStale(_ context.Context, cutoffs storage.StaleCutoffs) (*storage.CleanupStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	agedCutoff := now.Add(-cutoffs.MaxAge).UnixMilli()
	unenrichedCutoff := now.Add(-cutoffs.UnenrichedMaxAge).UnixMilli()
	noMarketCutoff := now.Add(-cutoffs.NoMarketMaxAge).UnixMilli()

	stats := &storage.CleanupStats{}
	for address, t := range s.tokens {
		switch {
		case t.CreatedAt < agedCutoff:
			delete(s.tokens, address)
			stats.AgedOut++
		case t.CreatedAt < unenrichedCutoff && !nonEmpty(t.ImageURL) && !nonEmpty(t.Description):
			delete(s.tokens, address)
			stats.Unenriched++
		case t.CreatedAt < noMarketCutoff && t.MarketCap <= 0:
			delete(s.tokens, address)
			stats.NoMarket++
		}
	}
	return stats, nil
}

// Stats computes aggregate figures over the current stored set.
func (s *TokenStore) Stats(_ context.Context) (*storage.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()

	stats := &storage.StoreStats{}
	for _, t := range s.tokens {
		stats.TokenCount++
		stats.TotalMarketCap += t.MarketCap
		stats.TotalVolume24h += t.Volume24h
		if t.CreatedAt >= cutoff {
			stats.NewLast24h++
		}
	}
	return stats, nil
}

// sortTokens orders records by the allow-listed sort field with an
// ascending address tie-breaker, matching the Postgres ORDER BY.
func sortTokens(tokens []*domain.TokenRecord, field, order string) {
	compare := func(i, j *domain.TokenRecord) int {
		switch field {
		case storage.SortUpdatedAt:
			return cmp.Compare(i.UpdatedAt, j.UpdatedAt)
		case storage.SortVolume24h:
			return cmp.Compare(i.Volume24h, j.Volume24h)
		case storage.SortMarketCap:
			return cmp.Compare(i.MarketCap, j.MarketCap)
		case storage.SortPriceUsd:
			return cmp.Compare(i.PriceUsd, j.PriceUsd)
		case storage.SortName:
			return cmp.Compare(i.Name, j.Name)
		case storage.SortSymbol:
			return cmp.Compare(i.Symbol, j.Symbol)
		default: // createdAt
			return cmp.Compare(i.CreatedAt, j.CreatedAt)
		}
	}

	desc := order == storage.OrderDesc
	sort.Slice(tokens, func(a, b int) bool {
		c := compare(tokens[a], tokens[b])
		if c == 0 {
			return tokens[a].Address < tokens[b].Address
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}
