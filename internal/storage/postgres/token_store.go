package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"pumpwatch/internal/domain"
	"pumpwatch/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// sortColumns maps allow-listed sort fields to column names. Only values
// produced by ListParams.Normalize reach the query builder, so the ORDER BY
// clause is never built from raw request input.
var sortColumns = map[string]string{
	storage.SortCreatedAt: "created_at",
	storage.SortUpdatedAt: "updated_at",
	storage.SortVolume24h: "volume_24h",
	storage.SortMarketCap: "market_cap",
	storage.SortPriceUsd:  "price_usd",
	storage.SortName:      "name",
	storage.SortSymbol:    "symbol",
}

// Upsert inserts the record or updates the existing row for the same
// address. Numeric snapshot fields and name/symbol are always overwritten;
// enrichment fields only when the incoming value is non-empty.
func (s *TokenStore) Upsert(ctx context.Context, t *domain.TokenRecord) (bool, error) {
	if t == nil {
		return false, storage.ErrInvalidInput
	}
	if err := t.Validate(); err != nil {
		return false, fmt.Errorf("%w: %s", storage.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO tokens (
			address, name, symbol, description, image_url, website, twitter,
			telegram, metadata_uri, price_usd, market_cap, volume_24h,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
		ON CONFLICT (address) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			description = COALESCE(NULLIF(EXCLUDED.description, ''), tokens.description),
			image_url = COALESCE(NULLIF(EXCLUDED.image_url, ''), tokens.image_url),
			website = COALESCE(NULLIF(EXCLUDED.website, ''), tokens.website),
			twitter = COALESCE(NULLIF(EXCLUDED.twitter, ''), tokens.twitter),
			telegram = COALESCE(NULLIF(EXCLUDED.telegram, ''), tokens.telegram),
			metadata_uri = COALESCE(NULLIF(EXCLUDED.metadata_uri, ''), tokens.metadata_uri),
			price_usd = EXCLUDED.price_usd,
			market_cap = EXCLUDED.market_cap,
			volume_24h = EXCLUDED.volume_24h,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at, (xmax = 0) AS inserted
	`

	now := time.Now().UnixMilli()

	var created bool
	err := s.pool.QueryRow(ctx, query,
		t.Address,
		t.Name,
		t.Symbol,
		t.Description,
		t.ImageURL,
		t.Website,
		t.Twitter,
		t.Telegram,
		t.MetadataURI,
		t.PriceUsd,
		t.MarketCap,
		t.Volume24h,
		now,
	).Scan(&t.CreatedAt, &t.UpdatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert token: %w", err)
	}
	return created, nil
}

// GetByAddress retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByAddress(ctx context.Context, address string) (*domain.TokenRecord, error) {
	query := `
		SELECT address, name, symbol, description, image_url, website, twitter,
			telegram, metadata_uri, price_usd, market_cap, volume_24h,
			created_at, updated_at
		FROM tokens
		WHERE address = $1
	`

	row := s.pool.QueryRow(ctx, query, address)
	t, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return t, nil
}

// List returns one page of tokens plus the total count.
func (s *TokenStore) List(ctx context.Context, params storage.ListParams) (*storage.ListResult, error) {
	params = params.Normalize()

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count tokens: %w", err)
	}

	// Secondary sort on address keeps pagination stable when the sort
	// column has ties.
	query := fmt.Sprintf(`
		SELECT address, name, symbol, description, image_url, website, twitter,
			telegram, metadata_uri, price_usd, market_cap, volume_24h,
			created_at, updated_at
		FROM tokens
		ORDER BY %s %s, address ASC
		LIMIT $1 OFFSET $2
	`, sortColumns[params.SortField], strings.ToUpper(params.SortOrder))

	offset := (params.Page - 1) * params.PageSize
	rows, err := s.pool.Query(ctx, query, params.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	tokens, err := scanTokens(rows)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(params.PageSize) - 1) / int64(params.PageSize))
	return &storage.ListResult{Tokens: tokens, Total: total, TotalPages: totalPages}, nil
}

// ListMissingEnrichment returns up to limit tokens with no image URL,
// oldest-updated first.
func (s *TokenStore) ListMissingEnrichment(ctx context.Context, limit int) ([]*domain.TokenRecord, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT address, name, symbol, description, image_url, website, twitter,
			telegram, metadata_uri, price_usd, market_cap, volume_24h,
			created_at, updated_at
		FROM tokens
		WHERE image_url IS NULL OR image_url = ''
		ORDER BY updated_at ASC, address ASC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list tokens missing enrichment: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// DeleteStale removes rows matching any of the three staleness predicates.
// Predicates run in order inside one transaction, so every deleted row is
// counted under exactly one predicate.
func (s *TokenStore) DeleteStale(ctx context.Context, cutoffs storage.StaleCutoffs) (*storage.CleanupStats, error) {
	now := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cleanup tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stats := &storage.CleanupStats{}

	agedOut, err := tx.Exec(ctx,
		`DELETE FROM tokens WHERE created_at < $1`,
		now.Add(-cutoffs.MaxAge).UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("delete aged-out tokens: %w", err)
	}
	stats.AgedOut = agedOut.RowsAffected()

	unenriched, err := tx.Exec(ctx,
		`DELETE FROM tokens
		 WHERE created_at < $1
		   AND (image_url IS NULL OR image_url = '')
		   AND (description IS NULL OR description = '')`,
		now.Add(-cutoffs.UnenrichedMaxAge).UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("delete unenriched tokens: %w", err)
	}
	stats.Unenriched = unenriched.RowsAffected()

	noMarket, err := tx.Exec(ctx,
		`DELETE FROM tokens WHERE created_at < $1 AND market_cap <= 0`,
		now.Add(-cutoffs.NoMarketMaxAge).UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("delete no-market tokens: %w", err)
	}
	stats.NoMarket = noMarket.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cleanup tx: %w", err)
	}
	return stats, nil
}

// Stats computes aggregate figures over the current stored set.
func (s *TokenStore) Stats(ctx context.Context) (*storage.StoreStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(market_cap), 0),
			COALESCE(SUM(volume_24h), 0),
			COUNT(*) FILTER (WHERE created_at >= $1)
		FROM tokens
	`

	cutoff := time.Now().Add(-24 * time.Hour).UnixMilli()

	var stats storage.StoreStats
	err := s.pool.QueryRow(ctx, query, cutoff).Scan(
		&stats.TokenCount,
		&stats.TotalMarketCap,
		&stats.TotalVolume24h,
		&stats.NewLast24h,
	)
	if err != nil {
		return nil, fmt.Errorf("token stats: %w", err)
	}
	return &stats, nil
}

// scanToken scans a single row into a TokenRecord.
func scanToken(row pgx.Row) (*domain.TokenRecord, error) {
	var t domain.TokenRecord

	err := row.Scan(
		&t.Address,
		&t.Name,
		&t.Symbol,
		&t.Description,
		&t.ImageURL,
		&t.Website,
		&t.Twitter,
		&t.Telegram,
		&t.MetadataURI,
		&t.PriceUsd,
		&t.MarketCap,
		&t.Volume24h,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanTokens scans multiple rows into a slice of TokenRecord.
func scanTokens(rows pgx.Rows) ([]*domain.TokenRecord, error) {
	var tokens []*domain.TokenRecord

	for rows.Next() {
		var t domain.TokenRecord

		err := rows.Scan(
			&t.Address,
			&t.Name,
			&t.Symbol,
			&t.Description,
			&t.ImageURL,
			&t.Website,
			&t.Twitter,
			&t.Telegram,
			&t.MetadataURI,
			&t.PriceUsd,
			&t.MarketCap,
			&t.Volume24h,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan token row: %w", err)
		}

		tokens = append(tokens, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token rows: %w", err)
	}

	return tokens, nil
}
