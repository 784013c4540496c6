package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpwatch/internal/domain"
	"pumpwatch/internal/storage"
)

func testToken(address string) *domain.TokenRecord {
	return &domain.TokenRecord{
		Address:   address,
		Name:      "Token " + address,
		Symbol:    "TKN",
		PriceUsd:  0.002,
		MarketCap: 750000,
		Volume24h: 120000,
	}
}

func TestTokenStore_UpsertAndGetByAddress(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	rec := testToken("UpsertMint1")
	rec.Description = ptr("a meme token")
	rec.ImageURL = ptr("https://ipfs.io/ipfs/Qm123/image.png")
	rec.Twitter = ptr("https://twitter.com/memetoken")

	created, err := store.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created, "first upsert should create the row")
	assert.NotZero(t, rec.CreatedAt)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)

	retrieved, err := store.GetByAddress(ctx, "UpsertMint1")
	require.NoError(t, err)

	assert.Equal(t, rec.Address, retrieved.Address)
	assert.Equal(t, rec.Name, retrieved.Name)
	assert.Equal(t, rec.Symbol, retrieved.Symbol)
	require.NotNil(t, retrieved.Description)
	assert.Equal(t, "a meme token", *retrieved.Description)
	require.NotNil(t, retrieved.ImageURL)
	assert.Equal(t, *rec.ImageURL, *retrieved.ImageURL)
	assert.Nil(t, retrieved.Website)
	assert.InDelta(t, rec.PriceUsd, retrieved.PriceUsd, 1e-9)
	assert.InDelta(t, rec.MarketCap, retrieved.MarketCap, 1e-6)
	assert.Equal(t, rec.CreatedAt, retrieved.CreatedAt)
}

func TestTokenStore_UpsertUpdatesExisting(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	first := testToken("UpdateMint")
	created, err := store.Upsert(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	// Backdate updated_at so the advance is observable.
	_, err = pool.Exec(ctx, `UPDATE tokens SET updated_at = updated_at - 60000 WHERE address = $1`, "UpdateMint")
	require.NoError(t, err)

	second := testToken("UpdateMint")
	second.Name = "Renamed"
	second.PriceUsd = 0.5
	second.MarketCap = 2_000_000
	second.Volume24h = 400_000

	created, err = store.Upsert(ctx, second)
	require.NoError(t, err)
	assert.False(t, created, "second upsert should update, not create")
	assert.Equal(t, first.CreatedAt, second.CreatedAt, "createdAt immutable across upserts")

	retrieved, err := store.GetByAddress(ctx, "UpdateMint")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", retrieved.Name)
	assert.InDelta(t, 0.5, retrieved.PriceUsd, 1e-9)
	assert.InDelta(t, 2_000_000, retrieved.MarketCap, 1e-6)
	assert.Greater(t, retrieved.UpdatedAt, retrieved.CreatedAt-60001)
}

func TestTokenStore_UpsertEnrichmentMerge(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	first := testToken("MergeMint")
	first.Description = ptr("keep me")
	first.ImageURL = ptr("https://ipfs.io/ipfs/QmOld")
	_, err := store.Upsert(ctx, first)
	require.NoError(t, err)

	// Nil and empty-string enrichment must not clear stored values;
	// non-empty values overwrite.
	second := testToken("MergeMint")
	second.Description = ptr("")
	second.ImageURL = nil
	second.Website = ptr("https://example.org")
	_, err = store.Upsert(ctx, second)
	require.NoError(t, err)

	retrieved, err := store.GetByAddress(ctx, "MergeMint")
	require.NoError(t, err)

	require.NotNil(t, retrieved.Description)
	assert.Equal(t, "keep me", *retrieved.Description)
	require.NotNil(t, retrieved.ImageURL)
	assert.Equal(t, "https://ipfs.io/ipfs/QmOld", *retrieved.ImageURL)
	require.NotNil(t, retrieved.Website)
	assert.Equal(t, "https://example.org", *retrieved.Website)
}

func TestTokenStore_UpsertInvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	_, err := store.Upsert(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	missing := testToken("")
	_, err = store.Upsert(ctx, missing)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	negative := testToken("NegMint")
	negative.MarketCap = -5
	_, err = store.Upsert(ctx, negative)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.GetByAddress(ctx, "NegMint")
	assert.ErrorIs(t, err, storage.ErrNotFound, "invalid record must not be persisted")
}

func TestTokenStore_GetByAddressNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	_, err := store.GetByAddress(ctx, "nonexistent-mint")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// seedTokens inserts n tokens and backdates created_at by one minute per
// index so token-01 is the newest.
func seedTokens(t *testing.T, ctx context.Context, store *TokenStore, pool *Pool, n int) {
	t.Helper()

	for i := 1; i <= n; i++ {
		addr := fmt.Sprintf("token-%02d", i)
		_, err := store.Upsert(ctx, testToken(addr))
		require.NoError(t, err)

		_, err = pool.Exec(ctx,
			`UPDATE tokens SET created_at = created_at - $1 WHERE address = $2`,
			int64(i)*60_000, addr,
		)
		require.NoError(t, err)
	}
}

func TestTokenStore_ListPagination(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)
	seedTokens(t, ctx, store, pool, 25)

	result, err := store.List(ctx, storage.ListParams{
		Page: 2, PageSize: 10, SortField: storage.SortCreatedAt, SortOrder: storage.OrderDesc,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(25), result.Total)
	assert.Equal(t, 3, result.TotalPages)
	require.Len(t, result.Tokens, 10)
	assert.Equal(t, "token-11", result.Tokens[0].Address)
	assert.Equal(t, "token-20", result.Tokens[9].Address)
}

func TestTokenStore_ListSumOverPagesEqualsTotal(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)
	seedTokens(t, ctx, store, pool, 7)

	var seen int64
	for page := 1; page <= 4; page++ {
		result, err := store.List(ctx, storage.ListParams{Page: page, PageSize: 3})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(result.Tokens), 3)
		seen += int64(len(result.Tokens))
	}
	assert.Equal(t, int64(7), seen)
}

func TestTokenStore_ListSortByVolume(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	for i, vol := range []float64{300, 100, 200} {
		rec := testToken(fmt.Sprintf("vol-%d", i))
		rec.Volume24h = vol
		_, err := store.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	result, err := store.List(ctx, storage.ListParams{
		Page: 1, PageSize: 10, SortField: storage.SortVolume24h, SortOrder: storage.OrderDesc,
	})
	require.NoError(t, err)
	require.Len(t, result.Tokens, 3)

	assert.Equal(t, 300.0, result.Tokens[0].Volume24h)
	assert.Equal(t, 200.0, result.Tokens[1].Volume24h)
	assert.Equal(t, 100.0, result.Tokens[2].Volume24h)
}

func TestTokenStore_ListUnknownSortFallsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)
	seedTokens(t, ctx, store, pool, 3)

	result, err := store.List(ctx, storage.ListParams{
		Page: 1, PageSize: 10, SortField: "volume24h; DROP TABLE tokens", SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, result.Tokens, 3)

	// Fallback is createdAt desc: newest first.
	assert.Equal(t, "token-01", result.Tokens[0].Address)

	// The table survived the hostile sort field.
	var count int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM tokens`).Scan(&count))
	assert.Equal(t, int64(3), count)
}

func TestTokenStore_ListMissingEnrichment(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	enriched := testToken("enriched")
	enriched.ImageURL = ptr("https://ipfs.io/ipfs/Qm123")
	_, err := store.Upsert(ctx, enriched)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		addr := fmt.Sprintf("bare-%d", i)
		_, err := store.Upsert(ctx, testToken(addr))
		require.NoError(t, err)
		_, err = pool.Exec(ctx,
			`UPDATE tokens SET updated_at = $1 WHERE address = $2`,
			int64(i)*1000, addr,
		)
		require.NoError(t, err)
	}

	missing, err := store.ListMissingEnrichment(ctx, 2)
	require.NoError(t, err)

	require.Len(t, missing, 2)
	assert.Equal(t, "bare-1", missing[0].Address)
	assert.Equal(t, "bare-2", missing[1].Address)
}

func TestTokenStore_DeleteStale(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)
	now := time.Now()

	backdate := func(address string, age time.Duration) {
		_, err := pool.Exec(ctx,
			`UPDATE tokens SET created_at = $1 WHERE address = $2`,
			now.Add(-age).UnixMilli(), address,
		)
		require.NoError(t, err)
	}

	ancient := testToken("ancient")
	ancient.ImageURL = ptr("https://ipfs.io/ipfs/Qm1")
	ancient.Description = ptr("described")

	bare := testToken("bare-old")

	dead := testToken("dead-market")
	dead.MarketCap = 0
	dead.ImageURL = ptr("https://ipfs.io/ipfs/Qm2")
	dead.Description = ptr("described")

	healthy := testToken("healthy-old")
	healthy.ImageURL = ptr("https://ipfs.io/ipfs/Qm3")
	healthy.Description = ptr("described")

	fresh := testToken("fresh")
	fresh.MarketCap = 0

	for _, rec := range []*domain.TokenRecord{ancient, bare, dead, healthy, fresh} {
		_, err := store.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	backdate("ancient", 8*24*time.Hour)
	backdate("bare-old", 72*time.Hour)
	backdate("dead-market", 30*time.Hour)
	backdate("healthy-old", 72*time.Hour)
	backdate("fresh", time.Hour)

	stats, err := store.DeleteStale(ctx, storage.DefaultStaleCutoffs())
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.AgedOut)
	assert.Equal(t, int64(1), stats.Unenriched)
	assert.Equal(t, int64(1), stats.NoMarket)

	for _, addr := range []string{"ancient", "bare-old", "dead-market"} {
		_, err := store.GetByAddress(ctx, addr)
		assert.ErrorIs(t, err, storage.ErrNotFound, "%s should have been deleted", addr)
	}
	for _, addr := range []string{"healthy-old", "fresh"} {
		_, err := store.GetByAddress(ctx, addr)
		assert.NoError(t, err, "%s should have survived", addr)
	}
}

func TestTokenStore_Stats(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTokenStore(pool)

	a := testToken("stats-a")
	a.MarketCap = 100000
	a.Volume24h = 5000
	b := testToken("stats-b")
	b.MarketCap = 200000
	b.Volume24h = 15000

	for _, rec := range []*domain.TokenRecord{a, b} {
		_, err := store.Upsert(ctx, rec)
		require.NoError(t, err)
	}

	_, err := pool.Exec(ctx,
		`UPDATE tokens SET created_at = $1 WHERE address = 'stats-a'`,
		time.Now().Add(-48*time.Hour).UnixMilli(),
	)
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.TokenCount)
	assert.InDelta(t, 300000, stats.TotalMarketCap, 1e-6)
	assert.InDelta(t, 20000, stats.TotalVolume24h, 1e-6)
	assert.Equal(t, int64(1), stats.NewLast24h)
}
