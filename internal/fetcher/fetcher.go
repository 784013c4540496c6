// Package fetcher orchestrates the token ingestion pipeline: upstream source
// selection, payload normalization, metadata enrichment and persistence.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"pumpwatch/internal/dexscreener"
	"pumpwatch/internal/domain"
	"pumpwatch/internal/observability"
	"pumpwatch/internal/storage"
)

// ErrNotFound is returned by FetchOne when no upstream source knows the address.
var ErrNotFound = errors.New("token not found upstream")

const (
	defaultBatchLimit     = 50
	defaultRefreshBatches = 2
	defaultReprocessLimit = 20
	defaultSearchQuery    = "pump"
)

// Options configures a Fetcher. Store is required; every source is optional
// and skipped when nil.
type Options struct {
	Launches  LaunchSource
	Stream    StreamSource
	Market    MarketSource
	Resolver  URIResolver
	Documents DocumentFetcher
	Store     storage.TokenStore

	BatchLimit     int     // launches requested per cycle, default 50
	RefreshBatches int     // DexScreener refresh batches per cycle, default 2
	SolPriceUsd    float64 // reference SOL price for reserve-derived values
	SearchQuery    string  // trending search term, default "pump"
}

// Fetcher runs ingestion passes against the configured sources.
type Fetcher struct {
	launches  LaunchSource
	stream    StreamSource
	market    MarketSource
	resolver  URIResolver
	documents DocumentFetcher
	store     storage.TokenStore

	batchLimit     int
	refreshBatches int
	solPriceUsd    float64
	searchQuery    string
}

// New creates a Fetcher with defaults applied.
func New(opts Options) *Fetcher {
	batchLimit := opts.BatchLimit
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}

	refreshBatches := opts.RefreshBatches
	if refreshBatches < 0 {
		refreshBatches = 0
	} else if refreshBatches == 0 {
		refreshBatches = defaultRefreshBatches
	}

	solPriceUsd := opts.SolPriceUsd
	if solPriceUsd <= 0 {
		solPriceUsd = DefaultSolPriceUsd
	}

	searchQuery := opts.SearchQuery
	if searchQuery == "" {
		searchQuery = defaultSearchQuery
	}

	return &Fetcher{
		launches:       opts.Launches,
		stream:         opts.Stream,
		market:         opts.Market,
		resolver:       opts.Resolver,
		documents:      opts.Documents,
		store:          opts.Store,
		batchLimit:     batchLimit,
		refreshBatches: refreshBatches,
		solPriceUsd:    solPriceUsd,
		searchQuery:    searchQuery,
	}
}

// CycleStats summarizes one ingestion pass.
type CycleStats struct {
	Source     string // winning source, empty when every source failed
	Candidates int
	Created    int
	Updated    int
	Skipped    int
	Enriched   int
	Refreshed  int
}

// RunCycle performs one full ingestion pass: sources are tried in priority
// order and the first one yielding candidates wins; candidates are
// normalized, enriched and upserted; finally recent stored records get a
// market snapshot refresh. Source exhaustion is not an error, the cycle just
// produces an empty result.
func (f *Fetcher) RunCycle(ctx context.Context) (*CycleStats, error) {
	start := time.Now()
	stats := &CycleStats{}

	candidates, source := f.collectNew(ctx)
	stats.Source = source
	stats.Candidates = len(candidates)

	if len(candidates) == 0 {
		log.Warn().Msg("fetch cycle: all sources failed or yielded nothing")
		observability.RecordFetchCycle("none", "empty", time.Since(start).Seconds())
		return stats, ctx.Err()
	}

	observability.RecordCandidates(source, len(candidates))
	f.persist(ctx, candidates, stats)
	stats.Refreshed = f.refreshSnapshots(ctx)

	observability.RecordFetchCycle(source, "ok", time.Since(start).Seconds())
	observability.MarkFetchSuccess(time.Now().Unix())

	log.Info().
		Str("source", source).
		Int("candidates", stats.Candidates).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("skipped", stats.Skipped).
		Int("enriched", stats.Enriched).
		Int("refreshed", stats.Refreshed).
		Dur("took", time.Since(start)).
		Msg("fetch cycle complete")

	return stats, ctx.Err()
}

// Discover runs a supplementary ingestion pass over the live launch feed,
// falling back to the DexScreener trending search. It skips the primary
// listing endpoint so it surfaces tokens the regular cycle would miss.
func (f *Fetcher) Discover(ctx context.Context) (*CycleStats, error) {
	stats := &CycleStats{}
	now := time.Now()

	records := f.fromStream(ctx, now)
	if len(records) > 0 {
		stats.Source = SourcePumpPortal
	} else {
		records = f.fromSearch(ctx, now)
		if len(records) > 0 {
			stats.Source = SourceDexScreener
		}
	}

	stats.Candidates = len(records)
	if len(records) == 0 {
		log.Warn().Msg("discovery: no supplementary tokens found")
		return stats, ctx.Err()
	}

	observability.RecordCandidates(stats.Source, len(records))
	f.persist(ctx, records, stats)

	log.Info().
		Str("source", stats.Source).
		Int("candidates", stats.Candidates).
		Int("created", stats.Created).
		Msg("discovery complete")

	return stats, ctx.Err()
}

// FetchOne fetches, normalizes and stores a single token on demand.
// Tries pump.fun first, then the DexScreener token lookup.
func (f *Fetcher) FetchOne(ctx context.Context, address string) (*domain.TokenRecord, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("fetch one: %w", domain.ErrEmptyAddress)
	}

	now := time.Now()
	rec := f.lookupCoin(ctx, address, now)
	if rec == nil {
		rec = f.lookupPair(ctx, address, now)
	}
	if rec == nil {
		return nil, fmt.Errorf("%s: %w", address, ErrNotFound)
	}

	fillIdentity(rec)
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("normalize %s: %w", address, err)
	}

	if rec.NeedsEnrichment() {
		f.enrich(ctx, rec)
	}
	if _, err := f.store.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("store %s: %w", address, err)
	}
	return rec, nil
}

// Reprocess re-runs enrichment for stored records still missing an image,
// oldest-updated first. Returns how many records were enriched.
func (f *Fetcher) Reprocess(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultReprocessLimit
	}

	records, err := f.store.ListMissingEnrichment(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list missing enrichment: %w", err)
	}

	enriched := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return enriched, ctx.Err()
		}
		if !f.enrich(ctx, rec) {
			// Touch updated_at anyway so one permanently broken URI cannot
			// pin the head of the reprocessing queue.
			if _, err := f.store.Upsert(ctx, rec); err != nil {
				log.Warn().Err(err).Str("mint", rec.Address).Msg("reprocess touch failed")
			}
			continue
		}
		if _, err := f.store.Upsert(ctx, rec); err != nil {
			log.Warn().Err(err).Str("mint", rec.Address).Msg("reprocess store failed")
			continue
		}
		enriched++
	}

	if len(records) > 0 {
		log.Info().Int("checked", len(records)).Int("enriched", enriched).Msg("reprocessing pass complete")
	}
	return enriched, nil
}

// Change24h returns the measured 24h price change for a token when
// DexScreener reports one. Best effort: nil means no measurement available.
func (f *Fetcher) Change24h(ctx context.Context, address string) *float64 {
	if f.market == nil {
		return nil
	}
	pairs, err := f.market.Tokens(ctx, []string{address})
	if err != nil {
		log.Debug().Err(err).Str("mint", address).Msg("measured change lookup failed")
		return nil
	}
	best := dexscreener.BestPairFor(pairs, address)
	if best == nil {
		return nil
	}
	return best.PriceChange.H24
}

// collectNew tries the sources in priority order and returns the first
// non-empty candidate batch.
func (f *Fetcher) collectNew(ctx context.Context) ([]*domain.TokenRecord, string) {
	now := time.Now()

	if f.launches != nil {
		coins, err := f.launches.Latest(ctx, f.batchLimit)
		if err != nil {
			log.Warn().Err(err).Msg("pump.fun listing failed, falling back")
		} else if len(coins) > 0 {
			records := make([]*domain.TokenRecord, 0, len(coins))
			for i := range coins {
				records = append(records, recordFromCoin(&coins[i], f.solPriceUsd, now))
			}
			return records, SourcePumpFun
		}
	}

	if records := f.fromStream(ctx, now); len(records) > 0 {
		return records, SourcePumpPortal
	}
	if records := f.fromSearch(ctx, now); len(records) > 0 {
		return records, SourceDexScreener
	}
	return nil, ""
}

// fromStream collects one bounded WebSocket session of new-token events.
func (f *Fetcher) fromStream(ctx context.Context, now time.Time) []*domain.TokenRecord {
	if f.stream == nil {
		return nil
	}
	events, err := f.stream.Collect(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("launch stream failed, falling back")
	}
	if len(events) == 0 {
		return nil
	}

	observability.RecordRealtimeEvents(len(events))
	records := make([]*domain.TokenRecord, 0, len(events))
	for i := range events {
		records = append(records, recordFromEvent(&events[i], f.solPriceUsd, now))
	}
	return records
}

// fromSearch runs the trending search, deduplicated to one record per mint
// using the deepest pair.
func (f *Fetcher) fromSearch(ctx context.Context, now time.Time) []*domain.TokenRecord {
	if f.market == nil {
		return nil
	}
	pairs, err := f.market.Search(ctx, f.searchQuery)
	if err != nil {
		log.Warn().Err(err).Msg("trending search failed")
		return nil
	}

	seen := make(map[string]bool, len(pairs))
	var records []*domain.TokenRecord
	for i := range pairs {
		addr := pairs[i].BaseToken.Address
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		if best := dexscreener.BestPairFor(pairs, addr); best != nil {
			records = append(records, recordFromPair(best, now))
		}
	}
	return records
}

// persist validates, enriches and upserts each candidate. A bad candidate is
// skipped and logged, never aborting the batch.
func (f *Fetcher) persist(ctx context.Context, records []*domain.TokenRecord, stats *CycleStats) {
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}

		fillIdentity(rec)
		if err := rec.Validate(); err != nil {
			stats.Skipped++
			observability.RecordUpsert("skipped")
			log.Debug().Err(err).Str("mint", rec.Address).Msg("skipping invalid candidate")
			continue
		}

		// Enrich before the write so the first insert already carries the
		// document when it is reachable.
		if rec.NeedsEnrichment() && f.enrich(ctx, rec) {
			stats.Enriched++
		}

		created, err := f.store.Upsert(ctx, rec)
		if err != nil {
			stats.Skipped++
			observability.RecordUpsert("skipped")
			log.Warn().Err(err).Str("mint", rec.Address).Msg("upsert failed")
			continue
		}
		if created {
			stats.Created++
			observability.RecordUpsert("created")
		} else {
			stats.Updated++
			observability.RecordUpsert("updated")
		}
	}
}

// enrich resolves the metadata URI and merges the off-chain document into
// the record. Failures are swallowed: the record is stored without
// enrichment and the reprocessing task retries later.
func (f *Fetcher) enrich(ctx context.Context, rec *domain.TokenRecord) bool {
	if f.documents == nil {
		return false
	}

	uri := ""
	if rec.MetadataURI != nil {
		uri = *rec.MetadataURI
	}
	if uri == "" && f.resolver != nil {
		resolved, err := f.resolver.MetadataURI(ctx, rec.Address)
		if err != nil {
			observability.RecordEnrichment(false)
			log.Debug().Err(err).Str("mint", rec.Address).Msg("metadata uri resolution failed")
			return false
		}
		uri = resolved
	}
	if uri == "" {
		log.Debug().Str("mint", rec.Address).Msg("no metadata uri available")
		return false
	}

	doc, err := f.documents.Fetch(ctx, uri)
	if err != nil {
		observability.RecordEnrichment(false)
		log.Debug().Err(err).Str("mint", rec.Address).Str("uri", uri).Msg("metadata document fetch failed")
		return false
	}

	applyDocument(rec, doc)
	if rec.MetadataURI == nil {
		rec.MetadataURI = optional(uri)
	}
	observability.RecordEnrichment(true)
	return true
}

// refreshSnapshots re-reads market data for the most recently updated stored
// records through the DexScreener batch endpoint. Returns how many records
// were refreshed.
func (f *Fetcher) refreshSnapshots(ctx context.Context) int {
	if f.market == nil || f.refreshBatches <= 0 {
		return 0
	}

	// Collect the batches up front: refreshing bumps updated_at, which would
	// shuffle the sort under later pages.
	var batches [][]*domain.TokenRecord
	for page := 1; page <= f.refreshBatches; page++ {
		result, err := f.store.List(ctx, storage.ListParams{
			Page:      page,
			PageSize:  dexscreener.MaxTokensPerRequest,
			SortField: storage.SortUpdatedAt,
			SortOrder: storage.OrderDesc,
		})
		if err != nil {
			log.Warn().Err(err).Msg("snapshot refresh listing failed")
			return 0
		}
		if len(result.Tokens) == 0 {
			break
		}
		batches = append(batches, result.Tokens)
		if int64(page*dexscreener.MaxTokensPerRequest) >= result.Total {
			break
		}
	}

	refreshed := 0
	for _, batch := range batches {
		if ctx.Err() != nil {
			return refreshed
		}

		addrs := make([]string, 0, len(batch))
		byAddr := make(map[string]*domain.TokenRecord, len(batch))
		for _, rec := range batch {
			addrs = append(addrs, rec.Address)
			byAddr[rec.Address] = rec
		}

		pairs, err := f.market.Tokens(ctx, addrs)
		if err != nil {
			log.Warn().Err(err).Msg("snapshot refresh lookup failed")
			return refreshed
		}

		for _, addr := range addrs {
			best := dexscreener.BestPairFor(pairs, addr)
			if best == nil {
				continue
			}
			rec := byAddr[addr]
			applyPairSnapshot(rec, best)
			if _, err := f.store.Upsert(ctx, rec); err != nil {
				log.Warn().Err(err).Str("mint", addr).Msg("snapshot refresh upsert failed")
				continue
			}
			refreshed++
		}
	}
	return refreshed
}

// lookupCoin resolves one coin through the pump.fun frontend API.
func (f *Fetcher) lookupCoin(ctx context.Context, address string, now time.Time) *domain.TokenRecord {
	if f.launches == nil {
		return nil
	}
	coin, err := f.launches.Coin(ctx, address)
	if err != nil {
		log.Debug().Err(err).Str("mint", address).Msg("pump.fun lookup failed")
		return nil
	}
	return recordFromCoin(coin, f.solPriceUsd, now)
}

// lookupPair resolves one token through the DexScreener token endpoint.
func (f *Fetcher) lookupPair(ctx context.Context, address string, now time.Time) *domain.TokenRecord {
	if f.market == nil {
		return nil
	}
	pairs, err := f.market.Tokens(ctx, []string{address})
	if err != nil {
		log.Debug().Err(err).Str("mint", address).Msg("dexscreener lookup failed")
		return nil
	}
	best := dexscreener.BestPairFor(pairs, address)
	if best == nil {
		return nil
	}
	return recordFromPair(best, now)
}
