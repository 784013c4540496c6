// Package main is the one-shot companion to the server: it runs a single
// fetch, discovery, reprocess, or cleanup pass and exits. Useful for cron
// setups and for inspecting a cycle without starting the scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pumpwatch/internal/dexscreener"
	"pumpwatch/internal/enrichment"
	"pumpwatch/internal/fetcher"
	"pumpwatch/internal/pumpfun"
	"pumpwatch/internal/solana"
	"pumpwatch/internal/storage"
	"pumpwatch/internal/storage/migrations"
	pgstore "pumpwatch/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "fetch", "What to run: fetch, discover, reprocess, cleanup")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	pumpfunURL := flag.String("pumpfun-url", envOr("PUMPFUN_API_URL", pumpfun.DefaultBaseURL), "pump.fun frontend API base URL")
	pumpfunKey := flag.String("pumpfun-key", os.Getenv("PUMPFUN_API_KEY"), "Optional pump.fun API key")
	portalWSURL := flag.String("portal-ws-url", envOr("PUMPPORTAL_WS_URL", pumpfun.DefaultStreamURL), "PumpPortal WebSocket endpoint")
	dexscreenerURL := flag.String("dexscreener-url", envOr("DEXSCREENER_API_URL", dexscreener.DefaultBaseURL), "DexScreener API base URL")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC endpoint for on-chain metadata lookups (optional)")
	solPrice := flag.Float64("sol-price", fetcher.DefaultSolPriceUsd, "Reference SOL price in USD")
	limit := flag.Int("limit", 20, "Max tokens to reprocess")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall run budget")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	setupLogging(*logLevel)

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying migrations: %v\n", err)
		os.Exit(1)
	}
	store := pgstore.NewTokenStore(pool)

	var resolver fetcher.URIResolver
	if *rpcEndpoint != "" {
		resolver = enrichment.NewResolver(solana.NewHTTPClient(*rpcEndpoint))
	}

	streamConfig := pumpfun.DefaultStreamConfig()
	streamConfig.URL = *portalWSURL

	pipeline := fetcher.New(fetcher.Options{
		Launches:    pumpfun.NewClient(pumpfun.WithBaseURL(*pumpfunURL), pumpfun.WithAPIKey(*pumpfunKey)),
		Stream:      pumpfun.NewStream(&streamConfig),
		Market:      dexscreener.NewClient(dexscreener.WithBaseURL(*dexscreenerURL)),
		Resolver:    resolver,
		Documents:   enrichment.NewFetcher(),
		Store:       store,
		SolPriceUsd: *solPrice,
	})

	switch *mode {
	case "fetch":
		stats, err := pipeline.RunCycle(ctx)
		exitOn(err)
		fmt.Printf("Fetched %d candidates from %s: %d created, %d updated, %d skipped\n",
			stats.Candidates, stats.Source, stats.Created, stats.Updated, stats.Skipped)

	case "discover":
		stats, err := pipeline.Discover(ctx)
		exitOn(err)
		fmt.Printf("Discovered %d candidates from %s: %d created, %d updated\n",
			stats.Candidates, stats.Source, stats.Created, stats.Updated)

	case "reprocess":
		enriched, err := pipeline.Reprocess(ctx, *limit)
		exitOn(err)
		fmt.Printf("Reprocessed metadata: %d tokens enriched\n", enriched)

	case "cleanup":
		stats, err := store.DeleteStale(ctx, storage.DefaultStaleCutoffs())
		exitOn(err)
		fmt.Printf("Cleanup removed %d rows: %d aged out, %d never enriched, %d without market data\n",
			stats.Total(), stats.AgedOut, stats.Unenriched, stats.NoMarket)

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q\n", *mode)
		os.Exit(1)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
