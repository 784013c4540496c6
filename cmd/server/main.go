// Package main runs the token watcher as one process:
// - Scheduler (continuous): fetch cycles, stale cleanup, metadata reprocessing
// - JSON API: token listing, details, manual triggers, analysis
// - Prometheus metrics on the same listener
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pumpwatch/internal/api"
	"pumpwatch/internal/dexscreener"
	"pumpwatch/internal/enrichment"
	"pumpwatch/internal/fetcher"
	"pumpwatch/internal/pumpfun"
	"pumpwatch/internal/scheduler"
	"pumpwatch/internal/solana"
	"pumpwatch/internal/storage"
	"pumpwatch/internal/storage/memory"
	"pumpwatch/internal/storage/migrations"
	pgstore "pumpwatch/internal/storage/postgres"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// .env values act as defaults; already-set environment wins.
	_ = godotenv.Load()

	addr := flag.String("addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("use-memory", envBool("USE_MEMORY"), "Use in-memory storage instead of PostgreSQL")

	refreshInterval := flag.Duration("refresh-interval", envDurationOr("REFRESH_INTERVAL", scheduler.DefaultRefreshInterval), "Token fetch interval")
	cleanupInterval := flag.Duration("cleanup-interval", envDurationOr("CLEANUP_INTERVAL", scheduler.DefaultCleanupInterval), "Stale cleanup interval")
	reprocessInterval := flag.Duration("reprocess-interval", envDurationOr("REPROCESS_INTERVAL", scheduler.DefaultReprocessInterval), "Metadata reprocess interval")

	pumpfunURL := flag.String("pumpfun-url", envOr("PUMPFUN_API_URL", pumpfun.DefaultBaseURL), "pump.fun frontend API base URL")
	pumpfunKey := flag.String("pumpfun-key", os.Getenv("PUMPFUN_API_KEY"), "Optional pump.fun API key")
	portalWSURL := flag.String("portal-ws-url", envOr("PUMPPORTAL_WS_URL", pumpfun.DefaultStreamURL), "PumpPortal WebSocket endpoint")
	dexscreenerURL := flag.String("dexscreener-url", envOr("DEXSCREENER_API_URL", dexscreener.DefaultBaseURL), "DexScreener API base URL")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC endpoint for on-chain metadata lookups (optional)")

	wsSessionTimeout := flag.Duration("ws-session-timeout", envDurationOr("WS_SESSION_TIMEOUT", 30*time.Second), "PumpPortal listening session budget")
	solPrice := flag.Float64("sol-price", envFloatOr("SOL_PRICE_USD", fetcher.DefaultSolPriceUsd), "Reference SOL price in USD")

	maxAge := flag.Duration("max-age", envDurationOr("STALE_MAX_AGE", storage.DefaultStaleCutoffs().MaxAge), "Delete tokens older than this")
	unenrichedMaxAge := flag.Duration("unenriched-max-age", envDurationOr("STALE_UNENRICHED_MAX_AGE", storage.DefaultStaleCutoffs().UnenrichedMaxAge), "Delete never-enriched tokens older than this")
	noMarketMaxAge := flag.Duration("no-market-max-age", envDurationOr("STALE_NO_MARKET_MAX_AGE", storage.DefaultStaleCutoffs().NoMarketMaxAge), "Delete tokens without market cap older than this")

	corsOrigins := flag.String("cors-origins", os.Getenv("CORS_ORIGINS"), "Comma-separated CORS origin allow-list (empty allows any)")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level (trace, debug, info, warn, error)")

	flag.Parse()

	setupLogging(*logLevel)

	if !*useMemory && *postgresDSN == "" {
		log.Fatal().Msg("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, cleanup, err := createStore(ctx, *postgresDSN, *useMemory)
	if err != nil {
		log.Fatal().Err(err).Msg("storage setup failed")
	}
	defer cleanup()

	launches := pumpfun.NewClient(
		pumpfun.WithBaseURL(*pumpfunURL),
		pumpfun.WithAPIKey(*pumpfunKey),
	)

	streamConfig := pumpfun.DefaultStreamConfig()
	streamConfig.URL = *portalWSURL
	streamConfig.SessionTimeout = *wsSessionTimeout
	stream := pumpfun.NewStream(&streamConfig)

	market := dexscreener.NewClient(dexscreener.WithBaseURL(*dexscreenerURL))

	// Without an RPC endpoint enrichment still works off the URIs the
	// upstream payloads carry; only on-chain resolution is skipped.
	var resolver fetcher.URIResolver
	if *rpcEndpoint != "" {
		resolver = enrichment.NewResolver(solana.NewHTTPClient(*rpcEndpoint))
	}

	pipeline := fetcher.New(fetcher.Options{
		Launches:    launches,
		Stream:      stream,
		Market:      market,
		Resolver:    resolver,
		Documents:   enrichment.NewFetcher(),
		Store:       store,
		SolPriceUsd: *solPrice,
	})

	sched := scheduler.New(scheduler.Options{
		Pipeline: pipeline,
		Store:    store,
		Cutoffs: storage.StaleCutoffs{
			MaxAge:           *maxAge,
			UnenrichedMaxAge: *unenrichedMaxAge,
			NoMarketMaxAge:   *noMarketMaxAge,
		},
		RefreshInterval:   *refreshInterval,
		CleanupInterval:   *cleanupInterval,
		ReprocessInterval: *reprocessInterval,
	})

	serverConfig := api.DefaultConfig()
	serverConfig.Addr = *addr
	serverConfig.CORSOrigins = splitList(*corsOrigins)
	server := api.NewServer(serverConfig, store, pipeline, sched)

	sched.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
		return
	}

	// A second signal forces an immediate exit.
	go func() {
		<-sigCh
		log.Warn().Msg("second signal received, forcing exit")
		os.Exit(1)
	}()

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}

	log.Info().Msg("shutdown complete")
}

// createStore builds the token store and returns it with a release func.
func createStore(ctx context.Context, dsn string, useMemory bool) (storage.TokenStore, func(), error) {
	if useMemory {
		log.Info().Msg("using in-memory storage")
		return memory.NewTokenStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	log.Info().Msg("using postgres storage")
	return pgstore.NewTokenStore(pool), pool.Close, nil
}

func setupLogging(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
