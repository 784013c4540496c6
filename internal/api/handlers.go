package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"pumpwatch/internal/domain"
	"pumpwatch/internal/fetcher"
	"pumpwatch/internal/scheduler"
	"pumpwatch/internal/scoring"
	"pumpwatch/internal/storage"
)

// Analysis scans at most this many pages when aggregating over the stored set.
const maxAnalysisPages = 10

const trendingSize = 10

// Triggers is the scheduler surface exposed over HTTP.
type Triggers interface {
	TriggerFetch(ctx context.Context) (*fetcher.CycleStats, error)
	TriggerDiscover(ctx context.Context) (*fetcher.CycleStats, error)
	TriggerCleanup(ctx context.Context) (*storage.CleanupStats, error)
	Status() map[string]scheduler.TaskStatus
}

// TokenFetcher is the on-demand fetch surface used by the details endpoint.
type TokenFetcher interface {
	FetchOne(ctx context.Context, address string) (*domain.TokenRecord, error)
	Change24h(ctx context.Context, address string) *float64
}

// Handlers implements the HTTP endpoints.
type Handlers struct {
	store     storage.TokenStore
	fetch     TokenFetcher
	triggers  Triggers
	scorer    *scoring.Scorer
	startedAt time.Time
}

// NewHandlers creates the handler set. fetch and triggers may be nil, in
// which case the endpoints depending on them answer with an error envelope.
func NewHandlers(store storage.TokenStore, fetch TokenFetcher, triggers Triggers) *Handlers {
	return &Handlers{
		store:     store,
		fetch:     fetch,
		triggers:  triggers,
		scorer:    scoring.NewScorer(),
		startedAt: time.Now(),
	}
}

// ListTokens handles GET /token-data.
func (h *Handlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	params := storage.ListParams{
		SortField: query.Get("sortBy"),
		SortOrder: query.Get("sortOrder"),
	}
	if page, err := strconv.Atoi(query.Get("page")); err == nil {
		params.Page = page
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		params.PageSize = limit
	}
	params = params.Normalize()

	result, err := h.store.List(r.Context(), params)
	if err != nil {
		h.fail(w, r, "failed to list tokens", err)
		return
	}

	now := time.Now()
	tokens := make([]TokenView, 0, len(result.Tokens))
	for _, rec := range result.Tokens {
		tokens = append(tokens, tokenView(rec, h.scorer.Score(rec, now)))
	}

	h.writeJSON(w, http.StatusOK, listResponse{
		Success:    true,
		Tokens:     tokens,
		Pagination: paginationFor(params, result),
	})
}

// GetToken handles GET /token-data/{address}. An unknown address yields
// data null, not an error.
func (h *Handlers) GetToken(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	rec, err := h.store.GetByAddress(r.Context(), address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: nil})
			return
		}
		h.fail(w, r, "failed to load token", err)
		return
	}

	view := tokenView(rec, h.scorer.Score(rec, time.Now()))
	h.writeJSON(w, http.StatusOK, dataResponse{Success: true, Data: &view})
}

// GetTokenDetails handles GET /token-data/{address}/details. Unknown
// addresses trigger an on-demand upstream fetch before giving up.
func (h *Handlers) GetTokenDetails(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	ctx := r.Context()

	rec, err := h.store.GetByAddress(ctx, address)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			h.fail(w, r, "failed to load token", err)
			return
		}
		if h.fetch == nil {
			h.fail(w, r, "token not found", err)
			return
		}
		rec, err = h.fetch.FetchOne(ctx, address)
		if err != nil {
			h.fail(w, r, "token not found", err)
			return
		}
	}

	now := time.Now()
	result := h.scorer.Score(rec, now)

	// Prefer a live measured change; degrade to the simulated placeholder.
	var measured *float64
	if h.fetch != nil {
		measured = h.fetch.Change24h(ctx, address)
	}
	signals := scoring.ComputeSignals(rec, measured, now)

	breakdown := make([]adjustmentView, 0, len(result.Breakdown))
	for _, adj := range result.Breakdown {
		breakdown = append(breakdown, adjustmentView(adj))
	}

	candles := scoring.SimulatedHistory(rec, now, scoring.DefaultHistoryHours)
	history := make([]candleView, 0, len(candles))
	for _, c := range candles {
		history = append(history, candleView(c))
	}

	h.writeJSON(w, http.StatusOK, detailsResponse{
		Success: true,
		Data:    tokenView(rec, result),
		Analytics: analyticsView{
			RiskScore:      result.Score,
			Recommendation: string(result.Recommendation),
			PotentialGain:  result.PotentialGain,
			Breakdown:      breakdown,
			PriceChange24h: signalViewFor(signals.PriceChange24h),
			Liquidity:      signalViewFor(signals.Liquidity),
			Volatility:     signalViewFor(signals.Volatility),
		},
		History: history,
	})
}

// RefreshTokens handles POST /token-data/refresh.
func (h *Handlers) RefreshTokens(w http.ResponseWriter, r *http.Request) {
	if h.triggers == nil {
		h.fail(w, r, "scheduler unavailable", nil)
		return
	}

	stats, err := h.triggers.TriggerFetch(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			h.fail(w, r, "fetch already running", err)
			return
		}
		h.fail(w, r, "fetch failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, refreshResponse{
		Success:   true,
		Timestamp: timestampNow(),
		Source:    stats.Source,
		Created:   stats.Created,
		Updated:   stats.Updated,
	})
}

// DiscoverTokens handles POST /token-data/discover.
func (h *Handlers) DiscoverTokens(w http.ResponseWriter, r *http.Request) {
	if h.triggers == nil {
		h.fail(w, r, "scheduler unavailable", nil)
		return
	}

	stats, err := h.triggers.TriggerDiscover(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			h.fail(w, r, "discovery already running", err)
			return
		}
		h.fail(w, r, "discovery failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, discoverResponse{
		Success:    true,
		Source:     stats.Source,
		Discovered: stats.Candidates,
		Created:    stats.Created,
		Updated:    stats.Updated,
	})
}

// Cleanup handles POST /cleanup.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	if h.triggers == nil {
		h.fail(w, r, "scheduler unavailable", nil)
		return
	}

	stats, err := h.triggers.TriggerCleanup(r.Context())
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			h.fail(w, r, "cleanup already running", err)
			return
		}
		h.fail(w, r, "cleanup failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, cleanupResponse{
		Success:    true,
		AgedOut:    stats.AgedOut,
		Unenriched: stats.Unenriched,
		NoMarket:   stats.NoMarket,
		Total:      stats.Total(),
	})
}

// Analysis handles GET /token-data/pumpfun/analysis: aggregate figures over
// the stored set plus the top-volume trending subset.
func (h *Handlers) Analysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.store.Stats(ctx)
	if err != nil {
		h.fail(w, r, "failed to compute stats", err)
		return
	}

	now := time.Now()
	distribution := map[string]int{}
	var trending []TokenView
	var scoreSum float64
	var scored int

	for page := 1; page <= maxAnalysisPages; page++ {
		result, err := h.store.List(ctx, storage.ListParams{
			Page:      page,
			PageSize:  storage.MaxPageSize,
			SortField: storage.SortVolume24h,
			SortOrder: storage.OrderDesc,
		})
		if err != nil {
			h.fail(w, r, "failed to scan tokens", err)
			return
		}

		for _, rec := range result.Tokens {
			score := h.scorer.Score(rec, now)
			scoreSum += score.Score
			scored++
			distribution[string(score.Recommendation)]++
			if len(trending) < trendingSize {
				trending = append(trending, tokenView(rec, score))
			}
		}

		if int64(page*storage.MaxPageSize) >= result.Total {
			break
		}
	}

	average := 0.0
	if scored > 0 {
		average = scoreSum / float64(scored)
	}

	h.writeJSON(w, http.StatusOK, analysisResponse{
		Success: true,
		Analysis: analysisView{
			TokenCount:       stats.TokenCount,
			TotalMarketCap:   stats.TotalMarketCap,
			TotalVolume24h:   stats.TotalVolume24h,
			NewLast24h:       stats.NewLast24h,
			AverageRiskScore: average,
			Recommendations:  distribution,
			Trending:         trending,
		},
	})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Status:    "ok",
		Timestamp: timestampNow(),
	})
}

// Status handles GET /status: scheduler state plus store aggregates.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	tasks := map[string]taskView{}
	if h.triggers != nil {
		for name, st := range h.triggers.Status() {
			view := taskView{Running: st.Running}
			if !st.LastRun.IsZero() {
				formatted := st.LastRun.UTC().Format(time.RFC3339)
				view.LastRun = &formatted
			}
			tasks[name] = view
		}
	}

	store := storeView{}
	if stats, err := h.store.Stats(r.Context()); err == nil {
		store = storeView{
			TokenCount:     stats.TokenCount,
			TotalMarketCap: stats.TotalMarketCap,
			TotalVolume24h: stats.TotalVolume24h,
			NewLast24h:     stats.NewLast24h,
		}
	}

	h.writeJSON(w, http.StatusOK, statusResponse{
		Success: true,
		Uptime:  time.Since(h.startedAt).Truncate(time.Second).String(),
		Tasks:   tasks,
		Store:   store,
	})
}

// NotFound answers unknown routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeJSON(w, http.StatusNotFound, errorResponse{Success: false, Error: "endpoint not found"})
}

// fail writes the error envelope. Handled errors stay HTTP 200 so consumers
// only ever check the success flag.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	log.Warn().Err(err).Str("path", r.URL.Path).Msg(message)
	h.writeJSON(w, http.StatusOK, errorResponse{Success: false, Error: message})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("response encoding failed")
	}
}
