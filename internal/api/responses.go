package api

import (
	"time"

	"pumpwatch/internal/domain"
	"pumpwatch/internal/scoring"
	"pumpwatch/internal/storage"
)

// Handled failures return HTTP 200 with success=false; consumers check the
// flag, not the status code.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// TokenView is the JSON shape of a stored token plus the display scores
// computed on read. Nullable enrichment fields serialize as null.
type TokenView struct {
	Address        string  `json:"address"`
	Name           string  `json:"name"`
	Symbol         string  `json:"symbol"`
	Description    *string `json:"description"`
	ImageURL       *string `json:"imageUrl"`
	Website        *string `json:"website"`
	Twitter        *string `json:"twitter"`
	Telegram       *string `json:"telegram"`
	MetadataURI    *string `json:"metadataUri,omitempty"`
	PriceUsd       float64 `json:"priceUsd"`
	MarketCap      float64 `json:"marketCap"`
	Volume24h      float64 `json:"volume24h"`
	CreatedAt      int64   `json:"createdAt"`
	UpdatedAt      int64   `json:"updatedAt"`
	RiskScore      float64 `json:"riskScore"`
	Recommendation string  `json:"recommendation"`
	PotentialGain  string  `json:"potentialGain"`
}

func tokenView(rec *domain.TokenRecord, result *scoring.Result) TokenView {
	return TokenView{
		Address:        rec.Address,
		Name:           rec.Name,
		Symbol:         rec.Symbol,
		Description:    rec.Description,
		ImageURL:       rec.ImageURL,
		Website:        rec.Website,
		Twitter:        rec.Twitter,
		Telegram:       rec.Telegram,
		MetadataURI:    rec.MetadataURI,
		PriceUsd:       rec.PriceUsd,
		MarketCap:      rec.MarketCap,
		Volume24h:      rec.Volume24h,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		RiskScore:      result.Score,
		Recommendation: string(result.Recommendation),
		PotentialGain:  result.PotentialGain,
	}
}

// Pagination is the page envelope for list responses.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNext     bool  `json:"hasNext"`
	HasPrevious bool  `json:"hasPrevious"`
}

func paginationFor(params storage.ListParams, result *storage.ListResult) Pagination {
	return Pagination{
		Page:        params.Page,
		Limit:       params.PageSize,
		Total:       result.Total,
		TotalPages:  result.TotalPages,
		HasNext:     params.Page < result.TotalPages,
		HasPrevious: params.Page > 1,
	}
}

type listResponse struct {
	Success    bool        `json:"success"`
	Tokens     []TokenView `json:"tokens"`
	Pagination Pagination  `json:"pagination"`
}

// dataResponse wraps a single token; Data is null when the address is
// unknown, which is not an error.
type dataResponse struct {
	Success bool       `json:"success"`
	Data    *TokenView `json:"data"`
}

type adjustmentView struct {
	Name      string  `json:"name"`
	Threshold string  `json:"threshold"`
	Actual    string  `json:"actual"`
	Delta     float64 `json:"delta"`
	Applied   bool    `json:"applied"`
}

// signalView labels every display signal with its provenance so simulated
// placeholders are never mistaken for market data.
type signalView struct {
	Value float64 `json:"value"`
	Basis string  `json:"basis"`
}

func signalViewFor(s scoring.Signal) signalView {
	return signalView{Value: s.Value, Basis: string(s.Basis)}
}

type analyticsView struct {
	RiskScore      float64          `json:"riskScore"`
	Recommendation string           `json:"recommendation"`
	PotentialGain  string           `json:"potentialGain"`
	Breakdown      []adjustmentView `json:"breakdown"`
	PriceChange24h signalView       `json:"priceChange24h"`
	Liquidity      signalView       `json:"liquidityScore"`
	Volatility     signalView       `json:"volatilityScore"`
}

type candleView struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

type detailsResponse struct {
	Success   bool          `json:"success"`
	Data      TokenView     `json:"data"`
	Analytics analyticsView `json:"analytics"`
	History   []candleView  `json:"history"`
}

type refreshResponse struct {
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	Created   int    `json:"created"`
	Updated   int    `json:"updated"`
}

type discoverResponse struct {
	Success    bool   `json:"success"`
	Source     string `json:"source"`
	Discovered int    `json:"discovered"`
	Created    int    `json:"created"`
	Updated    int    `json:"updated"`
}

type cleanupResponse struct {
	Success    bool  `json:"success"`
	AgedOut    int64 `json:"agedOut"`
	Unenriched int64 `json:"unenriched"`
	NoMarket   int64 `json:"noMarket"`
	Total      int64 `json:"total"`
}

type analysisView struct {
	TokenCount       int64          `json:"tokenCount"`
	TotalMarketCap   float64        `json:"totalMarketCap"`
	TotalVolume24h   float64        `json:"totalVolume24h"`
	NewLast24h       int64          `json:"newLast24h"`
	AverageRiskScore float64        `json:"averageRiskScore"`
	Recommendations  map[string]int `json:"recommendations"`
	Trending         []TokenView    `json:"trending"`
}

type analysisResponse struct {
	Success  bool         `json:"success"`
	Analysis analysisView `json:"analysis"`
}

type healthResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type taskView struct {
	Running bool    `json:"running"`
	LastRun *string `json:"lastRun"` // null until the first completed run
}

type storeView struct {
	TokenCount     int64   `json:"tokenCount"`
	TotalMarketCap float64 `json:"totalMarketCap"`
	TotalVolume24h float64 `json:"totalVolume24h"`
	NewLast24h     int64   `json:"newLast24h"`
}

type statusResponse struct {
	Success bool                `json:"success"`
	Uptime  string              `json:"uptime"`
	Tasks   map[string]taskView `json:"tasks"`
	Store   storeView           `json:"store"`
}

func timestampNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}
