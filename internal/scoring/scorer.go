// Package scoring derives display-only risk scores, recommendation labels,
// and placeholder market signals from stored token snapshots. Nothing here
// is persisted; every value is recomputed on read.
package scoring

import (
	"fmt"
	"time"

	"pumpwatch/internal/domain"
)

// Recommendation is a display label derived from the risk score.
type Recommendation string

const (
	RecommendationBuy     Recommendation = "BUY"
	RecommendationHold    Recommendation = "HOLD"
	RecommendationMonitor Recommendation = "MONITOR"
	RecommendationAvoid   Recommendation = "AVOID"
)

// Adjustment records one threshold rule's contribution to the score.
type Adjustment struct {
	Name      string
	Threshold string
	Actual    string
	Delta     float64
	Applied   bool
}

// Result is the full scoring outcome for one record.
type Result struct {
	Score          float64
	Recommendation Recommendation
	PotentialGain  string
	Breakdown      []Adjustment
}

const (
	baseScore = 50.0

	lowVolumeThreshold  = 50_000.0
	highVolumeThreshold = 200_000.0
	lowPriceThreshold   = 0.001
	lowMarketCap        = 100_000.0
	highMarketCap       = 1_000_000.0
	youngAge            = 24 * time.Hour
)

// Scorer evaluates threshold scoring rules.
type Scorer struct{}

// NewScorer creates a new scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score produces the risk score, recommendation, and rule breakdown for a
// record. The score starts at 50, each rule adds or subtracts a fixed
// delta, and the sum is clamped to [0,100].
func (s *Scorer) Score(record *domain.TokenRecord, now time.Time) *Result {
	age := record.Age(now)
	breakdown := make([]Adjustment, 6)

	// 1. Thin 24h volume reads as risk.
	breakdown[0] = Adjustment{
		Name:      "Low 24h volume",
		Threshold: "< 50000",
		Actual:    fmt.Sprintf("%.2f", record.Volume24h),
		Delta:     20,
		Applied:   record.Volume24h < lowVolumeThreshold,
	}

	// 2. Heavy volume reads as established interest.
	breakdown[1] = Adjustment{
		Name:      "High 24h volume",
		Threshold: "> 200000",
		Actual:    fmt.Sprintf("%.2f", record.Volume24h),
		Delta:     -15,
		Applied:   record.Volume24h > highVolumeThreshold,
	}

	// 3. Sub-millidollar price.
	breakdown[2] = Adjustment{
		Name:      "Low price",
		Threshold: "< 0.001",
		Actual:    fmt.Sprintf("%.8f", record.PriceUsd),
		Delta:     15,
		Applied:   record.PriceUsd < lowPriceThreshold,
	}

	// 4. Micro market cap.
	breakdown[3] = Adjustment{
		Name:      "Low market cap",
		Threshold: "< 100000",
		Actual:    fmt.Sprintf("%.2f", record.MarketCap),
		Delta:     15,
		Applied:   record.MarketCap < lowMarketCap,
	}

	// 5. Million-plus market cap.
	breakdown[4] = Adjustment{
		Name:      "High market cap",
		Threshold: "> 1000000",
		Actual:    fmt.Sprintf("%.2f", record.MarketCap),
		Delta:     -20,
		Applied:   record.MarketCap > highMarketCap,
	}

	// 6. Fresh launches are volatile by default.
	breakdown[5] = Adjustment{
		Name:      "Young token",
		Threshold: "age < 24h",
		Actual:    age.Truncate(time.Minute).String(),
		Delta:     15,
		Applied:   age < youngAge,
	}

	score := baseScore
	for _, adj := range breakdown {
		if adj.Applied {
			score += adj.Delta
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &Result{
		Score:          score,
		Recommendation: s.recommend(score, record, age),
		PotentialGain:  s.potentialGain(record),
		Breakdown:      breakdown,
	}
}

// recommend picks the display label. Rules are ordered: risk first, then
// age, then upside.
func (s *Scorer) recommend(score float64, record *domain.TokenRecord, age time.Duration) Recommendation {
	switch {
	case score >= 80:
		return RecommendationAvoid
	case age < youngAge:
		return RecommendationMonitor
	case score <= 40 && record.Volume24h >= highVolumeThreshold && record.MarketCap >= highMarketCap:
		return RecommendationBuy
	case score <= 60:
		return RecommendationHold
	default:
		return RecommendationMonitor
	}
}

// potentialGain buckets upside by market cap and volume. Pure display
// copy, not a price target.
func (s *Scorer) potentialGain(record *domain.TokenRecord) string {
	switch {
	case record.MarketCap < lowMarketCap && record.Volume24h >= lowVolumeThreshold:
		return "10x-100x"
	case record.MarketCap < highMarketCap:
		return "2x-10x"
	case record.MarketCap < 10_000_000:
		return "1.5x-3x"
	default:
		return "1x-1.5x"
	}
}
