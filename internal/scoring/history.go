package scoring

import (
	"math"
	"math/rand"
	"time"

	"pumpwatch/internal/domain"
)

// DefaultHistoryHours is the length of the simulated history window.
const DefaultHistoryHours = 24

// Candle is one simulated hourly OHLCV bar.
type Candle struct {
	Timestamp int64 // Unix milliseconds, hour start
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// SimulatedHistory generates hourly candles random-walked backward from
// the record's current price. Same seed discipline as the signals: stable
// per address within a UTC day, regenerated on every read, never stored.
func SimulatedHistory(record *domain.TokenRecord, now time.Time, hours int) []Candle {
	if hours <= 0 {
		hours = DefaultHistoryHours
	}

	rng := rand.New(rand.NewSource(daySeed(record.Address, now, "history")))
	hourStart := now.UTC().Truncate(time.Hour)

	candles := make([]Candle, hours)
	price := record.PriceUsd

	// Walk back in time: each candle closes at the price the next one
	// opens with.
	for i := hours - 1; i >= 0; i-- {
		factor := 1 + (rng.Float64()-0.5)*0.1 // ±5% per hour
		open := price / factor
		high := math.Max(open, price) * (1 + rng.Float64()*0.02)
		low := math.Min(open, price) * (1 - rng.Float64()*0.02)
		volume := record.Volume24h / float64(hours) * (0.5 + rng.Float64())

		candles[i] = Candle{
			Timestamp: hourStart.Add(-time.Duration(hours-1-i) * time.Hour).UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    volume,
		}
		price = open
	}

	return candles
}
