package scoring

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"time"

	"pumpwatch/internal/domain"
)

// Basis tells whether a signal value was observed upstream or generated
// as a display placeholder.
type Basis string

const (
	BasisMeasured  Basis = "MEASURED"
	BasisSimulated Basis = "SIMULATED"
)

// Signal is a display value tagged with its provenance. Simulated values
// must never be fed back into anything that looks like a trading decision.
type Signal struct {
	Value float64
	Basis Basis
}

// Signals is the display signal set for the details view.
type Signals struct {
	PriceChange24h Signal // percent
	Liquidity      Signal // 0-100 placeholder score
	Volatility     Signal // 0-100 placeholder score
}

// ComputeSignals derives the display signals for a record. measuredChange,
// when non-nil, is an upstream-observed 24h change percentage and is used
// verbatim; everything else is seeded placeholder generation, stable for a
// given address within a UTC day.
func ComputeSignals(record *domain.TokenRecord, measuredChange *float64, now time.Time) Signals {
	rng := rand.New(rand.NewSource(daySeed(record.Address, now, "signals")))

	// Fixed draw order keeps liquidity/volatility stable whether or not a
	// measured change is available.
	simulatedChange := round2(rng.Float64()*40 - 20)
	liquidity := round2(rng.Float64() * 100)
	volatility := round2(rng.Float64() * 100)

	change := Signal{Value: simulatedChange, Basis: BasisSimulated}
	if measuredChange != nil {
		change = Signal{Value: *measuredChange, Basis: BasisMeasured}
	}

	return Signals{
		PriceChange24h: change,
		Liquidity:      Signal{Value: liquidity, Basis: BasisSimulated},
		Volatility:     Signal{Value: volatility, Basis: BasisSimulated},
	}
}

// daySeed computes a deterministic seed from address and UTC date.
// Formula: SHA256(address|YYYY-MM-DD|scope), first 8 bytes.
func daySeed(address string, now time.Time, scope string) int64 {
	data := fmt.Sprintf("%s|%s|%s", address, now.UTC().Format("2006-01-02"), scope)
	hash := sha256.Sum256([]byte(data))
	return int64(binary.BigEndian.Uint64(hash[:8]))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
