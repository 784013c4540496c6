package scoring

import (
	"testing"
	"time"

	"pumpwatch/internal/domain"
)

func scoredToken(price, marketCap, volume float64, age time.Duration, now time.Time) *domain.TokenRecord {
	return &domain.TokenRecord{
		Address:   "TestMint",
		Name:      "Test",
		Symbol:    "TST",
		PriceUsd:  price,
		MarketCap: marketCap,
		Volume24h: volume,
		CreatedAt: now.Add(-age).UnixMilli(),
		UpdatedAt: now.UnixMilli(),
	}
}

func TestScorer_HighRiskProfile(t *testing.T) {
	now := time.Now()
	scorer := NewScorer()

	// Low price, low cap, thin volume, mature: 50+20+15+15 = 100.
	result := scorer.Score(scoredToken(0.0005, 50000, 20000, 48*time.Hour, now), now)

	if result.Score != 100 {
		t.Errorf("expected score 100, got %f", result.Score)
	}
	if result.Recommendation != RecommendationAvoid {
		t.Errorf("expected AVOID, got %s", result.Recommendation)
	}
}

func TestScorer_YoungTokenClampsAt100(t *testing.T) {
	now := time.Now()
	scorer := NewScorer()

	// Same profile but young: raw 115 must clamp to 100.
	result := scorer.Score(scoredToken(0.0005, 50000, 20000, time.Hour, now), now)

	if result.Score != 100 {
		t.Errorf("expected clamped score 100, got %f", result.Score)
	}
	if result.Recommendation != RecommendationAvoid {
		t.Errorf("expected AVOID, got %s", result.Recommendation)
	}
}

func TestScorer_ScoreAlwaysInRange(t *testing.T) {
	now := time.Now()
	scorer := NewScorer()

	cases := []struct {
		price, marketCap, volume float64
		age                      time.Duration
	}{
		{0, 0, 0, 0},
		{0.0000001, 1, 1, time.Minute},
		{100, 50_000_000, 10_000_000, 90 * 24 * time.Hour},
		{0.0005, 50000, 20000, time.Hour},
		{1, 5_000_000, 300_000, 72 * time.Hour},
	}

	for _, tc := range cases {
		result := scorer.Score(scoredToken(tc.price, tc.marketCap, tc.volume, tc.age, now), now)
		if result.Score < 0 || result.Score > 100 {
			t.Errorf("score out of range for %+v: %f", tc, result.Score)
		}
	}
}

func TestScorer_LowVolumePenaltyAlwaysApplied(t *testing.T) {
	now := time.Now()
	scorer := NewScorer()

	cases := []struct {
		price, marketCap float64
		age              time.Duration
	}{
		{0.0005, 50000, time.Hour},
		{50, 90_000_000, 400 * 24 * time.Hour},
		{0, 0, 0},
	}

	for _, tc := range cases {
		result := scorer.Score(scoredToken(tc.price, tc.marketCap, 49_999, tc.age, now), now)

		var found bool
		for _, adj := range result.Breakdown {
			if adj.Name == "Low 24h volume" {
				found = true
				if !adj.Applied {
					t.Errorf("low-volume penalty not applied for %+v", tc)
				}
			}
		}
		if !found {
			t.Fatal("low-volume rule missing from breakdown")
		}
	}
}

func TestScorer_BreakdownSumMatchesScore(t *testing.T) {
	now := time.Now()
	scorer := NewScorer()

	// Mid-range profile that does not hit the clamps.
	result := scorer.Score(scoredToken(0.01, 500_000, 100_000, 48*time.Hour, now), now)

	sum := 50.0
	for _, adj := range result.Breakdown {
		if adj.Applied {
			sum += adj.Delta
		}
	}

	if sum != result.Score {
		t.Errorf("breakdown sum %f != score %f", sum, result.Score)
	}
}

func TestScorer_Recommendations(t *testing.T) {
	now := time.Now()
	scorer := NewScorer()

	tests := []struct {
		name                     string
		price, marketCap, volume float64
		age                      time.Duration
		want                     Recommendation
	}{
		{"high risk", 0.0005, 50000, 20000, 48 * time.Hour, RecommendationAvoid},
		{"young token", 0.01, 500_000, 100_000, 2 * time.Hour, RecommendationMonitor},
		{"established heavyweight", 5.0, 10_000_000, 500_000, 30 * 24 * time.Hour, RecommendationBuy},
		{"middling", 0.01, 500_000, 100_000, 48 * time.Hour, RecommendationHold},
		{"elevated but not extreme", 0.0005, 500_000, 100_000, 48 * time.Hour, RecommendationMonitor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Score(scoredToken(tt.price, tt.marketCap, tt.volume, tt.age, now), now)
			if result.Recommendation != tt.want {
				t.Errorf("score %f: expected %s, got %s", result.Score, tt.want, result.Recommendation)
			}
		})
	}
}

func TestScorer_PotentialGain(t *testing.T) {
	now := time.Now()
	scorer := NewScorer()

	tests := []struct {
		name              string
		marketCap, volume float64
		want              string
	}{
		{"micro cap with volume", 50_000, 80_000, "10x-100x"},
		{"micro cap no volume", 50_000, 1_000, "2x-10x"},
		{"small cap", 500_000, 80_000, "2x-10x"},
		{"mid cap", 5_000_000, 80_000, "1.5x-3x"},
		{"large cap", 50_000_000, 80_000, "1x-1.5x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scorer.Score(scoredToken(0.01, tt.marketCap, tt.volume, 48*time.Hour, now), now)
			if result.PotentialGain != tt.want {
				t.Errorf("expected %s, got %s", tt.want, result.PotentialGain)
			}
		})
	}
}
