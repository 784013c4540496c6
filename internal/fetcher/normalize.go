package fetcher

import (
	"math"
	"strings"
	"time"

	"pumpwatch/internal/dexscreener"
	"pumpwatch/internal/domain"
	"pumpwatch/internal/enrichment"
	"pumpwatch/internal/pumpfun"
)

// DefaultSolPriceUsd is the fixed SOL reference price used to convert
// bonding-curve reserves into USD figures. A placeholder, not an oracle read.
const DefaultSolPriceUsd = 150.0

const (
	lamportsPerSol = 1e9
	// pump.fun mints use 6 decimals.
	tokenBaseUnits = 1e6
)

// recordFromCoin normalizes a pump.fun frontend payload. Reserve fields
// arrive in lamports and token base units.
func recordFromCoin(c *pumpfun.Coin, solUsd float64, now time.Time) *domain.TokenRecord {
	price := 0.0
	if c.VirtualTokenReserves > 0 {
		price = (c.VirtualSolReserves / lamportsPerSol) / (c.VirtualTokenReserves / tokenBaseUnits) * solUsd
	}

	marketCap := c.UsdMarketCap
	if marketCap <= 0 && c.MarketCapSol > 0 {
		marketCap = c.MarketCapSol * solUsd
	}
	if marketCap <= 0 && c.TotalSupply > 0 {
		marketCap = price * c.TotalSupply / tokenBaseUnits
	}

	createdAt := c.CreatedTimestamp
	if createdAt <= 0 {
		createdAt = now.UnixMilli()
	}

	return &domain.TokenRecord{
		Address:     c.Mint,
		Name:        strings.TrimSpace(c.Name),
		Symbol:      strings.TrimSpace(c.Symbol),
		Description: optional(c.Description),
		ImageURL:    optional(enrichment.GatewayURL(c.ImageURI)),
		Website:     optional(c.Website),
		Twitter:     optional(c.Twitter),
		Telegram:    optional(c.Telegram),
		MetadataURI: optional(c.MetadataURI),
		PriceUsd:    clampMetric(price),
		MarketCap:   clampMetric(marketCap),
		Volume24h:   0, // the frontend payload carries no volume; filled by snapshot refresh
		CreatedAt:   createdAt,
		UpdatedAt:   now.UnixMilli(),
	}
}

// recordFromEvent normalizes a PumpPortal new-token event. Unlike the
// frontend payload its reserves are whole SOL and whole tokens.
func recordFromEvent(e *pumpfun.NewTokenEvent, solUsd float64, now time.Time) *domain.TokenRecord {
	price := 0.0
	if e.VTokensInBondingCurve > 0 {
		price = e.VSolInBondingCurve / e.VTokensInBondingCurve * solUsd
	}

	return &domain.TokenRecord{
		Address:     e.Mint,
		Name:        strings.TrimSpace(e.Name),
		Symbol:      strings.TrimSpace(e.Symbol),
		MetadataURI: optional(e.URI),
		PriceUsd:    clampMetric(price),
		MarketCap:   clampMetric(e.MarketCapSol * solUsd),
		Volume24h:   0,
		CreatedAt:   now.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
	}
}

// recordFromPair normalizes a DexScreener pair into a token record.
func recordFromPair(p *dexscreener.Pair, now time.Time) *domain.TokenRecord {
	marketCap := p.MarketCap
	if marketCap <= 0 {
		marketCap = p.FDV
	}

	createdAt := p.PairCreatedAt
	if createdAt <= 0 {
		createdAt = now.UnixMilli()
	}

	rec := &domain.TokenRecord{
		Address:   p.BaseToken.Address,
		Name:      strings.TrimSpace(p.BaseToken.Name),
		Symbol:    strings.TrimSpace(p.BaseToken.Symbol),
		PriceUsd:  clampMetric(p.Price()),
		MarketCap: clampMetric(marketCap),
		Volume24h: clampMetric(p.Volume.H24),
		CreatedAt: createdAt,
		UpdatedAt: now.UnixMilli(),
	}
	applyPairInfo(rec, p.Info)
	return rec
}

// applyPairSnapshot overwrites the market snapshot fields from a fresher pair.
func applyPairSnapshot(rec *domain.TokenRecord, p *dexscreener.Pair) {
	rec.PriceUsd = clampMetric(p.Price())
	rec.Volume24h = clampMetric(p.Volume.H24)

	marketCap := p.MarketCap
	if marketCap <= 0 {
		marketCap = p.FDV
	}
	rec.MarketCap = clampMetric(marketCap)

	applyPairInfo(rec, p.Info)
}

// applyPairInfo copies image and social links off the pair, never clearing
// values the record already has.
func applyPairInfo(rec *domain.TokenRecord, info *dexscreener.PairInfo) {
	if info == nil {
		return
	}
	if rec.ImageURL == nil {
		rec.ImageURL = optional(info.ImageURL)
	}
	if rec.Website == nil && len(info.Websites) > 0 {
		rec.Website = optional(info.Websites[0].URL)
	}
	for _, social := range info.Socials {
		switch strings.ToLower(social.Type) {
		case "twitter":
			if rec.Twitter == nil {
				rec.Twitter = optional(social.URL)
			}
		case "telegram":
			if rec.Telegram == nil {
				rec.Telegram = optional(social.URL)
			}
		}
	}
}

// applyDocument merges an off-chain metadata document into the record.
func applyDocument(rec *domain.TokenRecord, doc *enrichment.Document) {
	if doc == nil {
		return
	}
	if rec.Name == "" {
		rec.Name = strings.TrimSpace(doc.Name)
	}
	if rec.Symbol == "" {
		rec.Symbol = strings.TrimSpace(doc.Symbol)
	}
	if v := optional(doc.Description); v != nil {
		rec.Description = v
	}
	if v := optional(enrichment.GatewayURL(doc.Image)); v != nil {
		rec.ImageURL = v
	}
	if v := optional(doc.Twitter); v != nil {
		rec.Twitter = v
	}
	if v := optional(doc.Telegram); v != nil {
		rec.Telegram = v
	}
	if v := optional(doc.Website); v != nil {
		rec.Website = v
	}
}

// fillIdentity backfills missing name/symbol from the address so that
// otherwise valid payloads survive validation.
func fillIdentity(rec *domain.TokenRecord) {
	if strings.TrimSpace(rec.Symbol) == "" && len(rec.Address) >= 4 {
		rec.Symbol = strings.ToUpper(rec.Address[:4])
	}
	if strings.TrimSpace(rec.Name) == "" {
		rec.Name = rec.Symbol
	}
}

// clampMetric maps NaN, infinities and negatives to 0.
func clampMetric(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
