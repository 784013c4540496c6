package pumpfun

// Coin is a token payload from the pump.fun frontend API.
type Coin struct {
	Mint                 string  `json:"mint"`
	Name                 string  `json:"name"`
	Symbol               string  `json:"symbol"`
	Description          string  `json:"description"`
	ImageURI             string  `json:"image_uri"`
	MetadataURI          string  `json:"metadata_uri"`
	Twitter              string  `json:"twitter"`
	Telegram             string  `json:"telegram"`
	Website              string  `json:"website"`
	Creator              string  `json:"creator"`
	CreatedTimestamp     int64   `json:"created_timestamp"` // Unix milliseconds
	VirtualSolReserves   float64 `json:"virtual_sol_reserves"`   // lamports
	VirtualTokenReserves float64 `json:"virtual_token_reserves"` // base units (6 decimals)
	TotalSupply          float64 `json:"total_supply"`           // base units (6 decimals)
	MarketCapSol         float64 `json:"market_cap"`
	UsdMarketCap         float64 `json:"usd_market_cap"`
	Complete             bool    `json:"complete"` // bonding curve graduated
	NSFW                 bool    `json:"nsfw"`
}

// NewTokenEvent is a token-creation event from the PumpPortal feed.
// Reserve fields are denominated in whole SOL / whole tokens, unlike
// the frontend API payload.
type NewTokenEvent struct {
	Signature             string  `json:"signature"`
	Mint                  string  `json:"mint"`
	TraderPublicKey       string  `json:"traderPublicKey"`
	TxType                string  `json:"txType"` // "create" for launches
	InitialBuy            float64 `json:"initialBuy"`
	SolAmount             float64 `json:"solAmount"`
	BondingCurveKey       string  `json:"bondingCurveKey"`
	VTokensInBondingCurve float64 `json:"vTokensInBondingCurve"`
	VSolInBondingCurve    float64 `json:"vSolInBondingCurve"`
	MarketCapSol          float64 `json:"marketCapSol"`
	Name                  string  `json:"name"`
	Symbol                string  `json:"symbol"`
	URI                   string  `json:"uri"`
	Pool                  string  `json:"pool"`
}
