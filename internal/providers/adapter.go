package providers

import (
	"context"
	"time"
)

// FieldSet names the candidate fields an enrichment call should populate.
type FieldSet []string

// Standard field names understood by adapters.
const (
	FieldMarketCap     = "market_cap"
	FieldPrice         = "price"
	FieldLiquidity     = "liquidity"
	FieldVolume24h     = "volume_24h"
	FieldTrades24h     = "trades_24h"
	FieldHolderCount   = "holder_count"
	FieldUniqueTraders = "unique_traders_24h"
	FieldSecurityScore = "security_score"
	FieldDevHolding    = "dev_holding_pct"
	FieldHoneypotRisk  = "honeypot_risk"
)

// PartialRecord is the adapter-normalized slice of candidate fields a
// provider returned for one token. Absent numerics stay at the sentinel.
type PartialRecord struct {
	Provider  string
	FetchedAt time.Time
	Verified  bool // explicit verified or batch response, wins merge ties
	Batch     bool

	MarketCap        float64
	Price            float64
	Liquidity        float64
	Volume24h        float64
	Trades24h        float64
	HolderCount      float64
	UniqueTraders24h float64
	SecurityScore    float64
	DevHoldingPct    float64
	HoneypotRisk     string

	LiquidityLocked  *bool
	VerifiedContract *bool
}

// NewPartialRecord returns a record with every numeric field at the
// Unknown sentinel.
func NewPartialRecord(provider string) PartialRecord {
	return PartialRecord{
		Provider:         provider,
		FetchedAt:        time.Now(),
		MarketCap:        -1,
		Price:            -1,
		Liquidity:        -1,
		Volume24h:        -1,
		Trades24h:        -1,
		HolderCount:      -1,
		UniqueTraders24h: -1,
		SecurityScore:    -1,
		DevHoldingPct:    -1,
	}
}

// Candle is one OHLCV bar, normalized at the adapter boundary to full
// field names regardless of the provider's wire format.
type Candle struct {
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	UnixTime int64   `json:"unix_time"`
}

// Adapter is the contract every external data source implements. Adapters
// own response-shape normalization and signal failures using the error
// classes in this package.
type Adapter interface {
	Name() string

	// BatchFetch returns partial records for as many of the keys as the
	// provider knows about; keys with no data are simply absent.
	BatchFetch(ctx context.Context, keys []string, fields FieldSet) (map[string]PartialRecord, error)

	// SingleFetch returns a record for one key, or ErrNotFound.
	SingleFetch(ctx context.Context, key string, fields FieldSet) (*PartialRecord, error)

	// OHLCVFetch returns up to n most-recent candles for a timeframe
	// such as "15m" or "30m".
	OHLCVFetch(ctx context.Context, key string, timeframe string, n int) ([]Candle, error)
}
