// Package snapshot implements a file-backed provider adapter. It serves
// enrichment records and OHLCV candles from a JSON snapshot, which makes
// offline runs and feed replays possible without live connectors.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/providers"
)

// fileRecord mirrors PartialRecord with optional fields, so absent keys
// stay at the sentinel after conversion.
type fileRecord struct {
	Verified bool `json:"verified"`

	MarketCap        *float64 `json:"market_cap"`
	Price            *float64 `json:"price"`
	Liquidity        *float64 `json:"liquidity"`
	Volume24h        *float64 `json:"volume_24h"`
	Trades24h        *float64 `json:"trades_24h"`
	HolderCount      *float64 `json:"holder_count"`
	UniqueTraders24h *float64 `json:"unique_traders_24h"`
	SecurityScore    *float64 `json:"security_score"`
	DevHoldingPct    *float64 `json:"dev_holding_pct"`
	HoneypotRisk     string   `json:"honeypot_risk"`

	LiquidityLocked  *bool `json:"liquidity_locked"`
	VerifiedContract *bool `json:"verified_contract"`
}

// fileFormat is the snapshot wire shape: records by token key, candles by
// token key then timeframe.
type fileFormat struct {
	Records map[string]fileRecord                    `json:"records"`
	Candles map[string]map[string][]providers.Candle `json:"candles"`
}

// Adapter is a read-only providers.Adapter backed by a loaded snapshot.
type Adapter struct {
	name    string
	records map[string]providers.PartialRecord
	candles map[string]map[string][]providers.Candle
}

// Load reads and parses a snapshot file into an adapter named after the
// provider it stands in for.
func Load(name, path string) (*Adapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var file fileFormat
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, providers.Wrap(providers.ErrParse, name, fmt.Sprintf("snapshot %s: %v", path, err))
	}

	a := &Adapter{
		name:    name,
		records: make(map[string]providers.PartialRecord, len(file.Records)),
		candles: file.Candles,
	}
	if a.candles == nil {
		a.candles = make(map[string]map[string][]providers.Candle)
	}

	loadedAt := time.Now()
	for key, fr := range file.Records {
		a.records[key] = fr.toPartial(name, loadedAt)
	}

	log.Info().Str("provider", name).Str("path", path).
		Int("records", len(a.records)).Int("candle_sets", len(a.candles)).
		Msg("snapshot loaded")
	return a, nil
}

func (fr fileRecord) toPartial(provider string, fetchedAt time.Time) providers.PartialRecord {
	rec := providers.NewPartialRecord(provider)
	rec.FetchedAt = fetchedAt
	rec.Verified = fr.Verified
	rec.HoneypotRisk = fr.HoneypotRisk
	rec.LiquidityLocked = fr.LiquidityLocked
	rec.VerifiedContract = fr.VerifiedContract

	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&rec.MarketCap, fr.MarketCap)
	set(&rec.Price, fr.Price)
	set(&rec.Liquidity, fr.Liquidity)
	set(&rec.Volume24h, fr.Volume24h)
	set(&rec.Trades24h, fr.Trades24h)
	set(&rec.HolderCount, fr.HolderCount)
	set(&rec.UniqueTraders24h, fr.UniqueTraders24h)
	set(&rec.SecurityScore, fr.SecurityScore)
	set(&rec.DevHoldingPct, fr.DevHoldingPct)
	return rec
}

func (a *Adapter) Name() string { return a.name }

// BatchFetch returns the snapshot records for as many of the keys as the
// snapshot carries.
func (a *Adapter) BatchFetch(ctx context.Context, keys []string, _ providers.FieldSet) (map[string]providers.PartialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]providers.PartialRecord, len(keys))
	for _, k := range keys {
		if rec, ok := a.records[k]; ok {
			out[k] = rec
		}
	}
	return out, nil
}

// SingleFetch returns the snapshot record for one key, or ErrNotFound.
func (a *Adapter) SingleFetch(ctx context.Context, key string, _ providers.FieldSet) (*providers.PartialRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := a.records[key]
	if !ok {
		return nil, providers.ErrNotFound
	}
	return &rec, nil
}

// OHLCVFetch returns up to n most-recent snapshot candles for a key and
// timeframe, or ErrNotFound when the snapshot has none.
func (a *Adapter) OHLCVFetch(ctx context.Context, key, timeframe string, n int) ([]providers.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candles := a.candles[key][timeframe]
	if len(candles) == 0 {
		return nil, providers.ErrNotFound
	}
	if n > 0 && len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	out := make([]providers.Candle, len(candles))
	copy(out, candles)
	return out, nil
}
