package domain

import (
	"strings"
	"time"
)

// Unknown is the sentinel for numeric fields that no source has supplied.
// All market and velocity fields default to it; scoring treats it as zero
// contribution and merge logic treats it as "absent".
const Unknown = -1.0

// Known reports whether a numeric field carries real data.
func Known(v float64) bool {
	return v >= 0
}

// UnknownChange is the sentinel for signed percentage fields, where
// negative values are legitimate. Far outside any plausible price move.
const UnknownChange = -1e9

// KnownChange reports whether a signed percentage field carries real data.
func KnownChange(v float64) bool {
	return v > UnknownChange/2
}

// Source identifies which discovery feed produced a candidate.
type Source string

const (
	SourceTrending         Source = "trending"
	SourceGraduated        Source = "graduated"
	SourceBonding          Source = "bonding"
	SourceEcosystemBonding Source = "ecosystem_bonding"
	SourceLiveEvent        Source = "live_event"
)

// Priority orders sources for tie-breaking at triage.
// Higher wins: bonding > graduated > trending > ecosystem_bonding.
func (s Source) Priority() int {
	switch s {
	case SourceBonding:
		return 4
	case SourceGraduated:
		return 3
	case SourceTrending:
		return 2
	case SourceEcosystemBonding:
		return 1
	default:
		return 0
	}
}

// Stage marks the furthest pipeline stage a candidate has reached.
type Stage int

const (
	StageDiscovered Stage = iota
	StageTriage
	StageEnhanced
	StageValidated
	StageVelocity
)

func (s Stage) String() string {
	switch s {
	case StageDiscovered:
		return "discovered"
	case StageTriage:
		return "triage"
	case StageEnhanced:
		return "enhanced"
	case StageValidated:
		return "validated"
	case StageVelocity:
		return "velocity"
	default:
		return "unknown"
	}
}

// HoneypotRisk is the adapter-normalized sellability assessment.
type HoneypotRisk string

const (
	HoneypotLow     HoneypotRisk = "low"
	HoneypotMedium  HoneypotRisk = "medium"
	HoneypotHigh    HoneypotRisk = "high"
	HoneypotUnknown HoneypotRisk = "unknown"
)

// DataQuality flags how trustworthy a candidate's fields are.
type DataQuality string

const (
	QualityHigh    DataQuality = "high"    // market cap known and non-zero
	QualityLow     DataQuality = "low"     // enrichment failed or market cap absent
	QualityPartial DataQuality = "partial" // stage-4 fetch cancelled or failed mid-cycle
)

// Candidate is the single record flowing through the pipeline.
type Candidate struct {
	// Identity
	TokenKey    string `json:"token_key"`
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name,omitempty"`
	Source      Source `json:"source"`

	// Age
	DiscoveryTime       time.Time `json:"discovery_time"`
	EstimatedAgeMinutes float64   `json:"estimated_age_minutes"`

	// Market snapshot
	MarketCap        float64 `json:"market_cap"`
	Price            float64 `json:"price"`
	Liquidity        float64 `json:"liquidity"`
	Volume24h        float64 `json:"volume_24h"`
	Trades24h        float64 `json:"trades_24h"`
	HolderCount      float64 `json:"holder_count"`
	UniqueTraders24h float64 `json:"unique_traders_24h"`

	// Source-specific
	BondingCurveProgress  float64 `json:"bonding_curve_progress"`
	HoursSinceGraduation  float64 `json:"hours_since_graduation"`
	SOLRaisedCurrent      float64 `json:"sol_raised_current"`

	// Short-timeframe velocity, populated only at stage 4
	Volume5m       float64 `json:"volume_5m"`
	Volume15m      float64 `json:"volume_15m"`
	Volume30m      float64 `json:"volume_30m"`
	Volume1h       float64 `json:"volume_1h"`
	Volume6h       float64 `json:"volume_6h"`
	PriceChange5m  float64 `json:"price_change_5m"`
	PriceChange15m float64 `json:"price_change_15m"`
	PriceChange30m float64 `json:"price_change_30m"`
	PriceChange1h  float64 `json:"price_change_1h"`
	PriceChange6h  float64 `json:"price_change_6h"`
	PriceChange24h float64 `json:"price_change_24h"`
	Trades5m       float64 `json:"trades_5m"`
	Trades15m      float64 `json:"trades_15m"`
	Trades30m      float64 `json:"trades_30m"`
	Trades1h       float64 `json:"trades_1h"`

	// Security
	SecurityScore    float64      `json:"security_score"`
	DevHoldingPct    float64      `json:"dev_holding_pct"`
	HoneypotRisk     HoneypotRisk `json:"honeypot_risk"`
	LiquidityLocked  bool         `json:"liquidity_locked"`
	VerifiedContract bool         `json:"verified_contract"`

	// Cross-provider attestation, maintained by enrichment
	Attestations     int `json:"attestations"`
	PremiumProviders int `json:"premium_providers"`

	// Pipeline state
	DiscoveryScore  float64         `json:"discovery_score"`
	EnhancedScore   float64         `json:"enhanced_score"`
	ValidationScore float64         `json:"validation_score"`
	FinalScore      float64         `json:"final_score"`
	Stage           Stage           `json:"stage"`
	EnrichmentTime  time.Time       `json:"enrichment_timestamp,omitempty"`
	DataQuality     DataQuality     `json:"data_quality"`
	Confidence      ConfidenceLevel `json:"confidence,omitempty"`
	Breakdown       *ScoreBreakdown `json:"breakdown,omitempty"`
}

// ScoreBreakdown carries the weighted sub-scores behind a final score.
type ScoreBreakdown struct {
	Platform      float64 `json:"platform"`
	Momentum      float64 `json:"momentum"`
	Safety        float64 `json:"safety"`
	Validation    float64 `json:"validation"`
	Basic         bool    `json:"basic"`
	ConfidenceAdj float64 `json:"confidence_adj"`
}

// NewCandidate builds a candidate from a discovery record with all
// optional numeric fields at the Unknown sentinel.
func NewCandidate(tokenKey, symbol string, source Source, discoveredAt time.Time) *Candidate {
	c := &Candidate{
		TokenKey:      tokenKey,
		Symbol:        symbol,
		Source:        source,
		DiscoveryTime: discoveredAt,
		HoneypotRisk:  HoneypotUnknown,
		DataQuality:   QualityLow,
	}
	c.EstimatedAgeMinutes = Unknown
	c.MarketCap = Unknown
	c.Price = Unknown
	c.Liquidity = Unknown
	c.Volume24h = Unknown
	c.Trades24h = Unknown
	c.HolderCount = Unknown
	c.UniqueTraders24h = Unknown
	c.BondingCurveProgress = Unknown
	c.HoursSinceGraduation = Unknown
	c.SOLRaisedCurrent = Unknown
	c.Volume5m = Unknown
	c.Volume15m = Unknown
	c.Volume30m = Unknown
	c.Volume1h = Unknown
	c.Volume6h = Unknown
	c.PriceChange5m = UnknownChange
	c.PriceChange15m = UnknownChange
	c.PriceChange30m = UnknownChange
	c.PriceChange1h = UnknownChange
	c.PriceChange6h = UnknownChange
	c.PriceChange24h = UnknownChange
	c.Trades5m = Unknown
	c.Trades15m = Unknown
	c.Trades30m = Unknown
	c.Trades1h = Unknown
	c.SecurityScore = Unknown
	c.DevHoldingPct = Unknown
	return c
}

// AgeMinutes resolves the best available age estimate. Explicit estimates
// win, then graduation timing, then time since discovery. Returns Unknown
// when nothing is available.
func (c *Candidate) AgeMinutes(now time.Time) float64 {
	if Known(c.EstimatedAgeMinutes) {
		return c.EstimatedAgeMinutes
	}
	if Known(c.HoursSinceGraduation) {
		return c.HoursSinceGraduation * 60
	}
	if !c.DiscoveryTime.IsZero() {
		return now.Sub(c.DiscoveryTime).Minutes()
	}
	return Unknown
}

// RefreshQuality recomputes the data_quality flag: high iff market cap is
// known and non-zero. Partial is sticky once set by the controller.
func (c *Candidate) RefreshQuality() {
	if c.DataQuality == QualityPartial {
		return
	}
	if Known(c.MarketCap) && c.MarketCap > 0 {
		c.DataQuality = QualityHigh
	} else {
		c.DataQuality = QualityLow
	}
}

// ValidAddressShape reports whether the token key looks like a real
// on-chain address: base58 alphabet, 32-44 chars.
func ValidAddressShape(key string) bool {
	if len(key) < 32 || len(key) > 44 {
		return false
	}
	for _, r := range key {
		switch {
		case r >= '1' && r <= '9':
		case r >= 'A' && r <= 'H':
		case r >= 'J' && r <= 'N':
		case r >= 'P' && r <= 'Z':
		case r >= 'a' && r <= 'k':
		case r >= 'm' && r <= 'z':
		default:
			return false
		}
	}
	return true
}

var placeholderSymbols = map[string]struct{}{
	"token": {}, "test": {}, "null": {}, "unknown": {}, "tbd": {}, "xxx": {},
}

// ReasonableSymbol reports whether the ticker symbol looks legitimate:
// non-empty, at most 10 chars, not an obvious placeholder.
func ReasonableSymbol(symbol string) bool {
	s := strings.TrimSpace(symbol)
	if s == "" || len(s) > 10 {
		return false
	}
	_, placeholder := placeholderSymbols[strings.ToLower(s)]
	return !placeholder
}
