package domain

import "time"

// DiscoveryRecord is the raw record a discovery feed hands the pipeline.
// Only key, symbol, source and discovery time are mandatory; everything
// else is optional and absent fields stay at the sentinel.
type DiscoveryRecord struct {
	TokenKey      string    `json:"token_key"`
	Symbol        string    `json:"symbol"`
	DisplayName   string    `json:"display_name,omitempty"`
	Source        Source    `json:"source"`
	DiscoveryTime time.Time `json:"discovery_time"`

	EstimatedAgeMinutes  *float64 `json:"estimated_age_minutes,omitempty"`
	MarketCap            *float64 `json:"market_cap,omitempty"`
	Price                *float64 `json:"price,omitempty"`
	Liquidity            *float64 `json:"liquidity,omitempty"`
	Volume24h            *float64 `json:"volume_24h,omitempty"`
	Trades24h            *float64 `json:"trades_24h,omitempty"`
	HolderCount          *float64 `json:"holder_count,omitempty"`
	SecurityScore        *float64 `json:"security_score,omitempty"`
	BondingCurveProgress *float64 `json:"bonding_curve_progress,omitempty"`
	HoursSinceGraduation *float64 `json:"hours_since_graduation,omitempty"`
	SOLRaisedCurrent     *float64 `json:"sol_raised_current,omitempty"`
}

// Valid reports whether the mandatory keys are present.
func (r DiscoveryRecord) Valid() bool {
	return r.TokenKey != "" && r.Symbol != "" && r.Source != ""
}

// ToCandidate converts a discovery record into a pipeline candidate.
func (r DiscoveryRecord) ToCandidate() *Candidate {
	c := NewCandidate(r.TokenKey, r.Symbol, r.Source, r.DiscoveryTime)
	c.DisplayName = r.DisplayName

	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.EstimatedAgeMinutes, r.EstimatedAgeMinutes)
	set(&c.MarketCap, r.MarketCap)
	set(&c.Price, r.Price)
	set(&c.Liquidity, r.Liquidity)
	set(&c.Volume24h, r.Volume24h)
	set(&c.Trades24h, r.Trades24h)
	set(&c.HolderCount, r.HolderCount)
	set(&c.SecurityScore, r.SecurityScore)
	set(&c.BondingCurveProgress, r.BondingCurveProgress)
	set(&c.HoursSinceGraduation, r.HoursSinceGraduation)
	set(&c.SOLRaisedCurrent, r.SOLRaisedCurrent)

	c.RefreshQuality()
	return c
}
