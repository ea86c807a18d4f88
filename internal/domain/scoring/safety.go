package scoring

import (
	"github.com/tokenscout/tokenscout/internal/domain"
)

// SafetyScore composes contract and liquidity safety signals, 0-25.
// A neutral 0.6 base is adjusted by contract facts, then averaged with a
// liquidity-quality factor derived from the liquidity/market-cap ratio.
func SafetyScore(c *domain.Candidate) float64 {
	base := 0.6
	if c.VerifiedContract {
		base += 0.15
	}
	if c.LiquidityLocked {
		base += 0.15
	}
	if domain.Known(c.DevHoldingPct) {
		if c.DevHoldingPct < 5 {
			base += 0.10
		} else if c.DevHoldingPct > 20 {
			base -= 0.20
		}
	}
	switch c.HoneypotRisk {
	case domain.HoneypotLow:
		base += 0.10
	case domain.HoneypotHigh:
		base -= 0.30
	}
	base = clamp(base, 0, 1)

	avg := (base + liquidityQuality(c)) / 2
	return clamp(avg*25, 0, 25)
}

func liquidityQuality(c *domain.Candidate) float64 {
	if !domain.Known(c.Liquidity) || !domain.Known(c.MarketCap) || c.MarketCap <= 0 {
		return 0.3
	}
	ratio := clamp(c.Liquidity/c.MarketCap, 0, 1)
	switch {
	case ratio > 0.3:
		return 1.0
	case ratio > 0.1:
		return 0.8
	case ratio > 0.05:
		return 0.6
	default:
		return 0.3
	}
}

// ValidationBonus rewards cross-platform attestation, 0-12. Tokens seen
// by several independent sources or providers are less likely to be
// single-feed noise; premium providers add up to 4 more points.
func ValidationBonus(c *domain.Candidate) float64 {
	score := 0.0
	switch {
	case c.Attestations >= 4:
		score = 8
	case c.Attestations >= 2:
		score = 5
	case c.Attestations >= 1:
		score = 2
	}

	premium := c.PremiumProviders
	if premium > 2 {
		premium = 2
	}
	score += float64(premium) * 2

	return clamp(score, 0, 12)
}
