package pipeline

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/domain/scoring"
)

// Stage1Config bounds the triage stage.
type Stage1Config struct {
	MaxOutput  int             `yaml:"max_output"`
	Thresholds map[string]float64 `yaml:"thresholds"`
}

// DefaultStage1Config returns the triage defaults: per-source admission
// thresholds and a cap of 35 survivors.
func DefaultStage1Config() Stage1Config {
	return Stage1Config{
		MaxOutput: 35,
		Thresholds: map[string]float64{
			string(domain.SourceBonding):   30,
			string(domain.SourceGraduated): 25,
			string(domain.SourceTrending):  30,
		},
	}
}

func (c Stage1Config) threshold(s domain.Source) float64 {
	if t, ok := c.Thresholds[string(s)]; ok {
		return t
	}
	return 20
}

// Stage1Triage scores candidates on data already present from discovery;
// it makes no outbound calls. Survivors carry their discovery score and
// advance to the enhanced stage.
func Stage1Triage(cands []*domain.Candidate, cfg Stage1Config, now time.Time) []*domain.Candidate {
	var survivors []*domain.Candidate
	for _, c := range cands {
		c.DiscoveryScore = DiscoveryScore(c, now)
		c.Stage = domain.StageTriage
		c.RefreshQuality()
		if c.DiscoveryScore >= cfg.threshold(c.Source) {
			survivors = append(survivors, c)
		}
	}

	// Rank by score with source priority then token key as tie-breakers.
	scoring.Rank(survivors, func(c *domain.Candidate) float64 {
		return c.DiscoveryScore + float64(c.Source.Priority())/10
	})

	if cfg.MaxOutput > 0 && len(survivors) > cfg.MaxOutput {
		survivors = survivors[:cfg.MaxOutput]
	}

	log.Debug().Int("in", len(cands)).Int("out", len(survivors)).Msg("stage 1 triage complete")
	return survivors
}

// DiscoveryScore is the source-aware triage score over discovery fields.
func DiscoveryScore(c *domain.Candidate, now time.Time) float64 {
	score := 0.0

	switch c.Source {
	case domain.SourceGraduated:
		score += graduatedFreshness(c)
		score += graduatedMarketCap(c)
		score += graduatedLiquidity(c)
	case domain.SourceBonding:
		score += bondingProximity(c)
		score += bondingMarketCap(c)
	case domain.SourceTrending:
		// trending lists are already market-validated
		score += 30
	case domain.SourceEcosystemBonding:
		score += 20
		if domain.Known(c.SOLRaisedCurrent) && c.SOLRaisedCurrent > 50 {
			score += 10
		}
	}

	if domain.ValidAddressShape(c.TokenKey) {
		score += 5
	}
	if domain.ReasonableSymbol(c.Symbol) {
		score += 3
	}
	score += discoveryAgeBonus(c.AgeMinutes(now))

	return score
}

func graduatedFreshness(c *domain.Candidate) float64 {
	if !domain.Known(c.HoursSinceGraduation) {
		return 0
	}
	switch {
	case c.HoursSinceGraduation <= 1:
		return 40
	case c.HoursSinceGraduation <= 6:
		return 25
	case c.HoursSinceGraduation <= 12:
		return 15
	default:
		return 0
	}
}

func graduatedMarketCap(c *domain.Candidate) float64 {
	if !domain.Known(c.MarketCap) {
		return 0
	}
	switch {
	case c.MarketCap >= 50_000 && c.MarketCap <= 2_000_000:
		return 20
	case c.MarketCap > 2_000_000:
		return 5
	case c.MarketCap >= 10_000:
		return 15
	default:
		return 0
	}
}

func graduatedLiquidity(c *domain.Candidate) float64 {
	if !domain.Known(c.Liquidity) {
		return 0
	}
	switch {
	case c.Liquidity > 50_000:
		return 15
	case c.Liquidity > 10_000:
		return 10
	case c.Liquidity > 1_000:
		return 5
	default:
		return 0
	}
}

func bondingProximity(c *domain.Candidate) float64 {
	if !domain.Known(c.BondingCurveProgress) {
		return 0
	}
	p := c.BondingCurveProgress
	switch {
	case p >= 95:
		return 50
	case p >= 90:
		return 35
	case p >= 85:
		return 25
	case p >= 75:
		return 15
	case p >= 50:
		return 10
	default:
		return 0
	}
}

func bondingMarketCap(c *domain.Candidate) float64 {
	if !domain.Known(c.MarketCap) || c.MarketCap <= 0 {
		return 0
	}
	switch {
	case c.MarketCap >= 5_000 && c.MarketCap <= 500_000:
		return 15
	case c.MarketCap < 5_000:
		return 10
	default:
		return 0
	}
}

func discoveryAgeBonus(ageMinutes float64) float64 {
	if !domain.Known(ageMinutes) {
		return 0
	}
	switch {
	case ageMinutes <= 60:
		return 8
	case ageMinutes <= 360:
		return 5
	case ageMinutes <= 1440:
		return 2
	default:
		return 0
	}
}
