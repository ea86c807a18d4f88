package pipeline

import (
	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/domain/scoring"
)

// Stage3Config bounds market validation. MaxOutput is the expensive-stage
// width; the controller narrows it further under breaker pressure.
type Stage3Config struct {
	MaxOutput int     `yaml:"max_output"`
	Threshold float64 `yaml:"threshold"`
}

// DefaultStage3Config returns the validation defaults: threshold 35,
// at most 10 promoted to the expensive stage.
func DefaultStage3Config() Stage3Config {
	return Stage3Config{MaxOutput: 10, Threshold: 35}
}

// Stage3Validate scores market cap, liquidity, 24h volume and trade count
// on the validation rubric. No short-timeframe data is fetched here; the
// output width is the number of candidates that will cost real money.
func Stage3Validate(cands []*domain.Candidate, cfg Stage3Config, maxOutput int) []*domain.Candidate {
	if maxOutput <= 0 || maxOutput > cfg.MaxOutput {
		maxOutput = cfg.MaxOutput
	}

	var survivors []*domain.Candidate
	for _, c := range cands {
		c.ValidationScore = ValidationScore(c)
		c.Stage = domain.StageValidated
		if c.ValidationScore >= cfg.Threshold {
			survivors = append(survivors, c)
		}
	}

	scoring.Rank(survivors, func(c *domain.Candidate) float64 { return c.ValidationScore })
	if len(survivors) > maxOutput {
		survivors = survivors[:maxOutput]
	}

	log.Debug().Int("in", len(cands)).Int("out", len(survivors)).Int("width", maxOutput).
		Msg("stage 3 market validation complete")
	return survivors
}

// ValidationScore is the weighted market-validation rubric, 0-100.
// Market cap 30%, liquidity 25%, 24h volume 25%, trading activity 20%.
func ValidationScore(c *domain.Candidate) float64 {
	score := 0.0

	if domain.Known(c.MarketCap) {
		switch {
		case c.MarketCap >= 50_000 && c.MarketCap <= 5_000_000:
			score += 30
		case c.MarketCap > 5_000_000:
			score += 15
		case c.MarketCap >= 10_000:
			score += 25
		}
	}

	if domain.Known(c.Liquidity) {
		switch {
		case c.Liquidity > 100_000:
			score += 25
		case c.Liquidity > 50_000:
			score += 20
		case c.Liquidity > 10_000:
			score += 10
		}
	}

	if domain.Known(c.Volume24h) {
		switch {
		case c.Volume24h > 500_000:
			score += 25
		case c.Volume24h > 100_000:
			score += 20
		case c.Volume24h > 10_000:
			score += 10
		}
	}

	if domain.Known(c.Trades24h) {
		switch {
		case c.Trades24h > 1000:
			score += 20
		case c.Trades24h > 500:
			score += 15
		case c.Trades24h > 100:
			score += 10
		}
	}

	return score
}
