package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/domain/scoring"
	"github.com/tokenscout/tokenscout/internal/providers"
)

// Stage4Config bounds velocity scoring.
type Stage4Config struct {
	Parallelism int  `yaml:"parallelism"`
	Candles     int  `yaml:"candles"`
	ForceBasic  bool `yaml:"force_basic"` // testing flag: skip expensive fetches
}

// DefaultStage4Config returns the velocity-stage defaults: three workers,
// twenty candles per timeframe.
func DefaultStage4Config() Stage4Config {
	return Stage4Config{Parallelism: 3, Candles: 20}
}

// velocity timeframes fetched for each survivor.
var stage4Timeframes = []string{"15m", "30m"}

// Stage4Velocity fetches expensive short-timeframe OHLCV for the
// validation survivors and produces the final conviction score with the
// age-aware confidence adjustment. Candidates whose fetch was cancelled
// keep their validation score as final with a partial-quality flag.
func Stage4Velocity(ctx context.Context, cands []*domain.Candidate, planner *providers.Planner, adapter providers.Adapter, cost *CostTracker, cfg Stage4Config, now time.Time) []*domain.Candidate {
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = 3
	}
	candles := cfg.Candles
	if candles <= 0 {
		candles = 20
	}

	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for _, c := range cands {
		c.Stage = domain.StageVelocity

		if cfg.ForceBasic || adapter == nil {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(c *domain.Candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			fetchVelocity(ctx, c, planner, adapter, cost, candles)
		}(c)
	}
	wg.Wait()

	for _, c := range cands {
		scoreStage4(c, now, cfg.ForceBasic)
	}

	scoring.Rank(cands, finalRank)
	log.Debug().Int("scored", len(cands)).Msg("stage 4 velocity scoring complete")
	return cands
}

// fetchVelocity pulls both timeframes for one candidate and derives the
// short-timeframe fields. Each timeframe is one expensive call.
func fetchVelocity(ctx context.Context, c *domain.Candidate, planner *providers.Planner, adapter providers.Adapter, cost *CostTracker, n int) {
	complete := true
	for _, tf := range stage4Timeframes {
		cost.ExpensiveCallsMade.Add(1)
		candles, err := planner.FetchOHLCV(ctx, adapter, c.TokenKey, tf, n)
		if err != nil {
			complete = false
			switch {
			case errors.Is(err, providers.ErrCancelled), errors.Is(err, providers.ErrCircuitOpen):
				log.Debug().Str("token", c.TokenKey).Str("timeframe", tf).Err(err).
					Msg("velocity fetch aborted")
			case errors.Is(err, providers.ErrParse):
				cost.ParseErrors.Add(1)
			default:
				log.Debug().Str("token", c.TokenKey).Str("timeframe", tf).Err(err).
					Msg("velocity fetch failed")
			}
			continue
		}
		applyCandles(c, tf, candles)
	}
	if !complete {
		c.DataQuality = domain.QualityPartial
	}
}

// applyCandles derives velocity fields from raw OHLCV: volume as the mean
// of the latest three candles, price change as last close vs previous,
// and a volume-derived trade-count estimate. The 15m frame additionally
// yields a 5m estimate from the latest candle, so very young tokens can
// demonstrate early activity without a dedicated 5m fetch.
func applyCandles(c *domain.Candidate, timeframe string, candles []providers.Candle) {
	if len(candles) == 0 {
		return
	}

	volume := meanVolume(candles, 3)
	change := lastChangePct(candles)

	// Rough size of a typical early-token fill, used to estimate trade
	// counts from volume when the provider reports none.
	const estTradeSizeUSD = 250.0
	trades := volume / estTradeSizeUSD

	switch timeframe {
	case "15m":
		c.Volume15m = volume
		c.PriceChange15m = change
		c.Trades15m = trades

		// One third of the latest candle approximates the trailing 5m
		// slice; the intra-candle drift prorates the same way.
		last := candles[len(candles)-1]
		c.Volume5m = last.Volume / 3
		c.Trades5m = c.Volume5m / estTradeSizeUSD
		if last.Open > 0 {
			c.PriceChange5m = (last.Close - last.Open) / last.Open * 100 / 3
		}
	case "30m":
		c.Volume30m = volume
		c.PriceChange30m = change
		c.Trades30m = trades
	}
}

func meanVolume(candles []providers.Candle, n int) float64 {
	if n > len(candles) {
		n = len(candles)
	}
	sum := 0.0
	for _, cd := range candles[len(candles)-n:] {
		sum += cd.Volume
	}
	return sum / float64(n)
}

func lastChangePct(candles []providers.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	prev := candles[len(candles)-2].Close
	last := candles[len(candles)-1].Close
	if prev <= 0 {
		return 0
	}
	return (last - prev) / prev * 100
}

// scoreStage4 computes the final conviction score. A candidate whose
// velocity fetch was cut off keeps its validation score, ranked below any
// complete stage-4 score.
func scoreStage4(c *domain.Candidate, now time.Time, forceBasic bool) {
	if c.DataQuality == domain.QualityPartial {
		c.FinalScore = c.ValidationScore
		return
	}

	score, breakdown := scoring.Composite(c, now, forceBasic)

	conf := domain.AssessConfidence(c, c.AgeMinutes(now))
	c.Confidence = conf.Level
	breakdown.ConfidenceAdj = conf.Multiplier

	score *= conf.Multiplier
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	c.FinalScore = score
	c.Breakdown = &breakdown
}

// finalRank orders complete stage-4 scores ahead of partial fallbacks,
// then by final score.
func finalRank(c *domain.Candidate) float64 {
	if c.DataQuality == domain.QualityPartial {
		// partial scores rank strictly below any complete score
		return c.FinalScore - 1000
	}
	return c.FinalScore
}
