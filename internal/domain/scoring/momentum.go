package scoring

import (
	"math"

	"github.com/tokenscout/tokenscout/internal/domain"
)

// MomentumScore composes volume acceleration, the momentum cascade, and
// the activity surge into a 0-38 sub-score. When basic is true the
// 15m/30m fields are ignored so stages without expensive data can still
// produce a preliminary score.
func MomentumScore(c *domain.Candidate, basic bool) float64 {
	score := VolumeAcceleration(c, basic)
	score += MomentumCascade(c, basic)
	score += ActivitySurge(c, basic)
	return clamp(score, 0, 38)
}

// VolumeAcceleration measures whether recent volume outruns the trailing
// baseline, 0-15. The short ratio compares 15m volume against half the
// 30m volume; the medium ratio compares 1h against a sixth of 6h.
func VolumeAcceleration(c *domain.Candidate, basic bool) float64 {
	accum := 0.0

	if !basic && known(c.Volume15m) && known(c.Volume30m) && c.Volume30m > 0 {
		shortRatio := c.Volume15m / (c.Volume30m / 2)
		switch {
		case shortRatio > 3:
			accum += 0.15
		case shortRatio > 2:
			accum += 0.12
		case shortRatio > 1.5:
			accum += 0.08
		}
	}

	if known(c.Volume1h) && known(c.Volume6h) && c.Volume6h > 0 {
		mediumRatio := c.Volume1h / (c.Volume6h / 6)
		switch {
		case mediumRatio > 2:
			accum += 0.10
		case mediumRatio > 1.5:
			accum += 0.07
		case mediumRatio > 1.2:
			accum += 0.04
		}
	}

	// accum peaks at 0.25; scale onto 0-15.
	return clamp(accum/0.25*15, 0, 15)
}

var cascadeWeights = []struct {
	weight    float64
	field     func(*domain.Candidate) float64
	short     bool // counts toward short-timeframe agreement
	expensive bool // 15m/30m, absent in basic mode
}{
	{0.30, func(c *domain.Candidate) float64 { return c.PriceChange5m }, true, false},
	{0.25, func(c *domain.Candidate) float64 { return c.PriceChange15m }, true, true},
	{0.20, func(c *domain.Candidate) float64 { return c.PriceChange30m }, true, true},
	{0.15, func(c *domain.Candidate) float64 { return c.PriceChange1h }, false, false},
	{0.06, func(c *domain.Candidate) float64 { return c.PriceChange6h }, false, false},
	{0.04, func(c *domain.Candidate) float64 { return c.PriceChange24h }, false, false},
}

// MomentumCascade aggregates signed price changes across timeframes,
// weighted toward the short end, 0-13. Agreement between at least two
// short timeframes with the same sign earns a bonus; a net-negative
// cascade scores zero rather than going negative.
func MomentumCascade(c *domain.Candidate, basic bool) float64 {
	raw := 0.0
	positives, negatives := 0, 0
	for _, cw := range cascadeWeights {
		if basic && cw.expensive {
			continue
		}
		v := cw.field(c)
		if !knownChange(v) {
			continue
		}
		raw += cw.weight * v
		if cw.short {
			if v > 0 {
				positives++
			} else if v < 0 {
				negatives++
			}
		}
	}

	if raw <= 0 {
		return 0
	}

	// A weighted +10% cascade saturates the base component.
	base := clamp(raw/10, 0, 1) * 10

	if positives >= 2 || negatives >= 2 {
		base += 3
	}
	return clamp(base, 0, 13)
}

// ActivitySurge grades trading activity breadth and whether the
// short-term trade rate beats the 24h average rate, 0-10.
func ActivitySurge(c *domain.Candidate, basic bool) float64 {
	score := 0.0

	type frame struct {
		trades  float64
		minutes float64
		short   bool
	}
	frames := []frame{
		{c.Trades15m, 15, true},
		{c.Trades30m, 30, true},
		{c.Trades1h, 60, false},
	}

	shortRate := 0.0
	rateSamples := 0
	for _, f := range frames {
		if basic && f.short {
			continue
		}
		if known(f.trades) && f.trades > 0 {
			score += 1.5
			shortRate += f.trades / f.minutes
			rateSamples++
		}
	}
	if rateSamples > 0 {
		shortRate /= float64(rateSamples)
	}

	if known(c.UniqueTraders24h) {
		switch {
		case c.UniqueTraders24h > 100:
			score += 1.5
		case c.UniqueTraders24h > 25:
			score += 0.75
		}
	}

	if known(c.Trades24h) && c.Trades24h > 0 && rateSamples > 0 {
		avgRate := c.Trades24h / (24 * 60)
		switch {
		case shortRate >= 2*avgRate:
			score += 4
		case shortRate > avgRate:
			score += 2
		}
	}

	return clamp(score, 0, 10)
}

func known(v float64) bool {
	return domain.Known(v) && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func knownChange(v float64) bool {
	return domain.KnownChange(v) && !math.IsNaN(v) && !math.IsInf(v, 0)
}
