package scoring

import (
	"github.com/tokenscout/tokenscout/internal/domain"
)

// PlatformScore grades where a token is in its launch lifecycle, 0-50.
// Younger tokens on hotter launch platforms score higher; the whole sum
// decays with age so stale candidates cannot ride an old bonus.
func PlatformScore(c *domain.Candidate, ageMinutes float64) float64 {
	score := sourceBase(c.Source)
	score += velocityBonus(usdPerHour(c, ageMinutes))
	score += progressionBonus(c)
	score += ageBonus(ageMinutes)
	score += graduationTimingBonus(c)

	score *= ageDecay(ageMinutes)
	return clamp(score, 0, 50)
}

func sourceBase(s domain.Source) float64 {
	switch s {
	case domain.SourceTrending:
		return 6
	case domain.SourceGraduated:
		return 8
	case domain.SourceBonding:
		return 15
	case domain.SourceEcosystemBonding:
		return 12
	default:
		return 4
	}
}

// usdPerHour estimates capital flow rate from the 24h volume, prorated
// when the token is younger than a day.
func usdPerHour(c *domain.Candidate, ageMinutes float64) float64 {
	if !domain.Known(c.Volume24h) || c.Volume24h <= 0 {
		return 0
	}
	hours := 24.0
	if domain.Known(ageMinutes) && ageMinutes > 0 && ageMinutes < 24*60 {
		hours = ageMinutes / 60
	}
	return c.Volume24h / hours
}

func velocityBonus(usdHr float64) float64 {
	switch {
	case usdHr >= 5000:
		return 12
	case usdHr >= 2000:
		return 10
	case usdHr >= 500:
		return 6
	case usdHr >= 100:
		return 3
	default:
		return 0
	}
}

// progressionBonus rewards advancement through the launch funnel, 0-10.
// Bonding-curve sources grade on curve progress; ecosystem launches grade
// on SOL raised. A graduated token that still reports its final curve
// progress grades on that.
func progressionBonus(c *domain.Candidate) float64 {
	if domain.Known(c.BondingCurveProgress) {
		p := c.BondingCurveProgress
		switch {
		case p >= 95:
			return 10
		case p >= 85:
			return 8
		case p >= 70:
			return 6
		case p >= 50:
			return 4
		case p >= 25:
			return 2
		}
		return 0
	}
	if c.Source == domain.SourceEcosystemBonding && domain.Known(c.SOLRaisedCurrent) {
		sol := c.SOLRaisedCurrent
		switch {
		case sol >= 100:
			return 10
		case sol >= 50:
			return 7
		case sol >= 20:
			return 4
		case sol >= 5:
			return 2
		}
	}
	return 0
}

func ageBonus(ageMinutes float64) float64 {
	if !domain.Known(ageMinutes) {
		return 0
	}
	switch {
	case ageMinutes <= 5:
		return 6
	case ageMinutes <= 15:
		return 5
	case ageMinutes <= 30:
		return 4
	case ageMinutes <= 60:
		return 3
	case ageMinutes <= 180:
		return 1
	default:
		return 0
	}
}

// graduationTimingBonus shapes entries around the graduation cliff: the
// 50-80% window is the sweet spot, near-graduation is crowded and priced
// in, so it is penalized.
func graduationTimingBonus(c *domain.Candidate) float64 {
	if !domain.Known(c.BondingCurveProgress) {
		return 0
	}
	p := c.BondingCurveProgress
	switch {
	case p >= 85:
		return -3
	case p > 80:
		return 1
	case p >= 50:
		return 4
	default:
		return 0
	}
}

func ageDecay(ageMinutes float64) float64 {
	if !domain.Known(ageMinutes) {
		return 1.0
	}
	switch {
	case ageMinutes <= 60:
		return 1.0
	case ageMinutes <= 6*60:
		return 0.95
	case ageMinutes <= 24*60:
		return 0.85
	default:
		return 0.70
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
