package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tokenscout/tokenscout/internal/domain"
)

// Composition weights. Each sub-score is normalized by its own maximum
// before weighting, so the final score lands on a 0-100 scale.
const (
	weightPlatform   = 0.40
	weightMomentum   = 0.30
	weightSafety     = 0.20
	weightValidation = 0.10

	maxPlatform   = 50.0
	maxMomentum   = 38.0
	maxSafety     = 25.0
	maxValidation = 12.0
)

// Composite computes the conviction score for a candidate. With basic
// set, the 15m/30m inputs are ignored; stages 2 and 3 use that variant to
// produce preliminary scores without expensive data.
func Composite(c *domain.Candidate, now time.Time, basic bool) (float64, domain.ScoreBreakdown) {
	age := c.AgeMinutes(now)

	platform := PlatformScore(c, age)
	momentum := MomentumScore(c, basic)
	safety := SafetyScore(c)
	validation := ValidationBonus(c)

	total := platform/maxPlatform*weightPlatform*100 +
		momentum/maxMomentum*weightMomentum*100 +
		safety/maxSafety*weightSafety*100 +
		validation/maxValidation*weightValidation*100

	total = clamp(total, 0, 100)

	return total, domain.ScoreBreakdown{
		Platform:      platform,
		Momentum:      momentum,
		Safety:        safety,
		Validation:    validation,
		Basic:         basic,
		ConfidenceAdj: 1.0,
	}
}

// ValidateScore rejects NaN, infinite, or out-of-range scores before they
// reach callers.
func ValidateScore(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return fmt.Errorf("score is NaN or infinite: %f", score)
	}
	if score < 0 || score > 100 {
		return fmt.Errorf("score %.2f outside [0, 100]", score)
	}
	return nil
}

// Rank sorts candidates by the given score accessor descending, breaking
// ties deterministically by token key so repeated cycles on identical
// inputs emit identical orderings.
func Rank(candidates []*domain.Candidate, score func(*domain.Candidate) float64) {
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := score(candidates[i]), score(candidates[j])
		if si != sj {
			return si > sj
		}
		return candidates[i].TokenKey < candidates[j].TokenKey
	})
}
