package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tokenscout/tokenscout/internal/domain"
)

func newCandidate(source domain.Source) *domain.Candidate {
	return domain.NewCandidate("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", "TKN", source, time.Now())
}

func TestPlatformScoreSourceOrdering(t *testing.T) {
	// With identical (empty) data, hotter launch sources outrank cooler
	// ones at the same age.
	age := 10.0
	bonding := PlatformScore(newCandidate(domain.SourceBonding), age)
	ecosystem := PlatformScore(newCandidate(domain.SourceEcosystemBonding), age)
	graduated := PlatformScore(newCandidate(domain.SourceGraduated), age)
	trending := PlatformScore(newCandidate(domain.SourceTrending), age)

	assert.Greater(t, bonding, ecosystem)
	assert.Greater(t, ecosystem, graduated)
	assert.Greater(t, graduated, trending)
}

func TestPlatformScoreBondingNearGraduation(t *testing.T) {
	c := newCandidate(domain.SourceBonding)
	c.BondingCurveProgress = 96

	// base 15 + progression 10 + age 6 + timing -3 = 28, no decay.
	assert.InDelta(t, 28, PlatformScore(c, 3), 0.001)
}

func TestPlatformScoreSweetSpotBeatsGraduationCliff(t *testing.T) {
	sweet := newCandidate(domain.SourceBonding)
	sweet.BondingCurveProgress = 72

	cliff := newCandidate(domain.SourceBonding)
	cliff.BondingCurveProgress = 97

	age := 20.0
	// 72%: progression 6 + timing 4 = 10; 97%: progression 10 + timing -3 = 7.
	assert.Greater(t, PlatformScore(sweet, age), PlatformScore(cliff, age))
}

func TestPlatformScoreVelocityBonusProrated(t *testing.T) {
	c := newCandidate(domain.SourceGraduated)
	c.Volume24h = 3000

	// 30 minutes old: 3000 USD in half an hour is 6000 USD/hr, top tier.
	young := PlatformScore(c, 30)
	// A day old the same volume is only 125 USD/hr.
	old := PlatformScore(c, 24*60)

	assert.Greater(t, young, old)
}

func TestPlatformScoreAgeDecay(t *testing.T) {
	c := newCandidate(domain.SourceTrending)
	c.Volume24h = 200_000

	fresh := PlatformScore(c, 30)
	sixHours := PlatformScore(c, 5*60)
	twoDays := PlatformScore(c, 48*60)

	assert.Greater(t, fresh, sixHours)
	assert.Greater(t, sixHours, twoDays)
}

func TestPlatformScoreEcosystemSOLProgression(t *testing.T) {
	low := newCandidate(domain.SourceEcosystemBonding)
	low.SOLRaisedCurrent = 6

	high := newCandidate(domain.SourceEcosystemBonding)
	high.SOLRaisedCurrent = 150

	age := 10.0
	assert.Greater(t, PlatformScore(high, age), PlatformScore(low, age))
}

func TestPlatformScoreBounds(t *testing.T) {
	c := newCandidate(domain.SourceBonding)
	c.BondingCurveProgress = 78
	c.Volume24h = 1_000_000

	score := PlatformScore(c, 5)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 50.0)

	empty := newCandidate(domain.SourceLiveEvent)
	assert.GreaterOrEqual(t, PlatformScore(empty, domain.Unknown), 0.0)
}
