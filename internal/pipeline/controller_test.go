package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscout/tokenscout/internal/alerted"
	"github.com/tokenscout/tokenscout/internal/cache"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/providers"
	"github.com/tokenscout/tokenscout/internal/providers/providertest"
)

func ptr(v float64) *float64 { return &v }

// freshGraduateRecord is a newly graduated token with strong market data.
func freshGraduateRecord(key string) domain.DiscoveryRecord {
	return domain.DiscoveryRecord{
		TokenKey:             key,
		Symbol:               "GEM",
		Source:               domain.SourceGraduated,
		DiscoveryTime:        time.Now().Add(-30 * time.Minute),
		EstimatedAgeMinutes:  ptr(45),
		HoursSinceGraduation: ptr(0.5),
		MarketCap:            ptr(300_000),
		Liquidity:            ptr(120_000),
		Volume24h:            ptr(250_000),
		Trades24h:            ptr(1_500),
	}
}

type testRig struct {
	gate     *providers.Gate
	breakers *providers.BreakerSet
	metadata *providertest.FakeAdapter
	ohlcv    *providertest.FakeAdapter
	alerted  alerted.Set
}

func newRig() *testRig {
	rig := &testRig{
		gate:     providers.NewGate(),
		breakers: providers.NewBreakerSet(),
		metadata: providertest.NewFakeAdapter("metadata"),
		ohlcv:    providertest.NewFakeAdapter("ohlcv"),
		alerted:  alerted.NewMemorySet(),
	}
	rig.gate.Register("metadata", providers.GateConfig{MaxConcurrent: 4, MinSpacing: time.Microsecond})
	rig.gate.Register("ohlcv", providers.GateConfig{MaxConcurrent: 4, MinSpacing: time.Microsecond})
	rig.breakers.Register("metadata", providers.DefaultBreakerConfig)
	rig.breakers.Register("ohlcv", providers.BreakerConfig{FailureThreshold: 2, FailureWindow: time.Minute, Cooldown: time.Minute})
	return rig
}

func (r *testRig) controller(cfg ControllerConfig, observer Observer) *Controller {
	return NewController(cfg, r.gate, r.breakers, cache.New(256), r.metadata, r.ohlcv, r.alerted, observer)
}

// steadyCandles yields bars with a constant per-bar growth rate.
func steadyCandles(volume, growth float64, n int) []providers.Candle {
	out := make([]providers.Candle, n)
	price := 1.0
	for i := range out {
		next := price * (1 + growth)
		out[i] = providers.Candle{Open: price, Close: next, High: next, Low: price, Volume: volume, UnixTime: int64(i) * 900}
		price = next
	}
	return out
}

func (r *testRig) setMetadata(key string) {
	rec := providers.NewPartialRecord("metadata")
	rec.Verified = true
	rec.MarketCap = 300_000
	rec.Liquidity = 120_000
	rec.Volume24h = 250_000
	rec.Trades24h = 1_500
	rec.HolderCount = 400
	rec.UniqueTraders24h = 300
	rec.SecurityScore = 85
	rec.DevHoldingPct = 3
	rec.HoneypotRisk = "low"
	verified := true
	rec.VerifiedContract = &verified
	rec.LiquidityLocked = &verified
	r.metadata.SetRecord(key, rec)
}

func (r *testRig) setCandles(key string) {
	// Accelerating volume on the shorter frame with healthy price moves.
	r.ohlcv.SetCandles(key, "15m", steadyCandles(8_000, 0.08, 20))
	r.ohlcv.SetCandles(key, "30m", steadyCandles(5_000, 0.05, 20))
}

func TestRunCycleFreshGraduateReachesVelocity(t *testing.T) {
	rig := newRig()
	rig.setMetadata(validAddr)
	rig.setCandles(validAddr)

	ctl := rig.controller(DefaultControllerConfig(), nil)
	result, err := ctl.RunCycle(context.Background(), []domain.DiscoveryRecord{freshGraduateRecord(validAddr)})
	require.NoError(t, err)
	require.Len(t, result.Ranked, 1)

	c := result.Ranked[0]
	assert.Equal(t, domain.StageVelocity, c.Stage)
	assert.Greater(t, c.FinalScore, 50.0)
	assert.LessOrEqual(t, c.FinalScore, 100.0)
	assert.Equal(t, domain.QualityHigh, c.DataQuality)
	assert.Equal(t, domain.ConfidenceHigh, c.Confidence,
		"a 45-minute-old token with both timeframes fetched is high-confidence")
	require.NotNil(t, c.Breakdown)
	assert.Equal(t, 1.02, c.Breakdown.ConfidenceAdj)

	report := result.Report
	assert.NotEmpty(t, report.CycleID)
	assert.Equal(t, 1, report.SurvivorsByStage["entered"])
	assert.Equal(t, 1, report.SurvivorsByStage["emitted"])
	assert.Equal(t, int64(2), report.ExpensiveCallsMade)
	assert.Equal(t, report, *ctl.LastReport())
}

func TestRunCycleBondingImminentPromoted(t *testing.T) {
	rig := newRig()
	rig.setMetadata(validAddr)
	rig.setCandles(validAddr)

	record := domain.DiscoveryRecord{
		TokenKey:             validAddr,
		Symbol:               "SOON",
		Source:               domain.SourceBonding,
		DiscoveryTime:        time.Now().Add(-20 * time.Minute),
		EstimatedAgeMinutes:  ptr(20),
		BondingCurveProgress: ptr(96),
		MarketCap:            ptr(60_000),
		Liquidity:            ptr(20_000),
		Volume24h:            ptr(80_000),
	}

	ctl := rig.controller(DefaultControllerConfig(), nil)
	result, err := ctl.RunCycle(context.Background(), []domain.DiscoveryRecord{record})
	require.NoError(t, err)
	require.Len(t, result.Ranked, 1)

	c := result.Ranked[0]
	// Near-graduation proximity dominates triage: 50 proximity + 15 cap
	// tier + 5 address + 3 symbol + 8 age.
	assert.InDelta(t, 81.0, c.DiscoveryScore, 0.001)
	assert.GreaterOrEqual(t, c.ValidationScore, 55.0)
	assert.Equal(t, domain.StageVelocity, c.Stage, "imminent bonding token is promoted to the expensive stage")
	assert.Equal(t, 1, result.Report.SurvivorsByStage["stage3"])
}

func TestRunCycleLowQualityTrendingNotEmitted(t *testing.T) {
	rig := newRig()

	record := domain.DiscoveryRecord{
		TokenKey:      validAddr,
		Symbol:        "MEH",
		Source:        domain.SourceTrending,
		DiscoveryTime: time.Now(),
		MarketCap:     ptr(500),
		Volume24h:     ptr(120),
	}

	ctl := rig.controller(DefaultControllerConfig(), nil)
	result, err := ctl.RunCycle(context.Background(), []domain.DiscoveryRecord{record})
	require.NoError(t, err)

	// Trending admits it at triage on the flat bonus, but with no
	// enrichment data it cannot validate and never reaches the expensive
	// stage.
	assert.Equal(t, 1, result.Report.SurvivorsByStage["stage1"])
	assert.Zero(t, result.Report.SurvivorsByStage["stage3"])
	assert.Empty(t, result.Ranked)
	assert.Zero(t, result.Report.ExpensiveCallsMade)
}

func TestRunCyclePrefilterDrops(t *testing.T) {
	rig := newRig()
	rig.setMetadata(validAddr)
	rig.setCandles(validAddr)

	suppressedKey := validAddr[:43] + "b"
	require.NoError(t, rig.alerted.Add(context.Background(), suppressedKey, time.Hour))

	records := []domain.DiscoveryRecord{
		freshGraduateRecord(validAddr),
		freshGraduateRecord(validAddr), // duplicate
		freshGraduateRecord(suppressedKey),
		{TokenKey: "", Symbol: "BAD", Source: domain.SourceTrending}, // invalid
		{
			TokenKey: validAddr[:43] + "c", Symbol: "BIG", Source: domain.SourceTrending,
			DiscoveryTime: time.Now(), MarketCap: ptr(20_000_000), // over the cap bound
		},
		{
			TokenKey: validAddr[:43] + "d", Symbol: "DED", Source: domain.SourceTrending,
			DiscoveryTime: time.Now(), Volume24h: ptr(5), // dead volume
		},
	}

	ctl := rig.controller(DefaultControllerConfig(), nil)
	result, err := ctl.RunCycle(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Report.SurvivorsByStage["entered"])
	assert.Equal(t, int64(5), result.Report.PrefilterDrops)
	require.Len(t, result.Ranked, 1)
	assert.Equal(t, validAddr, result.Ranked[0].TokenKey)
}

func TestRunCycleDisabledSource(t *testing.T) {
	rig := newRig()
	cfg := DefaultControllerConfig()
	cfg.DisabledSources = []string{string(domain.SourceGraduated)}

	ctl := rig.controller(cfg, nil)
	result, err := ctl.RunCycle(context.Background(), []domain.DiscoveryRecord{freshGraduateRecord(validAddr)})
	require.NoError(t, err)

	assert.Empty(t, result.Ranked)
	assert.Equal(t, int64(1), result.Report.PrefilterDrops)
}

func TestRunCycleRejectsConcurrentCycles(t *testing.T) {
	rig := newRig()
	rig.setMetadata(validAddr)
	rig.setCandles(validAddr)
	rig.ohlcv.SetLatency(150 * time.Millisecond)

	ctl := rig.controller(DefaultControllerConfig(), nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := ctl.RunCycle(context.Background(), []domain.DiscoveryRecord{freshGraduateRecord(validAddr)})
		assert.NoError(t, err)
	}()

	time.Sleep(50 * time.Millisecond)
	_, err := ctl.RunCycle(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCycleRunning)
	wg.Wait()
}

func TestRunCycleDeadContext(t *testing.T) {
	rig := newRig()
	ctl := rig.controller(DefaultControllerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ctl.RunCycle(ctx, []domain.DiscoveryRecord{freshGraduateRecord(validAddr)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunCycleProviderOutageDegradesToPartial(t *testing.T) {
	rig := newRig()
	rig.setMetadata(validAddr)
	// Every OHLCV call fails; the breaker (threshold 2) trips mid-stage.
	rig.ohlcv.ScriptErrors(providers.ErrServer, providers.ErrServer, providers.ErrServer, providers.ErrServer)

	ctl := rig.controller(DefaultControllerConfig(), nil)
	result, err := ctl.RunCycle(context.Background(), []domain.DiscoveryRecord{freshGraduateRecord(validAddr)})
	require.NoError(t, err, "provider outage never fails the cycle")
	require.Len(t, result.Ranked, 1)

	c := result.Ranked[0]
	assert.Equal(t, domain.QualityPartial, c.DataQuality)
	assert.Equal(t, c.ValidationScore, c.FinalScore)
	assert.True(t, result.Report.BreakerTripped["ohlcv"])
}

func TestRunCycleNarrowsExpensiveStageAfterOutage(t *testing.T) {
	rig := newRig()

	var records []domain.DiscoveryRecord
	for i := 0; i < 12; i++ {
		key := fmt.Sprintf("%s%c%c", validAddr[:42], 'a'+i%26, 'a'+i/26)
		records = append(records, freshGraduateRecord(key))
		rig.setMetadata(key)
	}

	cfg := DefaultControllerConfig()
	cfg.Stage4.Parallelism = 1 // deterministic failure count
	ctl := rig.controller(cfg, nil)

	// First cycle: the OHLCV provider is down and trips its breaker after
	// two consecutive failures.
	rig.ohlcv.ScriptErrors(providers.ErrServer, providers.ErrServer, providers.ErrServer, providers.ErrServer)
	_, err := ctl.RunCycle(context.Background(), records)
	require.NoError(t, err)
	require.False(t, rig.breakers.Permit("ohlcv"))
	require.Equal(t, uint32(2), rig.breakers.FailureCount("ohlcv"))

	// Second cycle: each consecutive failure narrows the expensive stage
	// by two slots, 10 down to 6; the open circuit does not narrow
	// further on its own.
	result, err := ctl.RunCycle(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Report.SurvivorsByStage["stage3"])
}

func TestRunCycleBudgetExceeded(t *testing.T) {
	rig := newRig()
	rig.setMetadata(validAddr)
	rig.setCandles(validAddr)
	rig.ohlcv.SetLatency(300 * time.Millisecond)

	cfg := DefaultControllerConfig()
	cfg.CycleBudget = 50 * time.Millisecond

	ctl := rig.controller(cfg, nil)
	result, err := ctl.RunCycle(context.Background(), []domain.DiscoveryRecord{freshGraduateRecord(validAddr)})
	require.NoError(t, err, "budget exhaustion yields partial results, not an error")
	require.Len(t, result.Ranked, 1)
	assert.Equal(t, domain.QualityPartial, result.Ranked[0].DataQuality)
}

type cycleRecorder struct {
	mu      sync.Mutex
	reports []CostReport
}

func (r *cycleRecorder) ObserveCycle(report CostReport) {
	r.mu.Lock()
	r.reports = append(r.reports, report)
	r.mu.Unlock()
}

func TestRunCycleNotifiesObserver(t *testing.T) {
	rig := newRig()
	rig.setMetadata(validAddr)
	rig.setCandles(validAddr)

	rec := &cycleRecorder{}
	ctl := rig.controller(DefaultControllerConfig(), rec)

	_, err := ctl.RunCycle(context.Background(), []domain.DiscoveryRecord{freshGraduateRecord(validAddr)})
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.reports, 1)
	assert.NotEmpty(t, rec.reports[0].CycleID)
}

func TestRunCycleSavingsAccounting(t *testing.T) {
	rig := newRig()

	// 20 candidates enter; only a handful reach the expensive stage.
	var records []domain.DiscoveryRecord
	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("%s%c%c", validAddr[:42], 'a'+i%26, 'a'+i/26)
		records = append(records, freshGraduateRecord(key))
		rig.setMetadata(key)
		rig.setCandles(key)
	}

	ctl := rig.controller(DefaultControllerConfig(), nil)
	result, err := ctl.RunCycle(context.Background(), records)
	require.NoError(t, err)

	report := result.Report
	assert.Equal(t, 20, report.SurvivorsByStage["entered"])
	assert.LessOrEqual(t, report.SurvivorsByStage["stage3"], 10)
	assert.Equal(t, int64(2*(20-report.SurvivorsByStage["stage3"])), report.ExpensiveCallsSaved)
	assert.Greater(t, report.SavingsPct, 0.0)
}
