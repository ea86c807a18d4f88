package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/alerted"
	"github.com/tokenscout/tokenscout/internal/cache"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/providers"
)

// ErrCycleRunning is returned when RunCycle is called while another
// cycle is still in flight; cycles never interleave.
var ErrCycleRunning = errors.New("scan cycle already running")

// Pre-filter bounds: candidates outside these never enter stage 1.
const (
	prefilterMaxMarketCap = 5_000_000.0
	prefilterMinVolume24h = 100.0
	stage4MinWidth        = 5
)

// ControllerConfig assembles every knob the pipeline controller honors.
type ControllerConfig struct {
	CycleBudget       time.Duration   `yaml:"cycle_budget"`
	MetadataBatchSize int             `yaml:"metadata_batch_size"`
	CacheTTL          time.Duration   `yaml:"cache_ttl"`
	Stage1            Stage1Config    `yaml:"stage1"`
	Stage2            Stage2Config    `yaml:"stage2"`
	Stage3            Stage3Config    `yaml:"stage3"`
	Stage4            Stage4Config    `yaml:"stage4"`
	DisabledSources   []string        `yaml:"disabled_sources"`
}

// DefaultControllerConfig returns the documented defaults.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		CycleBudget:       120 * time.Second,
		MetadataBatchSize: 30,
		Stage1:            DefaultStage1Config(),
		Stage2:            DefaultStage2Config(),
		Stage3:            DefaultStage3Config(),
		Stage4:            DefaultStage4Config(),
	}
}

// Observer receives the cost report after each cycle, for metrics export.
type Observer interface {
	ObserveCycle(report CostReport)
}

// CycleResult is what one scan cycle emits.
type CycleResult struct {
	Ranked []*domain.Candidate `json:"ranked_candidates"`
	Report CostReport          `json:"cost_report"`
}

// Controller runs the four-stage pipeline. It owns the shared gate,
// breaker set, planner, enrichment cache and cost tracker; stages borrow
// them for the duration of a cycle.
type Controller struct {
	cycleMu sync.Mutex

	gate     *providers.Gate
	breakers *providers.BreakerSet
	planner  *providers.Planner
	enricher *Enricher
	cost     *CostTracker

	metadata providers.Adapter // medium-cost metadata/volume/holder fields
	ohlcv    providers.Adapter // expensive short-timeframe candles

	alertedSet alerted.Set
	observer   Observer

	cfg      ControllerConfig
	disabled map[domain.Source]bool

	lastMu     sync.RWMutex
	lastReport *CostReport
}

// NewController wires a controller. metadata and ohlcv adapters may be
// nil, in which case the corresponding stages run on discovery data only.
func NewController(cfg ControllerConfig, gate *providers.Gate, breakers *providers.BreakerSet, ttlCache *cache.TTLCache, metadata, ohlcv providers.Adapter, alertedSet alerted.Set, observer Observer) *Controller {
	if cfg.CycleBudget <= 0 {
		cfg.CycleBudget = 120 * time.Second
	}
	if alertedSet == nil {
		alertedSet = alerted.NewMemorySet()
	}

	cost := &CostTracker{}
	planner := providers.NewPlanner(gate, breakers)

	disabled := make(map[domain.Source]bool, len(cfg.DisabledSources))
	for _, s := range cfg.DisabledSources {
		disabled[domain.Source(s)] = true
	}

	return &Controller{
		gate:       gate,
		breakers:   breakers,
		planner:    planner,
		enricher:   NewEnricher(planner, ttlCache, cfg.CacheTTL, cost),
		cost:       cost,
		metadata:   metadata,
		ohlcv:      ohlcv,
		alertedSet: alertedSet,
		observer:   observer,
		cfg:        cfg,
		disabled:   disabled,
	}
}

// Cost exposes the lifetime cost tracker.
func (ctl *Controller) Cost() *CostTracker { return ctl.cost }

// Planner exposes the shared batch planner so callers can register
// per-provider call specs (timeout, batch size).
func (ctl *Controller) Planner() *providers.Planner { return ctl.planner }

// LastReport returns the most recent cycle's cost report, if any.
func (ctl *Controller) LastReport() *CostReport {
	ctl.lastMu.RLock()
	defer ctl.lastMu.RUnlock()
	return ctl.lastReport
}

// RunCycle executes one full scan cycle over the discovery output.
// Partial results are always preferred to cycle failure: the only error
// paths are a concurrent cycle and a caller context that was already
// dead on entry.
func (ctl *Controller) RunCycle(ctx context.Context, records []domain.DiscoveryRecord) (*CycleResult, error) {
	if !ctl.cycleMu.TryLock() {
		return nil, ErrCycleRunning
	}
	defer ctl.cycleMu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	cycleID := uuid.NewString()
	before := ctl.cost.Snapshot()

	cycleCtx, cancel := context.WithTimeout(ctx, ctl.cfg.CycleBudget)
	defer cancel()

	entered := ctl.prefilter(cycleCtx, records)
	now := time.Now()

	stage1 := Stage1Triage(entered, ctl.cfg.Stage1, now)
	ctl.cost.Stage1Count.Add(int64(len(entered)))

	stage2 := Stage2Enhanced(cycleCtx, stage1, ctl.enricher, ctl.metadata, ctl.cfg.MetadataBatchSize, ctl.cfg.Stage2, now)
	ctl.cost.Stage2Count.Add(int64(len(stage1)))

	stage3 := Stage3Validate(stage2, ctl.cfg.Stage3, ctl.stage4Width())
	ctl.cost.Stage3Count.Add(int64(len(stage2)))

	ranked := Stage4Velocity(cycleCtx, stage3, ctl.planner, ctl.ohlcv, ctl.cost, ctl.cfg.Stage4, now)
	ctl.cost.Stage4Count.Add(int64(len(stage3)))

	// Two hypothetical timeframe fetches saved per candidate filtered
	// out before the expensive stage.
	ctl.cost.ExpensiveCallsSaved.Add(2 * int64(len(entered)-len(stage3)))

	report := ctl.buildReport(cycleID, before, start, len(entered), len(stage1), len(stage2), len(stage3), len(ranked))

	ctl.lastMu.Lock()
	ctl.lastReport = &report
	ctl.lastMu.Unlock()

	if ctl.observer != nil {
		ctl.observer.ObserveCycle(report)
	}

	log.Info().
		Str("cycle", cycleID).
		Int("discovered", len(records)).
		Int("entered", len(entered)).
		Int("emitted", len(ranked)).
		Float64("savings_pct", report.SavingsPct).
		Dur("wall_clock", report.WallClock).
		Msg("scan cycle complete")

	return &CycleResult{Ranked: ranked, Report: report}, nil
}

// prefilter deduplicates by token key, drops already-alerted tokens,
// disabled sources, and candidates outside the entry bounds.
func (ctl *Controller) prefilter(ctx context.Context, records []domain.DiscoveryRecord) []*domain.Candidate {
	seen := make(map[string]struct{}, len(records))
	var entered []*domain.Candidate

	for _, r := range records {
		if !r.Valid() {
			ctl.cost.PrefilterDrops.Add(1)
			continue
		}
		if _, dup := seen[r.TokenKey]; dup {
			ctl.cost.PrefilterDrops.Add(1)
			continue
		}
		seen[r.TokenKey] = struct{}{}

		if ctl.disabled[r.Source] {
			ctl.cost.PrefilterDrops.Add(1)
			continue
		}
		if ctl.alertedSet.Contains(ctx, r.TokenKey) {
			ctl.cost.PrefilterDrops.Add(1)
			continue
		}

		c := r.ToCandidate()
		if domain.Known(c.MarketCap) && c.MarketCap > prefilterMaxMarketCap {
			ctl.cost.PrefilterDrops.Add(1)
			continue
		}
		if domain.Known(c.Volume24h) && c.Volume24h < prefilterMinVolume24h {
			ctl.cost.PrefilterDrops.Add(1)
			continue
		}
		entered = append(entered, c)
	}
	return entered
}

// stage4Width narrows the expensive-stage cap when the OHLCV provider's
// breaker shows pressure: minus two slots per consecutive failure,
// floored at five.
func (ctl *Controller) stage4Width() int {
	width := ctl.cfg.Stage3.MaxOutput
	if ctl.ohlcv == nil {
		return width
	}

	provider := ctl.ohlcv.Name()
	failures := int(ctl.breakers.FailureCount(provider))
	open := !ctl.breakers.Permit(provider)
	if failures == 0 && !open {
		return width
	}

	width -= 2 * failures
	if width < stage4MinWidth {
		width = stage4MinWidth
	}

	log.Warn().Str("provider", provider).Int("failures", failures).Bool("open", open).
		Int("width", width).Msg("narrowing expensive stage under breaker pressure")
	return width
}

func (ctl *Controller) buildReport(cycleID string, before CostReport, start time.Time, entered, s1, s2, s3, emitted int) CostReport {
	after := ctl.cost.Snapshot()
	report := CostReport{
		CycleID:             cycleID,
		Stage1Count:         after.Stage1Count - before.Stage1Count,
		Stage2Count:         after.Stage2Count - before.Stage2Count,
		Stage3Count:         after.Stage3Count - before.Stage3Count,
		Stage4Count:         after.Stage4Count - before.Stage4Count,
		ExpensiveCallsMade:  after.ExpensiveCallsMade - before.ExpensiveCallsMade,
		ExpensiveCallsSaved: after.ExpensiveCallsSaved - before.ExpensiveCallsSaved,
		BatchCalls:          after.BatchCalls - before.BatchCalls,
		IndividualCalls:     after.IndividualCalls - before.IndividualCalls,
		CacheHits:           after.CacheHits - before.CacheHits,
		CacheMisses:         after.CacheMisses - before.CacheMisses,
		PrefilterDrops:      after.PrefilterDrops - before.PrefilterDrops,
		ParseErrors:         after.ParseErrors - before.ParseErrors,
		BreakerTripped:      ctl.breakers.TrippedProviders(),
		WallClock:           time.Since(start),
		SurvivorsByStage: map[string]int{
			"entered": entered,
			"stage1":  s1,
			"stage2":  s2,
			"stage3":  s3,
			"emitted": emitted,
		},
	}
	if report.ExpensiveCallsMade+report.ExpensiveCallsSaved > 0 {
		report.SavingsPct = float64(report.ExpensiveCallsSaved) /
			float64(report.ExpensiveCallsSaved+report.ExpensiveCallsMade)
	}
	return report
}
