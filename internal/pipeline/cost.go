package pipeline

import (
	"sync/atomic"
	"time"
)

// CostTracker counts what each cycle spent and what the staged filtering
// saved. It lives for the life of the controller; counters are atomic so
// enrichment workers can report without coordination.
type CostTracker struct {
	Stage1Count         atomic.Int64
	Stage2Count         atomic.Int64
	Stage3Count         atomic.Int64
	Stage4Count         atomic.Int64
	ExpensiveCallsMade  atomic.Int64
	ExpensiveCallsSaved atomic.Int64
	BatchCalls          atomic.Int64
	IndividualCalls     atomic.Int64
	CacheHits           atomic.Int64
	CacheMisses         atomic.Int64
	PrefilterDrops      atomic.Int64
	ParseErrors         atomic.Int64
}

// CostReport is the per-cycle snapshot emitted alongside the ranking.
type CostReport struct {
	CycleID             string          `json:"cycle_id"`
	Stage1Count         int64           `json:"stage1_count"`
	Stage2Count         int64           `json:"stage2_count"`
	Stage3Count         int64           `json:"stage3_count"`
	Stage4Count         int64           `json:"stage4_count"`
	ExpensiveCallsMade  int64           `json:"expensive_calls_made"`
	ExpensiveCallsSaved int64           `json:"expensive_calls_saved"`
	BatchCalls          int64           `json:"batch_calls"`
	IndividualCalls     int64           `json:"individual_calls"`
	CacheHits           int64           `json:"cache_hits"`
	CacheMisses         int64           `json:"cache_misses"`
	PrefilterDrops      int64           `json:"prefilter_drops"`
	ParseErrors         int64           `json:"parse_errors"`
	SavingsPct          float64         `json:"savings_pct"`
	SurvivorsByStage    map[string]int  `json:"survivors_by_stage"`
	BreakerTripped      map[string]bool `json:"breaker_tripped"`
	WallClock           time.Duration   `json:"wall_clock"`
}

// Snapshot builds a report from the tracker's current counters.
func (t *CostTracker) Snapshot() CostReport {
	made := t.ExpensiveCallsMade.Load()
	saved := t.ExpensiveCallsSaved.Load()
	savings := 0.0
	if made+saved > 0 {
		savings = float64(saved) / float64(saved+made)
	}
	return CostReport{
		Stage1Count:         t.Stage1Count.Load(),
		Stage2Count:         t.Stage2Count.Load(),
		Stage3Count:         t.Stage3Count.Load(),
		Stage4Count:         t.Stage4Count.Load(),
		ExpensiveCallsMade:  made,
		ExpensiveCallsSaved: saved,
		BatchCalls:          t.BatchCalls.Load(),
		IndividualCalls:     t.IndividualCalls.Load(),
		CacheHits:           t.CacheHits.Load(),
		CacheMisses:         t.CacheMisses.Load(),
		PrefilterDrops:      t.PrefilterDrops.Load(),
		ParseErrors:         t.ParseErrors.Load(),
		SavingsPct:          savings,
	}
}
