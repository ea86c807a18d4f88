package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/cache"
	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/providers"
)

// Enricher fetches provider fields for a set of candidates through the
// batch planner and merges them into each record under the documented
// precedence. Fresh responses are cached to spare repeat calls.
type Enricher struct {
	planner  *providers.Planner
	cache    *cache.TTLCache
	cacheTTL time.Duration
	cost     *CostTracker
}

// NewEnricher wires an enricher to the shared planner, cache and tracker.
func NewEnricher(planner *providers.Planner, c *cache.TTLCache, cacheTTL time.Duration, cost *CostTracker) *Enricher {
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &Enricher{planner: planner, cache: c, cacheTTL: cacheTTL, cost: cost}
}

// Enrich fetches fields from the adapter for every candidate and merges
// results in. Candidates whose enrichment fails keep their original
// fields and a low data-quality flag; enrichment never removes anyone
// from the pipeline.
func (e *Enricher) Enrich(ctx context.Context, adapter providers.Adapter, cands []*domain.Candidate, fields providers.FieldSet, maxBatch int) {
	provider := adapter.Name()
	byKey := make(map[string]*domain.Candidate, len(cands))

	var misses []string
	for _, c := range cands {
		byKey[c.TokenKey] = c
		if rec, ok := e.cache.Get(provider, c.TokenKey); ok {
			e.cost.CacheHits.Add(1)
			MergeRecord(c, rec)
			continue
		}
		e.cost.CacheMisses.Add(1)
		misses = append(misses, c.TokenKey)
	}

	if len(misses) == 0 {
		return
	}

	result := e.planner.FetchBatch(ctx, adapter, misses, fields, maxBatch)
	e.cost.BatchCalls.Add(int64(result.BatchCalls))
	e.cost.IndividualCalls.Add(int64(result.IndividualCalls))

	for key, rec := range result.Records {
		c, ok := byKey[key]
		if !ok {
			continue
		}
		MergeRecord(c, rec)
		e.cache.Set(provider, key, rec, e.cacheTTL)
	}

	failed := 0
	for _, key := range misses {
		if _, ok := result.Records[key]; ok {
			continue
		}
		failed++
		if c := byKey[key]; c != nil && c.DataQuality != domain.QualityHigh {
			c.DataQuality = domain.QualityLow
		}
	}
	if failed > 0 {
		log.Debug().Str("provider", provider).Int("failed", failed).Int("requested", len(misses)).
			Msg("enrichment incomplete, candidates continue with original fields")
	}
}

// MergeRecord folds a partial record into a candidate. Precedence,
// highest first: same-provider newer timestamp, explicit verified or
// batch responses, any known value over the sentinel. Timestamps decide
// before the verified/batch tier, so a stale verified record never
// overwrites fresher data. Ties resolve to the first writer, so merging
// is stable.
func MergeRecord(c *domain.Candidate, rec providers.PartialRecord) {
	newer := rec.FetchedAt.After(c.EnrichmentTime)
	older := rec.FetchedAt.Before(c.EnrichmentTime)
	preferred := newer || (!older && (rec.Verified || rec.Batch))

	mergeField(&c.MarketCap, rec.MarketCap, preferred)
	mergeField(&c.Price, rec.Price, preferred)
	mergeField(&c.Liquidity, rec.Liquidity, preferred)
	mergeField(&c.Volume24h, rec.Volume24h, preferred)
	mergeField(&c.Trades24h, rec.Trades24h, preferred)
	mergeField(&c.HolderCount, rec.HolderCount, preferred)
	mergeField(&c.UniqueTraders24h, rec.UniqueTraders24h, preferred)
	mergeField(&c.SecurityScore, rec.SecurityScore, preferred)
	mergeField(&c.DevHoldingPct, rec.DevHoldingPct, preferred)

	if rec.HoneypotRisk != "" && (c.HoneypotRisk == domain.HoneypotUnknown || preferred) {
		c.HoneypotRisk = domain.HoneypotRisk(rec.HoneypotRisk)
	}
	if rec.LiquidityLocked != nil {
		c.LiquidityLocked = *rec.LiquidityLocked
	}
	if rec.VerifiedContract != nil {
		c.VerifiedContract = *rec.VerifiedContract
	}

	c.Attestations++
	if rec.Verified {
		c.PremiumProviders++
	}
	if rec.FetchedAt.After(c.EnrichmentTime) {
		c.EnrichmentTime = rec.FetchedAt
	}
	c.RefreshQuality()
}

// mergeField writes v over dst when dst is the sentinel, or when the
// source is preferred and v is known.
func mergeField(dst *float64, v float64, preferred bool) {
	if !domain.Known(v) {
		return
	}
	if !domain.Known(*dst) || preferred {
		*dst = v
	}
}
