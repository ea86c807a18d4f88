package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tokenscout/tokenscout/internal/domain"
	"github.com/tokenscout/tokenscout/internal/domain/scoring"
	"github.com/tokenscout/tokenscout/internal/providers"
)

// Stage2Config bounds the enhanced-analysis stage.
type Stage2Config struct {
	MaxOutput  int                `yaml:"max_output"`
	Thresholds map[string]float64 `yaml:"thresholds"`
	HighQualityThresholds map[string]float64 `yaml:"high_quality_thresholds"`
}

// DefaultStage2Config returns the enhanced-stage defaults.
func DefaultStage2Config() Stage2Config {
	return Stage2Config{
		MaxOutput: 25,
		Thresholds: map[string]float64{
			string(domain.SourceTrending): 35,
		},
		HighQualityThresholds: map[string]float64{
			string(domain.SourceBonding):   45,
			string(domain.SourceGraduated): 40,
		},
	}
}

func (c Stage2Config) threshold(s domain.Source, quality domain.DataQuality) float64 {
	if quality == domain.QualityHigh {
		if t, ok := c.HighQualityThresholds[string(s)]; ok {
			return t
		}
	}
	if t, ok := c.Thresholds[string(s)]; ok {
		return t
	}
	return 35
}

// stage2Fields are the medium-cost fields the enhanced stage needs.
var stage2Fields = providers.FieldSet{
	providers.FieldMarketCap,
	providers.FieldLiquidity,
	providers.FieldVolume24h,
	providers.FieldTrades24h,
	providers.FieldHolderCount,
	providers.FieldUniqueTraders,
	providers.FieldSecurityScore,
	providers.FieldDevHolding,
	providers.FieldHoneypotRisk,
}

// Stage2Enhanced batch-enriches triage survivors with metadata, volume,
// holder and security fields, then adds the enrichment bonuses on top of
// the discovery score.
func Stage2Enhanced(ctx context.Context, cands []*domain.Candidate, enricher *Enricher, adapter providers.Adapter, maxBatch int, cfg Stage2Config, now time.Time) []*domain.Candidate {
	var needsEnrichment []*domain.Candidate
	for _, c := range cands {
		if !domain.Known(c.Volume24h) || !domain.Known(c.Trades24h) ||
			!domain.Known(c.HolderCount) || !domain.Known(c.SecurityScore) {
			needsEnrichment = append(needsEnrichment, c)
		}
	}
	if len(needsEnrichment) > 0 && adapter != nil {
		enricher.Enrich(ctx, adapter, needsEnrichment, stage2Fields, maxBatch)
	}

	var survivors []*domain.Candidate
	for _, c := range cands {
		c.EnhancedScore = c.DiscoveryScore + EnrichmentBonus(c)
		c.Stage = domain.StageEnhanced
		if c.EnhancedScore >= cfg.threshold(c.Source, c.DataQuality) {
			survivors = append(survivors, c)
		}
	}

	scoring.Rank(survivors, func(c *domain.Candidate) float64 { return c.EnhancedScore })
	if cfg.MaxOutput > 0 && len(survivors) > cfg.MaxOutput {
		survivors = survivors[:cfg.MaxOutput]
	}

	log.Debug().Int("in", len(cands)).Int("out", len(survivors)).Msg("stage 2 enhanced analysis complete")
	return survivors
}

// EnrichmentBonus rewards candidates whose enriched fields show real
// market participation, applied additively to the discovery score.
func EnrichmentBonus(c *domain.Candidate) float64 {
	bonus := 0.0

	if domain.Known(c.Volume24h) {
		switch {
		case c.Volume24h > 100_000:
			bonus += 15
		case c.Volume24h > 50_000:
			bonus += 10
		case c.Volume24h > 10_000:
			bonus += 5
		}
	}
	if domain.Known(c.Trades24h) {
		switch {
		case c.Trades24h > 500:
			bonus += 10
		case c.Trades24h > 100:
			bonus += 5
		}
	}
	if domain.Known(c.HolderCount) {
		switch {
		case c.HolderCount > 200:
			bonus += 10
		case c.HolderCount > 50:
			bonus += 5
		}
	}
	if domain.Known(c.SecurityScore) {
		switch {
		case c.SecurityScore > 80:
			bonus += 8
		case c.SecurityScore > 60:
			bonus += 4
		}
	}

	return bonus
}
