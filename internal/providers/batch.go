package providers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// BatchResult is the planner's outcome: a mapping from token key to raw
// partial record, call counts for the cost tracker, and whether the plan
// was cut short by an open circuit.
type BatchResult struct {
	Records         map[string]PartialRecord
	BatchCalls      int
	IndividualCalls int
	Partial         bool
}

// CallSpec carries the per-provider envelope for individual outbound
// calls: a timeout applied to each adapter call, distinct from the cycle
// budget, and the provider's maximum batch size.
type CallSpec struct {
	Timeout  time.Duration
	MaxBatch int
}

// Planner splits key lists into provider-sized batches and falls back to
// individual calls when a batch fails. Every outbound call goes through
// the gate and the breaker; the planner never interprets responses.
type Planner struct {
	gate     *Gate
	breakers *BreakerSet

	mu    sync.RWMutex
	specs map[string]CallSpec
}

// NewPlanner wires a planner to the shared gate and breaker set.
func NewPlanner(gate *Gate, breakers *BreakerSet) *Planner {
	return &Planner{
		gate:     gate,
		breakers: breakers,
		specs:    make(map[string]CallSpec),
	}
}

// Register sets the call envelope for a provider, replacing any prior
// spec. Providers without a spec get no per-call timeout and no batch
// size cap.
func (p *Planner) Register(provider string, spec CallSpec) {
	p.mu.Lock()
	p.specs[provider] = spec
	p.mu.Unlock()
}

func (p *Planner) spec(provider string) CallSpec {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.specs[provider]
}

// callCtx derives the per-call context: the parent bounded by the
// provider's timeout, when one is configured.
func (p *Planner) callCtx(ctx context.Context, provider string) (context.Context, context.CancelFunc) {
	if t := p.spec(provider).Timeout; t > 0 {
		return context.WithTimeout(ctx, t)
	}
	return ctx, func() {}
}

// FetchBatch runs a batched fetch for keys against one provider.
// maxBatch bounds the chunk size. On ErrCircuitOpen the plan aborts and
// returns whatever it already collected with Partial set; on any other
// batch failure the chunk's keys are retried individually.
func (p *Planner) FetchBatch(ctx context.Context, adapter Adapter, keys []string, fields FieldSet, maxBatch int) BatchResult {
	result := BatchResult{Records: make(map[string]PartialRecord, len(keys))}
	provider := adapter.Name()

	// The provider's registered batch size is the authoritative ceiling.
	if limit := p.spec(provider).MaxBatch; limit > 0 && (maxBatch <= 0 || maxBatch > limit) {
		maxBatch = limit
	}
	if maxBatch <= 0 {
		maxBatch = 1
	}

	for start := 0; start < len(keys); start += maxBatch {
		end := start + maxBatch
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		err := p.callBatch(ctx, adapter, chunk, fields, &result)
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrCircuitOpen):
			log.Warn().Str("provider", provider).Int("remaining", len(keys)-start).
				Msg("circuit open, aborting batch plan")
			result.Partial = true
			return result
		case errors.Is(err, ErrCancelled):
			result.Partial = true
			return result
		default:
			log.Debug().Str("provider", provider).Err(err).Int("chunk", len(chunk)).
				Msg("batch call failed, falling back to individual calls")
			if !p.fallbackIndividual(ctx, adapter, chunk, fields, &result) {
				result.Partial = true
				return result
			}
		}
	}
	return result
}

func (p *Planner) callBatch(ctx context.Context, adapter Adapter, chunk []string, fields FieldSet, result *BatchResult) error {
	provider := adapter.Name()

	if !p.breakers.Permit(provider) {
		return ErrCircuitOpen
	}

	release, err := p.gate.Acquire(ctx, provider)
	if err != nil {
		return err
	}
	defer release()

	callCtx, cancel := p.callCtx(ctx, provider)
	defer cancel()

	var records map[string]PartialRecord
	err = p.breakers.Execute(provider, func() error {
		var callErr error
		records, callErr = adapter.BatchFetch(callCtx, chunk, fields)
		return p.normalize(ctx, callErr)
	})
	if err != nil {
		return err
	}

	for key, rec := range records {
		rec.Batch = true
		result.Records[key] = rec
	}
	result.BatchCalls++
	return nil
}

// fallbackIndividual fetches a failed chunk key by key. Returns false when
// the circuit opened or the cycle was cancelled and the plan must stop.
func (p *Planner) fallbackIndividual(ctx context.Context, adapter Adapter, chunk []string, fields FieldSet, result *BatchResult) bool {
	provider := adapter.Name()

	for _, key := range chunk {
		if !p.breakers.Permit(provider) {
			return false
		}

		release, err := p.gate.Acquire(ctx, provider)
		if err != nil {
			return false
		}

		callCtx, cancel := p.callCtx(ctx, provider)

		var rec *PartialRecord
		err = p.breakers.Execute(provider, func() error {
			var callErr error
			rec, callErr = adapter.SingleFetch(callCtx, key, fields)
			return p.normalize(ctx, callErr)
		})
		cancel()
		release()

		result.IndividualCalls++

		switch {
		case err == nil && rec != nil:
			result.Records[key] = *rec
		case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrCancelled):
			return false
		case err != nil:
			// missing data for one key is not fatal to the plan
			log.Debug().Str("provider", provider).Str("key", key).Err(err).
				Msg("individual fallback failed")
		}
	}
	return true
}

// FetchOHLCV runs candle fetches for one key/timeframe through the gate
// and breaker. Candle fetches have no batch form at any known provider,
// so each call is individual by construction.
func (p *Planner) FetchOHLCV(ctx context.Context, adapter Adapter, key, timeframe string, n int) ([]Candle, error) {
	provider := adapter.Name()

	if !p.breakers.Permit(provider) {
		return nil, ErrCircuitOpen
	}

	release, err := p.gate.Acquire(ctx, provider)
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx, cancel := p.callCtx(ctx, provider)
	defer cancel()

	var candles []Candle
	err = p.breakers.Execute(provider, func() error {
		var callErr error
		candles, callErr = adapter.OHLCVFetch(callCtx, key, timeframe, n)
		return p.normalize(ctx, callErr)
	})
	if err != nil {
		return nil, err
	}
	return candles, nil
}

// normalize maps context errors and distinguishes cycle cancellation from
// a per-call timeout: when the parent cycle context is done, the call is
// a clean abort and must not count against the breaker.
func (p *Planner) normalize(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return Normalize(err)
}
