// Package providertest provides a scriptable in-memory Adapter for
// pipeline and integration tests.
package providertest

import (
	"context"
	"sync"
	"time"

	"github.com/tokenscout/tokenscout/internal/providers"
)

// FakeAdapter is a deterministic Adapter backed by canned records and
// candles. Errors can be scripted per call to exercise fallback and
// breaker paths; an optional latency simulates slow providers so budget
// tests can force timeouts.
type FakeAdapter struct {
	mu sync.Mutex

	name    string
	latency time.Duration

	records map[string]providers.PartialRecord
	candles map[string][]providers.Candle // key: tokenKey + "/" + timeframe

	// errScript is consumed one entry per call, in order. A nil entry
	// means the call succeeds. When exhausted, calls succeed.
	errScript []error

	batchCalls  int
	singleCalls int
	ohlcvCalls  int
}

// NewFakeAdapter creates an empty fake with the given provider name.
func NewFakeAdapter(name string) *FakeAdapter {
	return &FakeAdapter{
		name:    name,
		records: make(map[string]providers.PartialRecord),
		candles: make(map[string][]providers.Candle),
	}
}

func (f *FakeAdapter) Name() string { return f.name }

// SetLatency makes every call sleep for d before responding.
func (f *FakeAdapter) SetLatency(d time.Duration) {
	f.mu.Lock()
	f.latency = d
	f.mu.Unlock()
}

// SetRecord cans the record returned for a token key.
func (f *FakeAdapter) SetRecord(key string, rec providers.PartialRecord) {
	f.mu.Lock()
	f.records[key] = rec
	f.mu.Unlock()
}

// SetCandles cans the candles returned for a token key and timeframe.
func (f *FakeAdapter) SetCandles(key, timeframe string, candles []providers.Candle) {
	f.mu.Lock()
	f.candles[key+"/"+timeframe] = candles
	f.mu.Unlock()
}

// ScriptErrors queues errors to return on upcoming calls, in order. Nil
// entries succeed.
func (f *FakeAdapter) ScriptErrors(errs ...error) {
	f.mu.Lock()
	f.errScript = append(f.errScript, errs...)
	f.mu.Unlock()
}

// Calls reports how many batch, single and OHLCV calls were made.
func (f *FakeAdapter) Calls() (batch, single, ohlcv int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.batchCalls, f.singleCalls, f.ohlcvCalls
}

// nextErr pops the next scripted error, if any.
func (f *FakeAdapter) nextErr() error {
	if len(f.errScript) == 0 {
		return nil
	}
	err := f.errScript[0]
	f.errScript = f.errScript[1:]
	return err
}

func (f *FakeAdapter) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FakeAdapter) BatchFetch(ctx context.Context, keys []string, _ providers.FieldSet) (map[string]providers.PartialRecord, error) {
	f.mu.Lock()
	f.batchCalls++
	err := f.nextErr()
	latency := f.latency
	out := make(map[string]providers.PartialRecord, len(keys))
	for _, k := range keys {
		if rec, ok := f.records[k]; ok {
			out[k] = rec
		}
	}
	f.mu.Unlock()

	if werr := f.wait(ctx, latency); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *FakeAdapter) SingleFetch(ctx context.Context, key string, _ providers.FieldSet) (*providers.PartialRecord, error) {
	f.mu.Lock()
	f.singleCalls++
	err := f.nextErr()
	latency := f.latency
	rec, ok := f.records[key]
	f.mu.Unlock()

	if werr := f.wait(ctx, latency); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, providers.ErrNotFound
	}
	return &rec, nil
}

func (f *FakeAdapter) OHLCVFetch(ctx context.Context, key, timeframe string, n int) ([]providers.Candle, error) {
	f.mu.Lock()
	f.ohlcvCalls++
	err := f.nextErr()
	latency := f.latency
	candles := f.candles[key+"/"+timeframe]
	f.mu.Unlock()

	if werr := f.wait(ctx, latency); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, providers.ErrNotFound
	}
	if n > 0 && len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	out := make([]providers.Candle, len(candles))
	copy(out, candles)
	return out, nil
}
