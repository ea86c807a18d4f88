package providers_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokenscout/tokenscout/internal/providers"
	"github.com/tokenscout/tokenscout/internal/providers/providertest"
)

func record(provider string, marketCap float64) providers.PartialRecord {
	rec := providers.NewPartialRecord(provider)
	rec.MarketCap = marketCap
	return rec
}

func newPlanner(t *testing.T, breakerCfg providers.BreakerConfig) (*providers.Planner, *providers.BreakerSet) {
	t.Helper()
	gate := providers.NewGate()
	gate.Register("fake", providers.GateConfig{MaxConcurrent: 4, MinSpacing: time.Microsecond})
	breakers := providers.NewBreakerSet()
	breakers.Register("fake", breakerCfg)
	return providers.NewPlanner(gate, breakers), breakers
}

func TestFetchBatchChunksKeys(t *testing.T) {
	planner, _ := newPlanner(t, providers.DefaultBreakerConfig)
	fake := providertest.NewFakeAdapter("fake")
	for _, k := range []string{"a", "b", "c"} {
		fake.SetRecord(k, record("fake", 1000))
	}

	result := planner.FetchBatch(context.Background(), fake, []string{"a", "b", "c"}, nil, 2)

	assert.Len(t, result.Records, 3)
	assert.Equal(t, 2, result.BatchCalls, "three keys at batch size two is two calls")
	assert.Zero(t, result.IndividualCalls)
	assert.False(t, result.Partial)

	for _, rec := range result.Records {
		assert.True(t, rec.Batch, "batch responses carry the batch mark")
	}
}

func TestFetchBatchFallsBackToIndividual(t *testing.T) {
	planner, _ := newPlanner(t, providers.BreakerConfig{FailureThreshold: 10, FailureWindow: time.Minute, Cooldown: time.Minute})
	fake := providertest.NewFakeAdapter("fake")
	fake.SetRecord("a", record("fake", 1000))
	fake.SetRecord("b", record("fake", 2000))
	fake.ScriptErrors(providers.ErrServer) // first (batch) call fails

	result := planner.FetchBatch(context.Background(), fake, []string{"a", "b"}, nil, 10)

	assert.Len(t, result.Records, 2)
	assert.Zero(t, result.BatchCalls)
	assert.Equal(t, 2, result.IndividualCalls)
	assert.False(t, result.Partial)
	assert.False(t, result.Records["a"].Batch)
}

func TestFetchBatchSkipsMissingKeys(t *testing.T) {
	planner, _ := newPlanner(t, providers.DefaultBreakerConfig)
	fake := providertest.NewFakeAdapter("fake")
	fake.SetRecord("a", record("fake", 1000))

	result := planner.FetchBatch(context.Background(), fake, []string{"a", "ghost"}, nil, 10)

	assert.Len(t, result.Records, 1)
	assert.Contains(t, result.Records, "a")
	assert.False(t, result.Partial, "a provider not knowing a key is not a failure")
}

func TestFetchBatchAbortsWhenCircuitOpens(t *testing.T) {
	planner, breakers := newPlanner(t, providers.BreakerConfig{FailureThreshold: 1, FailureWindow: time.Minute, Cooldown: time.Minute})
	fake := providertest.NewFakeAdapter("fake")
	fake.SetRecord("a", record("fake", 1000))
	fake.ScriptErrors(providers.ErrServer) // trips the breaker immediately

	result := planner.FetchBatch(context.Background(), fake, []string{"a", "b"}, nil, 10)

	assert.True(t, result.Partial)
	assert.Empty(t, result.Records)
	assert.False(t, breakers.Permit("fake"))

	// Subsequent plans reject without touching the adapter.
	batchBefore, _, _ := fake.Calls()
	result = planner.FetchBatch(context.Background(), fake, []string{"a"}, nil, 10)
	assert.True(t, result.Partial)
	batchAfter, singleAfter, _ := fake.Calls()
	assert.Equal(t, batchBefore, batchAfter)
	assert.Zero(t, singleAfter)
}

func TestFetchBatchCancelledContext(t *testing.T) {
	planner, breakers := newPlanner(t, providers.DefaultBreakerConfig)
	fake := providertest.NewFakeAdapter("fake")
	fake.SetRecord("a", record("fake", 1000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := planner.FetchBatch(ctx, fake, []string{"a"}, nil, 10)
	assert.True(t, result.Partial)
	assert.Empty(t, result.Records)
	assert.Equal(t, uint32(0), breakers.FailureCount("fake"), "cancellation never counts against the breaker")
}

func TestFetchOHLCV(t *testing.T) {
	planner, _ := newPlanner(t, providers.DefaultBreakerConfig)
	fake := providertest.NewFakeAdapter("fake")
	fake.SetCandles("a", "15m", []providers.Candle{
		{Close: 1.0, Volume: 100, UnixTime: 1},
		{Close: 1.1, Volume: 120, UnixTime: 2},
	})

	candles, err := planner.FetchOHLCV(context.Background(), fake, "a", "15m", 20)
	require.NoError(t, err)
	assert.Len(t, candles, 2)

	_, err = planner.FetchOHLCV(context.Background(), fake, "a", "30m", 20)
	assert.ErrorIs(t, err, providers.ErrNotFound)
}

func TestRegisteredMaxBatchCapsChunkSize(t *testing.T) {
	planner, _ := newPlanner(t, providers.DefaultBreakerConfig)
	planner.Register("fake", providers.CallSpec{MaxBatch: 2})

	fake := providertest.NewFakeAdapter("fake")
	for _, k := range []string{"a", "b", "c", "d"} {
		fake.SetRecord(k, record("fake", 1000))
	}

	// Caller asks for one big batch; the provider's ceiling splits it.
	result := planner.FetchBatch(context.Background(), fake, []string{"a", "b", "c", "d"}, nil, 100)
	assert.Len(t, result.Records, 4)
	assert.Equal(t, 2, result.BatchCalls)

	// An unspecified size also resolves to the provider's ceiling.
	result = planner.FetchBatch(context.Background(), fake, []string{"a", "b", "c", "d"}, nil, 0)
	assert.Equal(t, 2, result.BatchCalls)
}

func TestRegisteredTimeoutBoundsEachCall(t *testing.T) {
	planner, breakers := newPlanner(t, providers.BreakerConfig{FailureThreshold: 10, FailureWindow: time.Minute, Cooldown: time.Minute})
	planner.Register("fake", providers.CallSpec{Timeout: 10 * time.Millisecond})

	fake := providertest.NewFakeAdapter("fake")
	fake.SetCandles("a", "15m", []providers.Candle{{Close: 1.0, Volume: 100, UnixTime: 1}})
	fake.SetLatency(80 * time.Millisecond)

	_, err := planner.FetchOHLCV(context.Background(), fake, "a", "15m", 20)
	assert.ErrorIs(t, err, providers.ErrTimeout)
	assert.Equal(t, uint32(1), breakers.FailureCount("fake"), "per-call timeouts count against the breaker")

	// A fast provider under the same spec is unaffected.
	fake.SetLatency(0)
	candles, err := planner.FetchOHLCV(context.Background(), fake, "a", "15m", 20)
	require.NoError(t, err)
	assert.Len(t, candles, 1)
	assert.Equal(t, uint32(0), breakers.FailureCount("fake"))
}

func TestFetchOHLCVCircuitOpen(t *testing.T) {
	planner, breakers := newPlanner(t, providers.BreakerConfig{FailureThreshold: 1, FailureWindow: time.Minute, Cooldown: time.Minute})
	fake := providertest.NewFakeAdapter("fake")
	fake.ScriptErrors(providers.ErrServer)

	_, err := planner.FetchOHLCV(context.Background(), fake, "a", "15m", 20)
	assert.ErrorIs(t, err, providers.ErrServer)
	assert.False(t, breakers.Permit("fake"))

	_, err = planner.FetchOHLCV(context.Background(), fake, "a", "15m", 20)
	assert.ErrorIs(t, err, providers.ErrCircuitOpen)
}
