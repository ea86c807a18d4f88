package providers

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig defines the per-provider circuit breaker parameters.
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold"` // consecutive failures to trip
	FailureWindow    time.Duration `yaml:"failure_window"`    // closed-state count reset interval
	Cooldown         time.Duration `yaml:"cooldown"`          // open duration before half-open probe
}

// DefaultBreakerConfig is applied to providers without explicit settings.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 3,
	FailureWindow:    time.Minute,
	Cooldown:         30 * time.Second,
}

// BreakerSet manages one circuit breaker per provider. Failures that are
// not Countable pass through without moving the breaker; open circuits
// reject calls with ErrCircuitOpen.
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
	configs  map[string]BreakerConfig
	tripped  map[string]bool // providers whose breaker opened at least once
	// consecutive countable failures, tracked independently because
	// gobreaker clears its counts on every state change and the
	// controller needs the number for adaptive stage widths
	failures map[string]uint32
}

// NewBreakerSet creates an empty breaker set; unknown providers get
// DefaultBreakerConfig on first use.
func NewBreakerSet() *BreakerSet {
	return &BreakerSet{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  make(map[string]BreakerConfig),
		tripped:  make(map[string]bool),
		failures: make(map[string]uint32),
	}
}

// Register configures a provider's breaker, replacing any prior state.
func (bs *BreakerSet) Register(provider string, cfg BreakerConfig) {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = DefaultBreakerConfig.FailureWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig.Cooldown
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.configs[provider] = cfg
	bs.breakers[provider] = bs.newBreaker(provider, cfg)
}

func (bs *BreakerSet) newBreaker(provider string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1, // single half-open probe
		Interval:    cfg.FailureWindow,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				bs.markTripped(name)
			}
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}

func (bs *BreakerSet) markTripped(provider string) {
	bs.mu.Lock()
	bs.tripped[provider] = true
	bs.mu.Unlock()
}

func (bs *BreakerSet) breaker(provider string) *gobreaker.CircuitBreaker {
	bs.mu.RLock()
	cb, ok := bs.breakers[provider]
	bs.mu.RUnlock()
	if ok {
		return cb
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if cb, ok = bs.breakers[provider]; ok {
		return cb
	}
	cb = bs.newBreaker(provider, DefaultBreakerConfig)
	bs.breakers[provider] = cb
	bs.configs[provider] = DefaultBreakerConfig
	return cb
}

// uncounted shuttles an error past gobreaker's failure accounting when
// the error class must not move the breaker.
type uncounted struct{ err error }

// Execute runs fn under the provider's breaker. Open circuits return
// ErrCircuitOpen without invoking fn. Errors that are not Countable are
// reported to gobreaker as success but still returned to the caller.
func (bs *BreakerSet) Execute(provider string, fn func() error) error {
	cb := bs.breaker(provider)

	res, err := cb.Execute(func() (interface{}, error) {
		callErr := fn()
		if callErr != nil && !Countable(callErr) {
			return uncounted{callErr}, nil
		}
		return nil, callErr
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ErrCircuitOpen
		}
		bs.recordFailure(provider)
		return err
	}
	if u, ok := res.(uncounted); ok {
		return u.err
	}
	bs.recordSuccess(provider)
	return nil
}

func (bs *BreakerSet) recordFailure(provider string) {
	bs.mu.Lock()
	bs.failures[provider]++
	bs.mu.Unlock()
}

func (bs *BreakerSet) recordSuccess(provider string) {
	bs.mu.Lock()
	bs.failures[provider] = 0
	bs.mu.Unlock()
}

// Permit reports whether a call to the provider may proceed right now.
func (bs *BreakerSet) Permit(provider string) bool {
	return bs.breaker(provider).State() != gobreaker.StateOpen
}

// State returns the current breaker state name for a provider.
func (bs *BreakerSet) State(provider string) string {
	return bs.breaker(provider).State().String()
}

// FailureCount returns the provider's consecutive countable failure
// count. The controller uses it to narrow the expensive stage under
// pressure.
func (bs *BreakerSet) FailureCount(provider string) uint32 {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.failures[provider]
}

// Tripped reports whether the provider's breaker opened at any point
// since creation, for the cycle cost report.
func (bs *BreakerSet) Tripped(provider string) bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.tripped[provider]
}

// TrippedProviders returns all providers whose breaker has opened.
func (bs *BreakerSet) TrippedProviders() map[string]bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	out := make(map[string]bool, len(bs.tripped))
	for p, v := range bs.tripped {
		out[p] = v
	}
	return out
}
