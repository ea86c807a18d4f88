package providers

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// GateConfig bounds outbound traffic to one provider: at most
// MaxConcurrent in-flight calls, with at least MinSpacing between the
// start of consecutive calls.
type GateConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	MinSpacing    time.Duration `yaml:"min_spacing"`
}

// DefaultGateConfigs carries the recommended limits per provider class.
// Callers override per provider through configuration.
var DefaultGateConfigs = map[string]GateConfig{
	"premium":  {MaxConcurrent: 2, MinSpacing: 300 * time.Millisecond},
	"standard": {MaxConcurrent: 3, MinSpacing: 100 * time.Millisecond},
	"free":     {MaxConcurrent: 5, MinSpacing: 50 * time.Millisecond},
}

// Gate is the per-provider rate-limit gate. Acquire blocks until both a
// concurrency permit and the spacing interval are available; the returned
// release func must be called when the outbound call completes.
type Gate struct {
	mu        sync.RWMutex
	providers map[string]*gateState
	fallback  GateConfig
}

type gateState struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// NewGate creates a gate with no providers registered; unknown providers
// get the standard-class defaults on first use.
func NewGate() *Gate {
	return &Gate{
		providers: make(map[string]*gateState),
		fallback:  DefaultGateConfigs["standard"],
	}
}

// Register configures limits for a provider, replacing any prior state.
func (g *Gate) Register(provider string, cfg GateConfig) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = g.fallback.MaxConcurrent
	}
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = g.fallback.MinSpacing
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[provider] = newGateState(cfg)
}

func newGateState(cfg GateConfig) *gateState {
	// Token bucket with burst 1 yields exactly the minimum inter-call
	// spacing between grants.
	return &gateState{
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		limiter: rate.NewLimiter(rate.Every(cfg.MinSpacing), 1),
	}
}

func (g *Gate) state(provider string) *gateState {
	g.mu.RLock()
	st, ok := g.providers[provider]
	g.mu.RUnlock()
	if ok {
		return st
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok = g.providers[provider]; ok {
		return st
	}
	log.Warn().Str("provider", provider).Msg("unregistered provider, applying standard gate limits")
	st = newGateState(g.fallback)
	g.providers[provider] = st
	return st
}

// Acquire obtains a permit for the provider, suspending on the
// concurrency bound and the spacing interval. The context aborts the
// wait; release is safe to call exactly once.
func (g *Gate) Acquire(ctx context.Context, provider string) (release func(), err error) {
	st := g.state(provider)

	select {
	case st.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, Normalize(ctx.Err())
	}

	if err := st.limiter.Wait(ctx); err != nil {
		<-st.sem
		return nil, Normalize(err)
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-st.sem })
	}, nil
}

// InFlight reports current held permits for a provider, for status pages.
func (g *Gate) InFlight(provider string) int {
	return len(g.state(provider).sem)
}
