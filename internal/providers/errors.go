package providers

import (
	"context"
	"errors"
	"fmt"
)

// Error classes surfaced by provider adapters. Adapters map their
// provider-specific failures onto exactly one of these; the core never
// inspects provider envelopes.
var (
	ErrRateLimit = errors.New("provider rate limited")
	ErrAuth      = errors.New("provider auth failed")
	ErrServer    = errors.New("provider server error")
	ErrTimeout   = errors.New("provider timeout")
	ErrNotFound  = errors.New("not found")
	ErrParse     = errors.New("response parse error")
	ErrCancelled = errors.New("call cancelled")

	// ErrCircuitOpen is returned by the breaker when a provider's circuit
	// rejects the call outright.
	ErrCircuitOpen = errors.New("circuit open")
)

// Wrap annotates err with provider context while preserving its class.
func Wrap(class error, provider, detail string) error {
	return fmt.Errorf("%s: %s: %w", provider, detail, class)
}

// Countable reports whether an error should count toward the circuit
// breaker. Only server faults, rate limits, and timeouts do; client
// errors, missing data, parse failures, and cancellations do not.
func Countable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrServer), errors.Is(err, ErrRateLimit), errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}

// Normalize maps context errors onto the adapter error taxonomy so
// cancellations never masquerade as provider faults.
func Normalize(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return err
	}
}
