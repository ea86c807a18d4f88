// Package alerted tracks which tokens have already been surfaced, so a
// token is not re-alerted within its TTL. The pipeline only reads the
// set during a cycle; the host adds keys after delivering alerts.
package alerted

import (
	"context"
	"time"
)

// DefaultTTL is how long a token stays suppressed after alerting.
const DefaultTTL = 7 * 24 * time.Hour

// Set is the alerted-set contract the pipeline consumes.
type Set interface {
	Contains(ctx context.Context, tokenKey string) bool
	Add(ctx context.Context, tokenKey string, ttl time.Duration) error
}
