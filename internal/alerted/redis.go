package alerted

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "tokenscout:alerted:"

// RedisSet persists the alerted set in Redis with native key expiry, so
// suppression survives restarts and is shared between scanner replicas.
type RedisSet struct {
	client redis.UniversalClient
}

// NewRedisSet wraps an existing Redis client.
func NewRedisSet(client redis.UniversalClient) *RedisSet {
	return &RedisSet{client: client}
}

// Contains reports whether the token is still suppressed. Redis errors
// degrade to "not suppressed" so an outage never blocks a cycle; the
// worst case is a duplicate alert.
func (s *RedisSet) Contains(ctx context.Context, tokenKey string) bool {
	n, err := s.client.Exists(ctx, redisKeyPrefix+tokenKey).Result()
	if err != nil {
		log.Warn().Err(err).Str("token", tokenKey).Msg("alerted-set redis lookup failed")
		return false
	}
	return n > 0
}

// Add suppresses the token for ttl using Redis key expiry.
func (s *RedisSet) Add(ctx context.Context, tokenKey string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.client.Set(ctx, redisKeyPrefix+tokenKey, time.Now().Unix(), ttl).Err()
}
