package alerted

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// SQLSet persists the alerted set in Postgres for hosts that already run
// one. Single writer, append-mostly: rows are upserted on alert and
// filtered by expiry on read.
type SQLSet struct {
	db *sqlx.DB
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS alerted_tokens (
    token_key  TEXT PRIMARY KEY,
    alerted_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
)`

// NewSQLSet wraps an open sqlx handle and ensures the table exists.
func NewSQLSet(db *sqlx.DB) (*SQLSet, error) {
	if _, err := db.Exec(sqlSchema); err != nil {
		return nil, err
	}
	return &SQLSet{db: db}, nil
}

// Contains reports whether the token has an unexpired suppression row.
// Database errors degrade to "not suppressed", same policy as the Redis
// store.
func (s *SQLSet) Contains(ctx context.Context, tokenKey string) bool {
	var expires time.Time
	err := s.db.GetContext(ctx, &expires,
		`SELECT expires_at FROM alerted_tokens WHERE token_key = $1`, tokenKey)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false
	case err != nil:
		log.Warn().Err(err).Str("token", tokenKey).Msg("alerted-set sql lookup failed")
		return false
	}
	return time.Now().Before(expires)
}

// Add upserts a suppression row for the token.
func (s *SQLSet) Add(ctx context.Context, tokenKey string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerted_tokens (token_key, alerted_at, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (token_key) DO UPDATE SET alerted_at = $2, expires_at = $3`,
		tokenKey, now, now.Add(ttl))
	return err
}

// Prune deletes expired rows; intended for a periodic maintenance call.
func (s *SQLSet) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerted_tokens WHERE expires_at < $1`, time.Now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
