package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bpx-store/bpxd/internal/domain"
)

// PostgresLimiter is a fixed-window limiter whose counters live in Postgres,
// so increments stay atomic per key across daemon instances. Each check is a
// single upsert-and-return statement.
// NewPostgresLimiter should be used to create instances of PostgresLimiter.
type PostgresLimiter struct {
	pool *pgxpool.Pool
}

// NewPostgresLimiter creates a limiter on top of an existing pool.
func NewPostgresLimiter(pool *pgxpool.Pool) (*PostgresLimiter, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	return &PostgresLimiter{pool: pool}, nil
}

// EnsureSchema creates the counter table if it does not exist.
func (l *PostgresLimiter) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rate_limits (
			key          TEXT        NOT NULL,
			window_start TIMESTAMPTZ NOT NULL,
			count        INTEGER     NOT NULL,
			PRIMARY KEY (key, window_start)
		)`)
	if err != nil {
		return fmt.Errorf("failed to create rate_limits table: %w", err)
	}
	return nil
}

// CheckAndIncrement atomically counts one attempt for key within the fixed
// window containing now and reports whether it fits within limit.
func (l *PostgresLimiter) CheckAndIncrement(
	ctx context.Context,
	key string,
	limit int,
	windowSize time.Duration,
) (domain.RateDecision, error) {
	windowStart := time.Now().UTC().Truncate(windowSize)

	var count int
	err := l.pool.QueryRow(ctx, `
		INSERT INTO rate_limits (key, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (key, window_start)
		DO UPDATE SET count = rate_limits.count + 1
		RETURNING count`,
		key, windowStart,
	).Scan(&count)
	if err != nil {
		return domain.RateDecision{}, fmt.Errorf("failed to increment rate limit counter for '%s': %w", key, err)
	}

	// Expired windows are dead weight; sweep them opportunistically.
	_, _ = l.pool.Exec(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, windowStart.Add(-windowSize))

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	return domain.RateDecision{
		Allowed:   count <= limit,
		Remaining: remaining,
		ResetAt:   windowStart.Add(windowSize),
	}, nil
}
