package ratelimit

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// These tests need a live database; point BPXD_TEST_POSTGRES_DSN at one to
// run them. Keys are unique per run so repeated runs never interfere.
func newTestPostgresLimiter(t *testing.T) *PostgresLimiter {
	t.Helper()

	dsn := os.Getenv("BPXD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BPXD_TEST_POSTGRES_DSN not set")
	}

	pool, err := pgxpool.New(t.Context(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	l, err := NewPostgresLimiter(pool)
	require.NoError(t, err)
	require.NoError(t, l.EnsureSchema(t.Context()))

	return l
}

func TestPostgresLimiter_CheckAndIncrement(t *testing.T) {
	t.Parallel()

	l := newTestPostgresLimiter(t)
	key := "sync:" + uuid.NewString()

	first, err := l.CheckAndIncrement(t.Context(), key, 2, time.Hour)
	require.NoError(t, err)
	require.True(t, first.Allowed)
	require.Equal(t, 1, first.Remaining)

	second, err := l.CheckAndIncrement(t.Context(), key, 2, time.Hour)
	require.NoError(t, err)
	require.True(t, second.Allowed)
	require.Zero(t, second.Remaining)

	// The upsert path: the third check hits ON CONFLICT and trips the limit.
	third, err := l.CheckAndIncrement(t.Context(), key, 2, time.Hour)
	require.NoError(t, err)
	require.False(t, third.Allowed)
	require.Zero(t, third.Remaining)
	require.True(t, third.ResetAt.After(time.Now().UTC()))
}

func TestPostgresLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := newTestPostgresLimiter(t)

	exhausted := "submit:" + uuid.NewString()
	for range 2 {
		_, err := l.CheckAndIncrement(t.Context(), exhausted, 1, time.Hour)
		require.NoError(t, err)
	}

	fresh, err := l.CheckAndIncrement(t.Context(), "submit:"+uuid.NewString(), 1, time.Hour)
	require.NoError(t, err)
	require.True(t, fresh.Allowed)
}
