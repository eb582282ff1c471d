//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
	redisstore "github.com/ramiqadoumi/quote-stream/internal/redis"
)

// newRedisClient returns a client connected to the test container and flushes
// the database on test cleanup so tests don't interfere with each other.
func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	t.Cleanup(func() {
		client.FlushDB(context.Background()) //nolint:errcheck
		client.Close()                       //nolint:errcheck
	})
	return client
}

func TestRedis_SnapshotRoundTrip(t *testing.T) {
	store := redisstore.NewSnapshotStore(newRedisClient(t))
	ctx := context.Background()

	quote := "deleted code is debugged code"
	snap := &domain.Snapshot{
		WorkflowID:           "wf-int-1",
		Progress:             75,
		Status:               domain.DeliveredStatus(2),
		CurrentSleepDuration: 4,
		IterationCount:       2,
		TotalQuotesDelivered: 2,
		CurrentQuote:         &quote,
		StartedAt:            time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.GetSnapshot(ctx, "wf-int-1")
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestRedis_GetSnapshot_NotFound(t *testing.T) {
	store := redisstore.NewSnapshotStore(newRedisClient(t))

	_, err := store.GetSnapshot(context.Background(), "does-not-exist")
	require.Error(t, err)

	var notFound *domain.WorkflowNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "does-not-exist", notFound.WorkflowID)
}

func TestRedis_ResultRoundTrip(t *testing.T) {
	store := redisstore.NewSnapshotStore(newRedisClient(t))
	ctx := context.Background()

	completed := time.Now().UTC().Truncate(time.Second)
	result := &domain.Result{
		WorkflowID:           "wf-int-2",
		FinalStatus:          domain.StatusTerminated,
		TotalIterations:      6,
		TotalQuotesDelivered: 6,
		RuntimeSeconds:       21.5,
		StartedAt:            completed.Add(-21 * time.Second),
		CompletedAt:          &completed,
	}
	require.NoError(t, store.SaveResult(ctx, result))

	got, err := store.GetResult(ctx, "wf-int-2")
	require.NoError(t, err)
	assert.Equal(t, result, got)
}

func TestRedis_CheckpointOverwrite(t *testing.T) {
	store := redisstore.NewSnapshotStore(newRedisClient(t))
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		snap := &domain.Snapshot{
			WorkflowID:     "wf-int-3",
			Progress:       100,
			IterationCount: i,
			Status:         domain.DeliveredStatus(i),
		}
		require.NoError(t, store.SaveSnapshot(ctx, snap))
	}

	got, err := store.GetSnapshot(ctx, "wf-int-3")
	require.NoError(t, err)
	assert.Equal(t, 3, got.IterationCount, "the latest checkpoint wins")
}

// ── Rate limiter ─────────────────────────────────────────────────────────────

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	limiter := redisstore.NewRateLimiter(newRedisClient(t), 5, time.Second)
	ctx := context.Background()

	for i := range 5 {
		ok, err := limiter.Allow(ctx, "within-limit")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	limiter := redisstore.NewRateLimiter(newRedisClient(t), 3, time.Second)
	ctx := context.Background()

	for range 3 {
		ok, err := limiter.Allow(ctx, "over-limit")
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Allow(ctx, "over-limit")
	require.NoError(t, err)
	assert.False(t, ok, "4th request should be rate-limited")
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	// Use a short window so the test doesn't take too long.
	window := 200 * time.Millisecond
	limiter := redisstore.NewRateLimiter(newRedisClient(t), 2, window)
	ctx := context.Background()

	// Fill the window.
	for range 2 {
		ok, err := limiter.Allow(ctx, "expiry-key")
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Third request in the same window should be blocked.
	ok, err := limiter.Allow(ctx, "expiry-key")
	require.NoError(t, err)
	assert.False(t, ok, "should be blocked within window")

	// After the window expires, the limit resets.
	time.Sleep(window + 50*time.Millisecond)

	ok, err = limiter.Allow(ctx, "expiry-key")
	require.NoError(t, err)
	assert.True(t, ok, "should be allowed after window expires")
}
