package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
	"github.com/ramiqadoumi/quote-stream/internal/quotes"
	redisstore "github.com/ramiqadoumi/quote-stream/internal/redis"
	"github.com/ramiqadoumi/quote-stream/pkg/clock"
)

// ── fakes ────────────────────────────────────────────────────────────────────

// fakeClock advances instantly on Sleep so tick-driven waits run in no real
// time while elapsed-time arithmetic stays exact.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	onSleep func(d time.Duration)
}

var _ clock.Clock = (*fakeClock)(nil)

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return nil
}

type fakeProvider struct {
	mu      sync.Mutex
	calls   int
	err     error
	onFetch func(call int)
}

var _ quotes.Provider = (*fakeProvider)(nil)

func (p *fakeProvider) Fetch(_ context.Context) (string, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	hook := p.onFetch
	err := p.err
	p.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("quote %d", n), nil
}

func (p *fakeProvider) fetchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// captureStore records every checkpoint snapshot.
type captureStore struct {
	mu    sync.Mutex
	snaps []domain.Snapshot
}

var _ redisstore.SnapshotStore = (*captureStore)(nil)

func (s *captureStore) SaveSnapshot(_ context.Context, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, *snap)
	return nil
}

func (s *captureStore) GetSnapshot(_ context.Context, id string) (*domain.Snapshot, error) {
	return nil, &domain.WorkflowNotFoundError{WorkflowID: id}
}

func (s *captureStore) SaveResult(_ context.Context, _ *domain.Result) error { return nil }

func (s *captureStore) GetResult(_ context.Context, id string) (*domain.Result, error) {
	return nil, &domain.WorkflowNotFoundError{WorkflowID: id}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestRun_StopAfterThreeIterations(t *testing.T) {
	fc := newFakeClock()
	provider := &fakeProvider{}

	r := NewRunner("wf-1", provider,
		WithLogger(discardLogger()),
		WithClock(fc),
		WithTickInterval(500*time.Millisecond),
		WithSleepPicker(func() time.Duration { return 2 * time.Second }),
	)
	// Stop lands while the third quote is being fetched, so the third
	// iteration completes and its wait is skipped.
	provider.onFetch = func(n int) {
		if n == 3 {
			r.RequestStop()
		}
	}

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "wf-1", result.WorkflowID)
	assert.Equal(t, domain.StatusTerminated, result.FinalStatus)
	assert.Equal(t, 3, result.TotalIterations)
	assert.Equal(t, 3, result.TotalQuotesDelivered)
	require.NotNil(t, result.CompletedAt)
	// Two full 2s waits; the third was skipped by the stop request.
	assert.InDelta(t, 4.0, result.RuntimeSeconds, 0.001)

	select {
	case <-r.Done():
	default:
		t.Fatal("Done must be closed once Run returns")
	}

	gotResult, gotErr := r.Result()
	assert.Same(t, result, gotResult)
	assert.NoError(t, gotErr)

	snap := r.Snapshot()
	assert.Equal(t, domain.StatusTerminated, snap.Status)
	assert.True(t, snap.ShouldExit)
}

func TestRun_ProgressBoundedAndMonotonicPerIteration(t *testing.T) {
	fc := newFakeClock()
	provider := &fakeProvider{}

	r := NewRunner("wf-progress", provider,
		WithLogger(discardLogger()),
		WithClock(fc),
		WithTickInterval(250*time.Millisecond),
		WithSleepPicker(func() time.Duration { return time.Second }),
	)
	provider.onFetch = func(n int) {
		if n == 3 {
			r.RequestStop()
		}
	}

	var mu sync.Mutex
	var seen []domain.Snapshot
	fc.onSleep = func(time.Duration) {
		snap := r.Snapshot()
		mu.Lock()
		seen = append(seen, snap)
		mu.Unlock()
	}

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)

	lastIter, lastProgress := 0, -1
	for _, s := range seen {
		assert.GreaterOrEqual(t, s.Progress, 0)
		assert.LessOrEqual(t, s.Progress, 100)
		assert.LessOrEqual(t, s.TotalQuotesDelivered, s.IterationCount,
			"delivered count can never exceed iteration count")
		if s.IterationCount == lastIter {
			assert.GreaterOrEqual(t, s.Progress, lastProgress,
				"progress must not move backwards within an iteration")
		}
		lastIter, lastProgress = s.IterationCount, s.Progress
	}
}

func TestRun_ZeroWaitStillReportsFullProgress(t *testing.T) {
	fc := newFakeClock()
	provider := &fakeProvider{}

	r := NewRunner("wf-zero", provider,
		WithLogger(discardLogger()),
		WithClock(fc),
		WithSleepPicker(func() time.Duration { return 0 }),
	)
	provider.onFetch = func(n int) {
		if n == 1 {
			r.RequestStop()
		}
	}

	result, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalIterations)
	assert.Equal(t, 100, r.Snapshot().Progress)
}

func TestRun_CheckpointsAtIterationBoundaries(t *testing.T) {
	fc := newFakeClock()
	provider := &fakeProvider{}
	store := &captureStore{}

	r := NewRunner("wf-ckpt", provider,
		WithLogger(discardLogger()),
		WithClock(fc),
		WithCheckpoints(store),
		WithTickInterval(500*time.Millisecond),
		WithSleepPicker(func() time.Duration { return time.Second }),
	)
	provider.onFetch = func(n int) {
		if n == 2 {
			r.RequestStop()
		}
	}

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.snaps, 2)
	first := store.snaps[0]
	assert.Equal(t, "wf-ckpt", first.WorkflowID)
	assert.Equal(t, 1, first.IterationCount)
	assert.Equal(t, 100, first.Progress, "a completed wait checkpoints at full progress")
}

func TestRun_FetchFailureExhaustsRetries(t *testing.T) {
	fc := newFakeClock()
	provider := &fakeProvider{err: errors.New("quote api down")}

	r := NewRunner("wf-fail", provider,
		WithLogger(discardLogger()),
		WithClock(fc),
		WithMaxAttempts(3),
		WithRetryBaseDelay(time.Millisecond),
	)

	result, err := r.Run(context.Background())
	require.Error(t, err)

	var fetchErr *domain.QuoteFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 3, fetchErr.Attempts)
	assert.Equal(t, 3, provider.fetchCount())

	require.NotNil(t, result)
	assert.Equal(t, domain.StatusFailed, result.FinalStatus)
	assert.Equal(t, 1, result.TotalIterations)
	assert.Equal(t, 0, result.TotalQuotesDelivered)

	gotResult, gotErr := r.Result()
	assert.Same(t, result, gotResult)
	assert.ErrorAs(t, gotErr, &fetchErr)
}

func TestRun_CancelledContext(t *testing.T) {
	fc := newFakeClock()
	r := NewRunner("wf-cancel", &fakeProvider{},
		WithLogger(discardLogger()),
		WithClock(fc),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, result.FinalStatus)
	assert.Equal(t, 0, result.TotalIterations)
}

func TestRun_StopBeforeRunTerminatesImmediately(t *testing.T) {
	fc := newFakeClock()
	provider := &fakeProvider{}
	r := NewRunner("wf-early", provider,
		WithLogger(discardLogger()),
		WithClock(fc),
	)

	r.RequestStop()
	result, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.StatusTerminated, result.FinalStatus)
	assert.Equal(t, 0, result.TotalIterations)
	assert.Equal(t, 0, provider.fetchCount())
}

func TestRequestStop_IdempotentAndTerminalNoop(t *testing.T) {
	fc := newFakeClock()
	r := NewRunner("wf-idem", &fakeProvider{},
		WithLogger(discardLogger()),
		WithClock(fc),
	)

	r.RequestStop()
	r.RequestStop()
	assert.Equal(t, domain.StatusStopping, r.Snapshot().Status)

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	// Terminal state is final; a late stop must not resurrect "stopping".
	r.RequestStop()
	assert.Equal(t, domain.StatusTerminated, r.Snapshot().Status)
}

func TestSnapshot_WhileRunningReflectsLiveState(t *testing.T) {
	fc := newFakeClock()
	provider := &fakeProvider{}

	r := NewRunner("wf-live", provider,
		WithLogger(discardLogger()),
		WithClock(fc),
		WithTickInterval(500*time.Millisecond),
		WithSleepPicker(func() time.Duration { return 2 * time.Second }),
	)

	var midWait domain.Snapshot
	captured := false
	fc.onSleep = func(time.Duration) {
		if !captured {
			midWait = r.Snapshot()
			captured = true
		}
		r.RequestStop()
	}

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.True(t, captured)
	assert.Equal(t, "wf-live", midWait.WorkflowID)
	assert.Equal(t, 1, midWait.IterationCount)
	assert.Equal(t, 1, midWait.TotalQuotesDelivered)
	require.NotNil(t, midWait.CurrentQuote)
	assert.Equal(t, "quote 1", *midWait.CurrentQuote)
	assert.Equal(t, domain.DeliveredStatus(1), midWait.Status)
	assert.InDelta(t, 2.0, midWait.CurrentSleepDuration, 0.001)
}
