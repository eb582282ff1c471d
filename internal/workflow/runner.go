package workflow

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
	"github.com/ramiqadoumi/quote-stream/internal/quotes"
	redisstore "github.com/ramiqadoumi/quote-stream/internal/redis"
	"github.com/ramiqadoumi/quote-stream/pkg/clock"
	"github.com/ramiqadoumi/quote-stream/pkg/retry"
	"github.com/ramiqadoumi/quote-stream/pkg/telemetry"
)

// Runner executes one quote workflow: an unbounded loop of fetch, deliver,
// and a tick-driven randomized wait. All state is owned by the run loop;
// external callers only read snapshots or send the one-way stop signal.
type Runner struct {
	id       string
	provider quotes.Provider
	logger   *slog.Logger
	clk      clock.Clock
	store    redisstore.SnapshotStore // nil = checkpointing disabled

	fetchTimeout   time.Duration
	maxAttempts    int
	retryBaseDelay time.Duration
	tick           time.Duration
	pickSleep      func() time.Duration

	mu            sync.Mutex
	status        domain.Status
	iterations    int
	delivered     int
	progress      int
	currentQuote  *string
	currentSleep  time.Duration
	shouldExit    bool
	startedAt     time.Time
	iterStartedAt time.Time
	result        *domain.Result
	runErr        error

	done chan struct{}
}

// Option configures a Runner.
type Option func(*Runner)

func WithLogger(l *slog.Logger) Option              { return func(r *Runner) { r.logger = l } }
func WithClock(c clock.Clock) Option                { return func(r *Runner) { r.clk = c } }
func WithFetchTimeout(d time.Duration) Option       { return func(r *Runner) { r.fetchTimeout = d } }
func WithMaxAttempts(n int) Option                  { return func(r *Runner) { r.maxAttempts = n } }
func WithRetryBaseDelay(d time.Duration) Option     { return func(r *Runner) { r.retryBaseDelay = d } }
func WithTickInterval(d time.Duration) Option       { return func(r *Runner) { r.tick = d } }
func WithCheckpoints(s redisstore.SnapshotStore) Option {
	return func(r *Runner) { r.store = s }
}

// WithSleepRange sets the bounds of the randomized per-iteration wait.
func WithSleepRange(min, max time.Duration, rng *rand.Rand) Option {
	return func(r *Runner) {
		r.pickSleep = func() time.Duration {
			if max <= min {
				return min
			}
			return min + time.Duration(rng.Int63n(int64(max-min)+1))
		}
	}
}

// WithSleepPicker overrides the wait-duration selection entirely.
func WithSleepPicker(pick func() time.Duration) Option {
	return func(r *Runner) { r.pickSleep = pick }
}

// NewRunner constructs a Runner for one workflow instance.
func NewRunner(id string, provider quotes.Provider, opts ...Option) *Runner {
	r := &Runner{
		id:             id,
		provider:       provider,
		logger:         slog.Default(),
		clk:            clock.Real{},
		fetchTimeout:   10 * time.Second,
		maxAttempts:    3,
		retryBaseDelay: time.Second,
		tick:           500 * time.Millisecond,
		status:         domain.StatusInitializing,
		done:           make(chan struct{}),
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	WithSleepRange(2*time.Second, 5*time.Second, rng)(r)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the workflow identifier.
func (r *Runner) ID() string { return r.id }

// Done is closed when Run has returned.
func (r *Runner) Done() <-chan struct{} { return r.done }

// Result returns the terminal summary and run error once the workflow has
// terminated. Both are nil while it is still running.
func (r *Runner) Result() (*domain.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.runErr
}

// RequestStop sets the cooperative-cancellation flag. Idempotent,
// non-blocking, and a no-op once the workflow has terminated. The run loop
// observes it at the next tick boundary; the in-flight quote fetch is never
// interrupted.
func (r *Runner) RequestStop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result != nil || r.shouldExit {
		return
	}
	r.shouldExit = true
	r.status = domain.StatusStopping
}

// Snapshot returns a consistent read-only copy of the current state.
// Safe to call concurrently with Run; never blocks on the run loop.
func (r *Runner) Snapshot() domain.Snapshot {
	now := r.clk.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := domain.Snapshot{
		WorkflowID:           r.id,
		Progress:             r.progress,
		Status:               r.status,
		CurrentSleepDuration: r.currentSleep.Seconds(),
		IterationCount:       r.iterations,
		TotalQuotesDelivered: r.delivered,
		CurrentQuote:         r.currentQuote,
		ShouldExit:           r.shouldExit,
		StartedAt:            r.startedAt,
	}
	if !r.startedAt.IsZero() {
		snap.TotalElapsed = now.Sub(r.startedAt).Seconds()
	}
	if !r.iterStartedAt.IsZero() {
		snap.IterationElapsed = now.Sub(r.iterStartedAt).Seconds()
	}
	return snap
}

// Run executes the workflow loop until a stop is requested, the quote
// provider fails permanently, or ctx is cancelled. It returns the terminal
// Result; the error is non-nil only for the failure case.
func (r *Runner) Run(ctx context.Context) (*domain.Result, error) {
	start := r.clk.Now()
	r.mu.Lock()
	r.startedAt = start
	r.iterStartedAt = start
	r.mu.Unlock()

	log := r.logger.With(slog.String("workflow_id", r.id))
	defer close(r.done)

	telemetry.WorkflowsStarted.Inc()
	telemetry.WorkflowsActive.Inc()
	defer telemetry.WorkflowsActive.Dec()

	ctx, span := otel.Tracer("workflow").Start(ctx, "workflow.run")
	defer span.End()
	span.SetAttributes(attribute.String("workflow.id", r.id))

	for !r.exitRequested() {
		if ctx.Err() != nil {
			log.Info("workflow cancelled")
			return r.finish(domain.StatusCancelled, nil), nil
		}

		n := r.beginIteration()
		telemetry.WorkflowIterationsTotal.Inc()

		quote, err := r.fetchQuote(ctx, log)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("workflow cancelled during fetch")
				return r.finish(domain.StatusCancelled, nil), nil
			}
			fetchErr := &domain.QuoteFetchError{Attempts: r.maxAttempts, Err: err}
			log.Error("quote fetch exhausted all attempts",
				slog.Int("iteration", n),
				slog.String("error", err.Error()),
			)
			span.RecordError(fetchErr)
			span.SetStatus(codes.Error, "quote fetch exhausted")
			return r.finish(domain.StatusFailed, fetchErr), fetchErr
		}

		k := r.deliver(quote)
		telemetry.WorkflowQuotesDelivered.Inc()
		log.Info("quote delivered",
			slog.Int("iteration", n),
			slog.Int("total_delivered", k),
		)

		r.wait(ctx, r.pickSleep())
		r.checkpoint(ctx, log)
	}

	result := r.finish(domain.StatusTerminated, nil)
	log.Info("workflow terminated gracefully",
		slog.Int("total_iterations", result.TotalIterations),
		slog.Int("total_quotes_delivered", result.TotalQuotesDelivered),
	)
	return result, nil
}

func (r *Runner) exitRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shouldExit
}

// beginIteration advances the iteration counter and resets per-iteration
// state. Returns the 1-based iteration number.
func (r *Runner) beginIteration() int {
	now := r.clk.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations++
	r.progress = 0
	r.iterStartedAt = now
	r.status = domain.FetchingStatus(r.iterations)
	return r.iterations
}

func (r *Runner) fetchQuote(ctx context.Context, log *slog.Logger) (string, error) {
	var quote string
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: r.maxAttempts,
		BaseDelay:   r.retryBaseDelay,
		OnRetry: func(attempt int, retryErr error) {
			telemetry.WorkflowFetchRetries.Inc()
			log.Warn("quote fetch attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", retryErr.Error()),
			)
		},
	}, func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()
		q, err := r.provider.Fetch(fetchCtx)
		if err != nil {
			return err
		}
		quote = q
		return nil
	})
	return quote, err
}

func (r *Runner) deliver(quote string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentQuote = &quote
	r.delivered++
	// A stop request may have arrived mid-fetch; don't overwrite "stopping".
	if !r.shouldExit {
		r.status = domain.DeliveredStatus(r.delivered)
	}
	return r.delivered
}

// wait sleeps in fixed ticks for d, updating progress each tick. A pending
// stop request or ctx cancellation exits at the next tick boundary. Even a
// zero-length wait reports progress 100 once.
func (r *Runner) wait(ctx context.Context, d time.Duration) {
	start := r.clk.Now()
	r.setSleep(d)

	for {
		elapsed := r.clk.Now().Sub(start)
		if elapsed >= d {
			r.setProgress(100)
			return
		}
		r.setProgress(int(elapsed * 100 / d))

		if r.exitRequested() {
			return
		}

		step := r.tick
		if remaining := d - elapsed; remaining < step {
			step = remaining
		}
		if err := r.clk.Sleep(ctx, step); err != nil {
			return
		}
	}
}

func (r *Runner) setSleep(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentSleep = d
	r.progress = 0
}

func (r *Runner) setProgress(p int) {
	if p > 100 {
		p = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = p
}

// checkpoint writes a best-effort snapshot at the iteration boundary so the
// latest counts survive a process restart.
func (r *Runner) checkpoint(ctx context.Context, log *slog.Logger) {
	if r.store == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	snap := r.Snapshot()
	if err := r.store.SaveSnapshot(saveCtx, &snap); err != nil {
		log.Error("checkpoint snapshot failed", slog.String("error", err.Error()))
	}
}

func (r *Runner) finish(status domain.Status, err error) *domain.Result {
	now := r.clk.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = status
	completed := now
	r.result = &domain.Result{
		WorkflowID:           r.id,
		FinalStatus:          status,
		TotalIterations:      r.iterations,
		TotalQuotesDelivered: r.delivered,
		RuntimeSeconds:       now.Sub(r.startedAt).Seconds(),
		StartedAt:            r.startedAt,
		CompletedAt:          &completed,
	}
	r.runErr = err

	telemetry.WorkflowDurationSeconds.WithLabelValues(string(status)).
		Observe(r.result.RuntimeSeconds)
	return r.result
}
