package streamer

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
	"github.com/ramiqadoumi/quote-stream/pkg/telemetry"
)

// defaultPollInterval is the cadence at which a stream polls its workflow.
const defaultPollInterval = 500 * time.Millisecond

// Handle is the narrow view of a running workflow the bridge polls. It is
// a consumer of the workflow, never a driver: reads and the stop signal are
// the only operations that cross this boundary.
type Handle interface {
	ID() string
	Snapshot() domain.Snapshot
	Done() <-chan struct{}
	Result() (*domain.Result, error)
}

// EmitFunc delivers one event frame to the consumer. A non-nil error means
// the consumer is gone and the stream must end.
type EmitFunc func(domain.Event) error

// Bridge converts a workflow's pull-based snapshots into an ordered push
// stream of events: Started, zero or more ProgressUpdates, then exactly one
// terminal event. Each Stream call owns its own suppression state, so
// concurrent streams never interfere.
type Bridge struct {
	poll   time.Duration
	logger *slog.Logger
}

// NewBridge creates a Bridge polling at the given interval (0 = default).
func NewBridge(poll time.Duration, logger *slog.Logger) *Bridge {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Bridge{poll: poll, logger: logger}
}

// Stream polls h until it reaches a terminal state, emitting events via emit.
// A ProgressUpdate is emitted only when the numeric progress value changed
// since the last emitted frame. Returns nil after the terminal event, or the
// first emit/ctx error. Ending the stream never stops the workflow.
func (b *Bridge) Stream(ctx context.Context, h Handle, emit EmitFunc) error {
	send := func(ev domain.Event) error {
		telemetry.StreamEventsEmitted.WithLabelValues(string(ev.Type)).Inc()
		return emit(ev)
	}

	if err := send(domain.NewStartedEvent(h.ID(), time.Now().UTC())); err != nil {
		return err
	}

	lastProgress := -1
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("stream consumer disconnected",
				slog.String("workflow_id", h.ID()))
			return ctx.Err()

		case <-h.Done():
			return b.emitTerminal(h, send)

		case <-ticker.C:
			// Re-check terminality so no progress frame follows the
			// workflow's termination.
			select {
			case <-h.Done():
				return b.emitTerminal(h, send)
			default:
			}

			snap := h.Snapshot()
			if snap.Progress == lastProgress {
				continue
			}
			lastProgress = snap.Progress
			if err := send(domain.NewProgressEvent(snap, time.Now().UTC())); err != nil {
				return err
			}
		}
	}
}

// emitTerminal translates the workflow's terminal state into exactly one
// closing event.
func (b *Bridge) emitTerminal(h Handle, send EmitFunc) error {
	result, runErr := h.Result()
	now := time.Now().UTC()

	switch {
	case result == nil:
		// The handle yielded neither a result nor a status: a polling
		// failure that terminates this stream only.
		msg := "workflow terminated without a result"
		if runErr != nil {
			msg = runErr.Error()
		}
		return send(domain.NewErrorEvent(msg, now))

	case result.FinalStatus == domain.StatusTerminated:
		return send(domain.NewCompletedEvent(result, now))

	default:
		return send(domain.NewFailedEvent(result.FinalStatus, now))
	}
}
