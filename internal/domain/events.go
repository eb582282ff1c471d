package domain

import "time"

// EventType tags a stream event frame.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventProgressUpdate    EventType = "progress_update"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowFailed    EventType = "workflow_failed"
	EventError             EventType = "error"
)

// Event is one SSE frame payload. Variant fields are pointers so that only
// the fields belonging to the event type are serialized, while zero values
// (progress 0, should_exit false) still survive the round trip.
type Event struct {
	Type      EventType `json:"event"`
	Timestamp time.Time `json:"timestamp"`

	// workflow_started
	WorkflowID string `json:"workflow_id,omitempty"`

	// progress_update (all snapshot fields); Status is shared with workflow_failed
	Progress             *int     `json:"progress,omitempty"`
	Status               *Status  `json:"status,omitempty"`
	CurrentSleepDuration *float64 `json:"current_sleep_duration,omitempty"`
	IterationCount       *int     `json:"iteration_count,omitempty"`
	TotalQuotesDelivered *int     `json:"total_quotes_delivered,omitempty"`
	CurrentQuote         *string  `json:"current_quote,omitempty"`
	TotalElapsed         *float64 `json:"total_elapsed,omitempty"`
	IterationElapsed     *float64 `json:"iteration_elapsed,omitempty"`
	ShouldExit           *bool    `json:"should_exit,omitempty"`

	// workflow_completed
	Result *Result `json:"result,omitempty"`

	// error
	Error string `json:"error,omitempty"`
}

// IsTerminal reports whether no further events may follow this one.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventWorkflowCompleted, EventWorkflowFailed, EventError:
		return true
	}
	return false
}

// NewStartedEvent announces a freshly started workflow.
func NewStartedEvent(workflowID string, ts time.Time) Event {
	return Event{Type: EventWorkflowStarted, Timestamp: ts, WorkflowID: workflowID}
}

// NewProgressEvent carries a full snapshot of the workflow state.
func NewProgressEvent(snap Snapshot, ts time.Time) Event {
	return Event{
		Type:                 EventProgressUpdate,
		Timestamp:            ts,
		Progress:             &snap.Progress,
		Status:               &snap.Status,
		CurrentSleepDuration: &snap.CurrentSleepDuration,
		IterationCount:       &snap.IterationCount,
		TotalQuotesDelivered: &snap.TotalQuotesDelivered,
		CurrentQuote:         snap.CurrentQuote,
		TotalElapsed:         &snap.TotalElapsed,
		IterationElapsed:     &snap.IterationElapsed,
		ShouldExit:           &snap.ShouldExit,
	}
}

// NewCompletedEvent carries the final result of a graceful termination.
func NewCompletedEvent(result *Result, ts time.Time) Event {
	return Event{Type: EventWorkflowCompleted, Timestamp: ts, Result: result}
}

// NewFailedEvent reports a failed or cancelled terminal status.
func NewFailedEvent(status Status, ts time.Time) Event {
	return Event{Type: EventWorkflowFailed, Timestamp: ts, Status: &status}
}

// NewErrorEvent reports a bridge-side polling failure that terminated the stream.
func NewErrorEvent(msg string, ts time.Time) Event {
	return Event{Type: EventError, Timestamp: ts, Error: msg}
}
