package domain

import (
	"fmt"
	"time"
)

// Status is a human-readable phase label for a workflow.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusStopping     Status = "stopping"
	StatusTerminated   Status = "gracefully_terminated"
	StatusFailed       Status = "failed"
	StatusCancelled    Status = "cancelled"
)

// FetchingStatus labels the n-th iteration while its quote fetch is in flight.
func FetchingStatus(n int) Status {
	return Status(fmt.Sprintf("iteration_%d_fetching_quote", n))
}

// DeliveredStatus labels the state right after the k-th quote was delivered.
func DeliveredStatus(k int) Status {
	return Status(fmt.Sprintf("delivered_quote_%d", k))
}

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusTerminated || s == StatusFailed || s == StatusCancelled
}

// Snapshot is a consistent, read-only copy of a running workflow's state.
// Field names match the progress_update SSE frame.
type Snapshot struct {
	WorkflowID           string    `json:"workflow_id"`
	Progress             int       `json:"progress"`
	Status               Status    `json:"status"`
	CurrentSleepDuration float64   `json:"current_sleep_duration"`
	IterationCount       int       `json:"iteration_count"`
	TotalQuotesDelivered int       `json:"total_quotes_delivered"`
	CurrentQuote         *string   `json:"current_quote"`
	TotalElapsed         float64   `json:"total_elapsed"`
	IterationElapsed     float64   `json:"iteration_elapsed"`
	ShouldExit           bool      `json:"should_exit"`
	StartedAt            time.Time `json:"started_at"`
}

// Result is the immutable terminal summary of one workflow run.
type Result struct {
	WorkflowID           string     `json:"workflow_id"`
	FinalStatus          Status     `json:"final_status"`
	TotalIterations      int        `json:"total_iterations"`
	TotalQuotesDelivered int        `json:"total_quotes_delivered"`
	RuntimeSeconds       float64    `json:"runtime_seconds"`
	StartedAt            time.Time  `json:"started_at"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}
