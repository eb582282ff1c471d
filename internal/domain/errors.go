package domain

import "fmt"

// WorkflowNotFoundError is returned when a workflow ID does not exist.
type WorkflowNotFoundError struct {
	WorkflowID string
}

func (e *WorkflowNotFoundError) Error() string {
	return fmt.Sprintf("workflow not found: %s", e.WorkflowID)
}

// QuoteFetchError is returned when the quote provider fails after
// exhausting all retry attempts. It is fatal to the workflow instance.
type QuoteFetchError struct {
	Attempts int
	Err      error
}

func (e *QuoteFetchError) Error() string {
	return fmt.Sprintf("quote fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *QuoteFetchError) Unwrap() error { return e.Err }

// StreamUnsupportedError is returned when the HTTP response writer cannot
// flush, which makes Server-Sent Events impossible.
type StreamUnsupportedError struct{}

func (e *StreamUnsupportedError) Error() string {
	return "response writer does not support streaming"
}
