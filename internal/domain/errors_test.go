package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ramiqadoumi/quote-stream/internal/domain"
)

func TestWorkflowNotFoundError(t *testing.T) {
	err := &domain.WorkflowNotFoundError{WorkflowID: "abc-123"}
	if !strings.Contains(err.Error(), "abc-123") {
		t.Errorf("error message should contain workflow ID, got: %q", err.Error())
	}
}

func TestQuoteFetchError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &domain.QuoteFetchError{Attempts: 3, Err: cause}
	msg := err.Error()
	if !strings.Contains(msg, "3") {
		t.Errorf("error message should contain attempt count, got: %q", msg)
	}
	if !strings.Contains(msg, "connection refused") {
		t.Errorf("error message should contain the cause, got: %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("QuoteFetchError should unwrap to its cause")
	}
}

func TestAllErrorTypesImplementError(t *testing.T) {
	// Compile-time interface checks via assignment to error variables.
	var _ error = &domain.WorkflowNotFoundError{}
	var _ error = &domain.QuoteFetchError{}
	var _ error = &domain.StreamUnsupportedError{}
}
