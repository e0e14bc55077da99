package model

import "fmt"

// InvalidAssignmentError fails a run before any cycle starts. No
// checkpoint is written for it.
type InvalidAssignmentError struct {
	Reason string
}

func (e *InvalidAssignmentError) Error() string {
	return "invalid assignment: " + e.Reason
}

// TransientFetchError is a retryable, source-scoped fetch failure. It
// never aborts a cycle; after the retry budget the source is rejected.
type TransientFetchError struct {
	URL string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// MalformedExtractionError reports a structurally invalid language-model
// response. The adapter retries once, then degrades the source to "no
// findings".
type MalformedExtractionError struct {
	URL    string
	Detail string
}

func (e *MalformedExtractionError) Error() string {
	return fmt.Sprintf("malformed extraction for %s: %s", e.URL, e.Detail)
}

// CollaboratorUnavailableError indicates the language-model service is
// failing. Isolated occurrences reject a single source; N consecutive
// failures escalate the run to the failed state with the last good
// checkpoint intact.
type CollaboratorUnavailableError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Collaborator, e.Err)
}

func (e *CollaboratorUnavailableError) Unwrap() error { return e.Err }

// BudgetExhaustedError is a normal stop condition, not a failure: the
// run still reaches the complete state.
type BudgetExhaustedError struct {
	Budget string
}

func (e *BudgetExhaustedError) Error() string {
	return "budget exhausted: " + e.Budget
}
