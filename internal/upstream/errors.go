package upstream

import "fmt"

// AbortReason tags why a query was cancelled. Stop-reason classification
// relies on this tag, never on error message text.
type AbortReason string

const (
	// AbortUserCancel is an explicit cancel request from the client.
	AbortUserCancel AbortReason = "user_cancel"
	// AbortSuperseded means a newer prompt replaced the query.
	AbortSuperseded AbortReason = "superseded"
	// AbortTimeout means the per-query budget elapsed.
	AbortTimeout AbortReason = "timeout"
)

// AbortError reports that a query stopped because its cancellation fired.
type AbortError struct {
	Reason AbortReason
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("query aborted (%s)", e.Reason)
}

// FailureError reports any non-abort failure while running a query or
// draining its stream.
type FailureError struct {
	Op     string
	Detail string
	Err    error
}

func (e *FailureError) Error() string {
	msg := "upstream failure"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FailureError) Unwrap() error {
	return e.Err
}
