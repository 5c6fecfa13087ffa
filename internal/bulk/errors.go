package bulk

import "fmt"

// SubmissionError indicates the bulkOperationRunQuery mutation itself was
// rejected (e.g. a concurrent bulk operation was already running).
type SubmissionError struct {
	Detail string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("bulk: submission failed: %s", e.Detail)
}

// TerminalFailureError is returned when a bulk job reaches a terminal,
// non-successful status.
type TerminalFailureError struct {
	Status     string
	ErrorCode  string
	ObjectCount int
}

func (e *TerminalFailureError) Error() string {
	return fmt.Sprintf("bulk: job ended in status %s (code=%s)", e.Status, e.ErrorCode)
}

// DownloadError wraps a failure to fetch the bulk result file.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("bulk: download failed (%s): %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ParseError is logged-and-skipped by the caller; it never aborts the
// reconstructed sequence.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bulk: parse error at line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
