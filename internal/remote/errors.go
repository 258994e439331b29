package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the remote service no longer knows the job. Callers
	// treat it as authoritative and prune local state.
	ErrNotFound = errors.New("remote: not found")
	// ErrUnauthorized means the bearer token was rejected.
	ErrUnauthorized = errors.New("remote: unauthorized")
)

// APIError is a non-2xx response from the remote analysis service.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("remote: status %d", e.StatusCode)
}

// SubmissionError wraps a failed job submission.
type SubmissionError struct {
	Kind string // single or batch
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s job: %v", e.Kind, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// CancellationError wraps a failed cancel request.
type CancellationError struct {
	JobID string
	Err   error
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("cancel job %s: %v", e.JobID, e.Err)
}

func (e *CancellationError) Unwrap() error { return e.Err }

// ResultFetchError wraps a failed result retrieval.
type ResultFetchError struct {
	JobID string
	Err   error
}

func (e *ResultFetchError) Error() string {
	return fmt.Sprintf("fetch results for job %s: %v", e.JobID, e.Err)
}

func (e *ResultFetchError) Unwrap() error { return e.Err }
