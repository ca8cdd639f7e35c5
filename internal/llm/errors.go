package llm

import (
	"errors"
	"fmt"

	"github.com/ent0n29/isoauditor/internal/reliability"
)

var (
	// ErrUpstream marks any failed model call.
	ErrUpstream = errors.New("language model call failed")
	// ErrUpstreamTimeout marks a model call that exceeded its deadline.
	ErrUpstreamTimeout = errors.New("language model call timed out")
)

// UpstreamError carries provider details for a failed call. It matches ErrUpstream.
type UpstreamError struct {
	Provider  string
	Status    int
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

func upstreamErr(provider string, status int, err error) error {
	return &UpstreamError{
		Provider:  provider,
		Status:    status,
		Retryable: reliability.IsRetryableHTTPStatus(status),
		Err:       err,
	}
}
