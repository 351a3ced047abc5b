package github

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// RateLimitError means the API quota is exhausted and the reset is further
// away than the client is willing to wait. It aborts the run.
type RateLimitError struct {
	ResetAt time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("GitHub API rate limit exceeded, resets at %s (in %s); wait and re-run",
		e.ResetAt.Format("15:04:05"), time.Until(e.ResetAt).Round(time.Second))
}

// TransientFetchError is a network or server failure that survived the
// client's internal retries. Callers degrade the affected unit of work to an
// unknown result instead of aborting the run.
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s failed after retries: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// MalformedResponseError is an API payload with missing or unusable fields.
// It fails the single operation that produced it and is retried like a
// transient failure.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed API response: %s", e.Reason)
}

// IsRunFatal reports whether err must abort the whole run rather than degrade
// a single piece of work to an unknown result.
func IsRunFatal(err error) bool {
	var rateLimited *RateLimitError
	if errors.As(err, &rateLimited) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
