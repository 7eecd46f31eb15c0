package scheduler

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound reports a job ID with no matching record.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobFinished reports an operation on a job already in a terminal status.
	ErrJobFinished = errors.New("job already finished")
)

// errCancelled signals that processing stopped because a cancel or stop
// request landed. The worker translates it into JobStatusCancelled.
var errCancelled = errors.New("job cancelled")

// InputError reports a submission rejected by validation before it was
// queued.
type InputError struct {
	Field  string
	Detail string
	Err    error
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid job: %s", e.Detail)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

func (e *InputError) Unwrap() error {
	return e.Err
}
