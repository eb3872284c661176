package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationFailed is matched by every transport-level failure.
	ErrGenerationFailed = errors.New("generation failed")
	ErrJobCancelled     = errors.New("job cancelled")
	ErrMaxAttempts      = errors.New("max attempts reached waiting for generation")
	ErrNotFound         = errors.New("not found")
)

// TransportError reports a failed remote call: network failure, non-2xx
// response or an undecodable body.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, ErrGenerationFailed)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": unexpected status code: %d", e.StatusCode)
		if e.Body != "" {
			msg += ", body: " + e.Body
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrGenerationFailed
}

// JobFailedError is raised by the polling driver when a job ends as FAILED.
type JobFailedError struct {
	ID      string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.ID)
	}
	return fmt.Sprintf("job %s failed: %s", e.ID, e.Message)
}

// IsNotFound reports whether err is a transport error caused by an unknown job id.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == 404
}
