package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter reports a batch that is not a usable sequence of jobs.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrMaxBatchSizeExceeded reports a batch longer than the backend accepts per call.
	ErrMaxBatchSizeExceeded = errors.New("max job batch size exceeded")
	// ErrInvalidJob reports a job handle that was not produced by the adapter it was given to.
	ErrInvalidJob = errors.New("job was not produced by this queue")
)

// LockAcquisitionError is returned by GetNext when a retrieved job could not
// be claimed. The job has already been moved to the error queue.
type LockAcquisitionError struct {
	LockID     string
	LockerInfo string
}

func (e *LockAcquisitionError) Error() string {
	return fmt.Sprintf("job lock cannot be acquired, lock id: %s, locker: %s", e.LockID, e.LockerInfo)
}

// ValidateBatch checks a batch before any backend call is issued. A limit of
// zero or less means the backend has no ceiling. A nil batch is always
// rejected; an empty one is rejected only by backends with a ceiling, whose
// batch call needs at least one entry.
func ValidateBatch(bodies []string, limit int) error {
	if bodies == nil {
		return fmt.Errorf("%w: jobs param is nil", ErrInvalidParameter)
	}
	if limit > 0 && len(bodies) == 0 {
		return fmt.Errorf("%w: jobs param is empty", ErrInvalidParameter)
	}
	if limit > 0 && len(bodies) > limit {
		return fmt.Errorf("%w: got %d jobs, supported batch size is %d", ErrMaxBatchSizeExceeded, len(bodies), limit)
	}
	return nil
}
