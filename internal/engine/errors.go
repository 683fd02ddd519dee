package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrStorageExhausted is returned by an Allocator that cannot provide
	// storage for a variable backup record.
	ErrStorageExhausted = errors.New("variable backup storage exhausted")

	// ErrRecordConsumed is returned when a backup record is restored twice.
	ErrRecordConsumed = errors.New("variable backup record already restored")

	// ErrSnapshotOrder is returned when a context snapshot is restored out of
	// LIFO order.
	ErrSnapshotOrder = errors.New("context snapshot restored out of order")
)

// RuntimeError represents a dispatch that did not run the routine, or a
// violated nesting invariant.
//
// Drops are not errors from the host's point of view; RuntimeError exists
// so that logs, observers and tests can carry a structured reason.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Routine is the target routine of the event.
	Routine string

	// EventID identifies the host event.
	EventID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeAdmissionDenied: the global gate refused the event.
	ErrCodeAdmissionDenied RuntimeErrorCode = "ADMISSION_DENIED"

	// ErrCodeInstanceLimit: the routine already runs MaxInstances times.
	ErrCodeInstanceLimit RuntimeErrorCode = "INSTANCE_LIMIT"

	// ErrCodeUnknownRoutine: the routine table has no such routine.
	ErrCodeUnknownRoutine RuntimeErrorCode = "UNKNOWN_ROUTINE"

	// ErrCodeBackupExhausted: variable backup storage could not be obtained.
	ErrCodeBackupExhausted RuntimeErrorCode = "BACKUP_EXHAUSTED"

	// ErrCodeSnapshotOrder: a context snapshot was popped out of order.
	ErrCodeSnapshotOrder RuntimeErrorCode = "SNAPSHOT_ORDER"

	// ErrCodeRecordConsumed: a backup record was restored twice.
	ErrCodeRecordConsumed RuntimeErrorCode = "RECORD_CONSUMED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Routine != "" && e.EventID != "" {
		msg = fmt.Sprintf("%s (routine=%s, event=%s)", msg, e.Routine, e.EventID)
	} else if e.Routine != "" {
		msg = fmt.Sprintf("%s (routine=%s)", msg, e.Routine)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewDropError builds the RuntimeError that describes a dropped event.
func NewDropError(reason Reason, ev Event, depth int) *RuntimeError {
	re := &RuntimeError{
		Routine: ev.Routine,
		EventID: ev.ID,
		Details: map[string]string{
			"reason": string(reason),
			"depth":  fmt.Sprintf("%d", depth),
		},
	}
	switch reason {
	case ReasonUnknownRoutine:
		re.Code = ErrCodeUnknownRoutine
		re.Message = "no such routine"
	case ReasonInstanceLimit:
		re.Code = ErrCodeInstanceLimit
		re.Message = "routine is already running its maximum number of instances"
	case ReasonBackupExhausted:
		re.Code = ErrCodeBackupExhausted
		re.Message = "could not back up routine variables"
		re.Err = ErrStorageExhausted
	default:
		re.Code = ErrCodeAdmissionDenied
		re.Message = fmt.Sprintf("admission denied: %s", reason)
	}
	return re
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsAdmissionDenied returns true if err is a global admission denial.
// Uses errors.As to handle wrapped errors.
func IsAdmissionDenied(err error) bool {
	return hasCode(err, ErrCodeAdmissionDenied)
}

// IsInstanceLimit returns true if err is a per-routine instance denial.
func IsInstanceLimit(err error) bool {
	return hasCode(err, ErrCodeInstanceLimit)
}

// IsBackupExhausted returns true if err reports backup storage exhaustion.
// Matches both the RuntimeError code and the bare ErrStorageExhausted sentinel.
func IsBackupExhausted(err error) bool {
	return hasCode(err, ErrCodeBackupExhausted) || errors.Is(err, ErrStorageExhausted)
}

// IsUnknownRoutine returns true if err reports a missing routine.
func IsUnknownRoutine(err error) bool {
	return hasCode(err, ErrCodeUnknownRoutine)
}
