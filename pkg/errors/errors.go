package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Timetable generation errors. Precondition codes cover catalog
// misconfiguration detected before solving; the conflict codes cover
// legitimate solver outcomes the caller is expected to act on.
var (
	ErrNoSubjects          = New("NO_SUBJECTS", http.StatusPreconditionFailed, "no subjects configured for the school")
	ErrNoTeachers          = New("NO_TEACHERS", http.StatusPreconditionFailed, "no active teachers configured for the school")
	ErrQuotaConfig         = New("QUOTA_CONFIG_INVALID", http.StatusPreconditionFailed, "subject quotas do not fit the weekly grid")
	ErrTimetableInfeasible = New("TIMETABLE_INFEASIBLE", http.StatusConflict, "no conflict-free timetable exists for the requested scope")
	ErrNoAvailableTeacher  = New("NO_AVAILABLE_TEACHER", http.StatusConflict, "every teacher is already booked for a required slot")
	ErrSolveBudget         = New("SOLVE_BUDGET_EXCEEDED", http.StatusServiceUnavailable, "timetable solve exceeded its time budget")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
