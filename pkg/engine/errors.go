package engine

import (
	"errors"
	"fmt"
)

// Error codes recorded in state.errors and surfaced through events. Node
// failures never cross the Start/Resume/Cancel boundary as Go errors; only
// call-time misuse does.
const (
	CodeValidation                = "VALIDATION"
	CodeExecutorNotFound          = "EXECUTOR_NOT_FOUND"
	CodeNodeFailed                = "NODE_FAILED"
	CodeNodeTimeout               = "NODE_TIMEOUT"
	CodeMaxNodeIterationsExceeded = "MAX_NODE_ITERATIONS_EXCEEDED"
	CodeMaxExecutionTimeExceeded  = "MAX_EXECUTION_TIME_EXCEEDED"
	CodeMaxIterationsExceeded     = "MAX_ITERATIONS_EXCEEDED"
	CodeInvalidStateForResume     = "INVALID_STATE_FOR_RESUME"
	CodeInvalidStateForPause      = "INVALID_STATE_FOR_PAUSE"
	CodeExecutionNotFound         = "EXECUTION_NOT_FOUND"
	CodeStateSizeExceeded         = "STATE_SIZE_EXCEEDED"
	CodeInternal                  = "INTERNAL"
)

// Error is a coded engine error.
type Error struct {
	Code    string
	NodeID  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s (node %s): %s", e.Code, e.NodeID, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a coded error with a formatted message.
func NewError(code string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the engine error code, defaulting to INTERNAL for plain
// errors.
func CodeOf(err error) string {
	var engineErr *Error
	if errors.As(err, &engineErr) {
		return engineErr.Code
	}

	return CodeInternal
}
