package waiter

import "errors"

var (
	// ErrTimeout is returned when a configured timeout elapses before anything else settles a wait.
	ErrTimeout = errors.New("wait timeout")

	// ErrEndedWithoutMatch is returned by WaitOutput when the process exits before a matching line was emitted.
	ErrEndedWithoutMatch = errors.New("process ended without pattern found in output")
)

// ProcessError is returned when the process reports an operational error, such as a failure to start.
type ProcessError struct {
	// Msg replaces the default message, which includes the underlying error.
	Msg string
	Err error
}

func (e *ProcessError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err == nil {
		return "process error"
	}
	return "process error: " + e.Err.Error()
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
