package process

import (
	"fmt"
	"io"
	"time"
)

// OutputFD configures where a child's output stream goes.
// When all fields are zero, the stream is piped to the parent and exposed as a LineStream.
// Otherwise the stream is absent from the Process.
type OutputFD struct {
	// Inherit writes the stream directly to the parent's corresponding stream.
	Inherit bool
	// File writes the stream to the file at this path, truncating it.
	File string
	// Discard sends the stream to the null device.
	Discard bool
}

func (o OutputFD) piped() bool {
	return !o.Inherit && o.File == "" && !o.Discard
}

type StartProcRequest struct {
	Command string
	Args    []string
	// Env is appended to the parent's environment.
	Env []string
	WD  string

	Stdin  io.Reader
	Stdout OutputFD
	Stderr OutputFD

	// WaitDelay bounds how long the exit notification waits for output pipes to close after the process exits,
	// which matters when the child leaves behind descendants that hold them open.
	// Zero means DefaultWaitDelay.
	WaitDelay time.Duration
}

// DefaultWaitDelay is the WaitDelay used when a StartProcRequest doesn't set one.
const DefaultWaitDelay = time.Second

// ExitStatus is how a process terminated.
// Exactly one of the two is meaningful: if Signal is set the process was terminated by that signal and Code is -1,
// otherwise Code is the exit code.
type ExitStatus struct {
	Code   int
	Signal string
}

// Signaled reports whether the process was terminated by a signal.
func (s ExitStatus) Signaled() bool {
	return s.Signal != ""
}

func (s ExitStatus) String() string {
	if s.Signaled() {
		return "signal " + s.Signal
	}
	return fmt.Sprintf("exit code %d", s.Code)
}
