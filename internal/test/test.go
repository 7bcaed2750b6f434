package test

import (
	"bytes"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/guseggert/procwait/process"
)

// reapTimeout is how long cleanup waits for a killed process to go away.
const reapTimeout = 10 * time.Second

// Shell starts "sh -c script" with piped stdout and stderr.
// The process is killed and reaped when the test finishes, so no test leaves a child behind.
func Shell(t *testing.T, script string) *process.Process {
	t.Helper()
	return Spawn(t, process.StartProcRequest{
		Command: "sh",
		Args:    []string{"-c", script},
	})
}

// Spawn starts the requested process and reaps it when the test finishes.
func Spawn(t *testing.T, req process.StartProcRequest) *process.Process {
	t.Helper()
	p := New(t, req)
	p.Start()
	return p
}

// New prepares the requested process without starting it. The test must start it, and it's reaped when the test finishes.
func New(t *testing.T, req process.StartProcRequest) *process.Process {
	t.Helper()
	p := process.New(req)
	t.Cleanup(func() { Reap(t, p) })
	return p
}

// NewShell prepares "sh -c script" without starting it, see New.
func NewShell(t *testing.T, script string) *process.Process {
	t.Helper()
	return New(t, process.StartProcRequest{
		Command: "sh",
		Args:    []string{"-c", script},
	})
}

// Reap kills p if it's still running and waits for it to exit or error.
func Reap(t *testing.T, p *process.Process) {
	t.Helper()
	if p.Pid() < 0 && p.Err() == nil {
		// never started
		return
	}
	_, _ = p.Kill(syscall.SIGKILL)
	select {
	case <-p.Exited():
	case <-p.Errored():
	case <-time.After(reapTimeout):
		t.Errorf("timed out reaping %s", p)
	}
}

// Receive fails the test if ch isn't closed within d.
func Receive(t *testing.T, ch <-chan struct{}, d time.Duration) {
	t.Helper()
	select {
	case <-ch:
		return
	default:
	}
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatalf("timed out after %s", d)
	}
}

// LockedBuffer is a bytes.Buffer that is safe for concurrent writers.
type LockedBuffer struct {
	m sync.Mutex
	b bytes.Buffer
}

func (l *LockedBuffer) Write(p []byte) (int, error) {
	l.m.Lock()
	defer l.m.Unlock()
	return l.b.Write(p)
}

func (l *LockedBuffer) String() string {
	l.m.Lock()
	defer l.m.Unlock()
	return l.b.String()
}
