package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const loggerName = "process"

var defaultLogger *zap.SugaredLogger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("error constructing default logger: %s", err))
	}
	defaultLogger = logger.Sugar().Named(loggerName)
}

// Process is a handle to a child process.
//
// Everything that happens to the process is observable through channels that are closed exactly once and stay closed,
// so an observer that attaches after the fact still sees what already happened.
type Process struct {
	log *zap.SugaredLogger
	req StartProcRequest
	cmd *exec.Cmd

	stdout *LineStream
	stderr *LineStream
	files  []*os.File

	startOnce sync.Once

	m      sync.Mutex
	status *ExitStatus
	killed bool
	err    error

	errOnce sync.Once
	errored chan struct{}
	exited  chan struct{}
}

type Option func(p *Process)

func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Process) {
		p.log = l
	}
}

// Spawn starts the requested process, see New and Start.
// Listeners attached after Spawn returns receive output emitted earlier only as far as each stream's history reaches;
// use New and Start to attach before the process emits anything.
func Spawn(req StartProcRequest, opts ...Option) *Process {
	p := New(req, opts...)
	p.Start()
	return p
}

// New prepares the requested process without starting it, so that observers can attach before it emits anything.
func New(req StartProcRequest, opts ...Option) *Process {
	p := &Process{
		log:     defaultLogger,
		req:     req,
		errored: make(chan struct{}),
		exited:  make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}

	cmd := exec.Command(req.Command, req.Args...)
	cmd.Dir = req.WD
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	cmd.Stdin = req.Stdin
	cmd.WaitDelay = req.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}
	p.cmd = cmd

	if req.Stdout.piped() {
		p.stdout = newLineStream()
	}
	if req.Stderr.piped() {
		p.stderr = newLineStream()
	}
	return p
}

// Start starts the process. Start never fails synchronously: if the process can't be started, the error is delivered
// through Errored() and Err(), and Exited() is never closed. Calls after the first do nothing.
func (p *Process) Start() {
	p.startOnce.Do(p.start)
}

func (p *Process) start() {
	var err error
	p.cmd.Stdout, err = p.openOutput(p.req.Stdout, p.stdout, os.Stdout)
	if err != nil {
		p.abort(fmt.Errorf("opening stdout: %w", err))
		return
	}
	p.cmd.Stderr, err = p.openOutput(p.req.Stderr, p.stderr, os.Stderr)
	if err != nil {
		p.abort(fmt.Errorf("opening stderr: %w", err))
		return
	}

	// Kill reads cmd.Process, which Start sets
	p.m.Lock()
	err = p.cmd.Start()
	p.m.Unlock()
	if err != nil {
		p.abort(fmt.Errorf("starting process: %w", err))
		return
	}
	p.log.Debugw("process started", "PID", p.cmd.Process.Pid, "Command", p.req.Command, "Args", p.req.Args)

	go p.wait()
}

func (p *Process) openOutput(fd OutputFD, stream *LineStream, parent *os.File) (io.Writer, error) {
	switch {
	case fd.Discard:
		// a nil writer is connected to the null device
		return nil, nil
	case fd.Inherit:
		return parent, nil
	case fd.File != "":
		f, err := os.Create(fd.File)
		if err != nil {
			return nil, err
		}
		p.files = append(p.files, f)
		return f, nil
	}
	return stream, nil
}

// abort cleans up after a process that never started.
func (p *Process) abort(err error) {
	p.closeOutputs()
	p.fail(err)
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.closeOutputs()

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay) {
		p.fail(fmt.Errorf("waiting for process: %w", err))
	}

	ps := p.cmd.ProcessState
	if ps == nil {
		// the process was never reaped, so there's no exit to report
		return
	}
	status := exitStatus(ps)

	p.m.Lock()
	p.status = &status
	p.m.Unlock()

	p.log.Debugw("process exited", "PID", p.cmd.Process.Pid, "Status", status.String())
	close(p.exited)
}

func exitStatus(ps *os.ProcessState) ExitStatus {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		name := unix.SignalName(ws.Signal())
		if name == "" {
			name = ws.Signal().String()
		}
		return ExitStatus{Code: -1, Signal: name}
	}
	return ExitStatus{Code: ps.ExitCode()}
}

func (p *Process) closeOutputs() {
	if p.stdout != nil {
		p.stdout.Close()
	}
	if p.stderr != nil {
		p.stderr.Close()
	}
	for _, f := range p.files {
		if err := f.Close(); err != nil {
			p.log.Debugf("error closing output file: %s", err)
		}
	}
}

// fail records the first operational error of the process.
func (p *Process) fail(err error) {
	p.errOnce.Do(func() {
		p.m.Lock()
		p.err = err
		p.m.Unlock()
		p.log.Debugw("process error", "Error", err)
		close(p.errored)
	})
}

// Stdout returns the line stream of the process's stdout, or nil if stdout isn't piped.
func (p *Process) Stdout() *LineStream {
	return p.stdout
}

// Stderr returns the line stream of the process's stderr, or nil if stderr isn't piped.
func (p *Process) Stderr() *LineStream {
	return p.stderr
}

// Exited is closed once the process has exited and all of its piped output has been delivered.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// ExitStatus returns how the process exited. The bool is false while the process hasn't exited.
func (p *Process) ExitStatus() (ExitStatus, bool) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.status == nil {
		return ExitStatus{}, false
	}
	return *p.status, true
}

// Errored is closed when the process reports its first operational error, a failure to start or to wait for the process.
// When a process both errors and exits, Errored is closed first.
func (p *Process) Errored() <-chan struct{} {
	return p.errored
}

// Err returns the first operational error of the process, if any.
func (p *Process) Err() error {
	p.m.Lock()
	defer p.m.Unlock()
	return p.err
}

// Kill sends sig to the process, SIGTERM if sig is nil.
// It returns true and marks the process as killed if the signal was delivered.
// It returns false and no error if the process isn't running, including when it hasn't been started.
// Delivery failures are returned to the caller and don't affect Errored().
func (p *Process) Kill(sig os.Signal) (bool, error) {
	if sig == nil {
		sig = syscall.SIGTERM
	}

	p.m.Lock()
	if p.cmd.Process == nil || p.status != nil {
		p.m.Unlock()
		return false, nil
	}
	err := p.cmd.Process.Signal(sig)
	if err == nil {
		p.killed = true
	}
	p.m.Unlock()

	if errors.Is(err, os.ErrProcessDone) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sending %s: %w", sig, err)
	}
	p.log.Debugw("sent signal", "PID", p.Pid(), "Signal", sig.String())
	return true, nil
}

// Killed reports whether a signal was successfully delivered to the process by Kill.
func (p *Process) Killed() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.killed
}

// Pid returns the OS process id, or -1 if the process hasn't started.
func (p *Process) Pid() int {
	p.m.Lock()
	defer p.m.Unlock()
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

func (p *Process) String() string {
	return fmt.Sprintf("process pid=%d command=%q", p.Pid(), p.req.Command)
}
