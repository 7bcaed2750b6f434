package waiter

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/guseggert/procwait/process"
	"go.uber.org/zap"
)

const loggerName = "waiter"

var defaultLogger *zap.SugaredLogger

func init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("error constructing default logger: %s", err))
	}
	defaultLogger = logger.Sugar().Named(loggerName)
}

// Waiter blocks until the outcome of an operation is settled or ctx is done, whichever happens first.
// A done ctx only abandons the wait, the operation itself keeps going. Once settled, every call returns the same outcome.
type Waiter[T any] func(ctx context.Context) (T, error)

type config struct {
	stdout    bool
	stderr    bool
	outPrefix string
	errPrefix string
	out       io.Writer
	err       io.Writer

	timeout       time.Duration
	hasTimeout    bool
	killOnTimeout bool
	signal        os.Signal

	log *zap.SugaredLogger
}

func newConfig(opts []Option) *config {
	c := &config{
		stdout: true,
		stderr: true,
		out:    os.Stdout,
		err:    os.Stderr,
		signal: syscall.SIGTERM,
		log:    defaultLogger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// logger returns the logger for one call, tagged with a fresh id so interleaved calls can be told apart.
func (c *config) logger(name string, p *process.Process) *zap.SugaredLogger {
	return c.log.Named(name).With("WaitID", uuid.NewString(), "PID", p.Pid())
}

// Option configures a single call. Every call starts from the defaults, and options that don't apply to a call are ignored.
type Option func(c *config)

// WithStdout selects whether stdout is echoed or watched. Defaults to true.
func WithStdout(b bool) Option {
	return func(c *config) {
		c.stdout = b
	}
}

// WithStderr selects whether stderr is echoed or watched. Defaults to true.
func WithStderr(b bool) Option {
	return func(c *config) {
		c.stderr = b
	}
}

// WithOutPrefix sets the prefix of each echoed stdout line.
func WithOutPrefix(s string) Option {
	return func(c *config) {
		c.outPrefix = s
	}
}

// WithErrPrefix sets the prefix of each echoed stderr line.
func WithErrPrefix(s string) Option {
	return func(c *config) {
		c.errPrefix = s
	}
}

// WithOutput sets the destinations of echoed lines. Defaults to os.Stdout and os.Stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *config) {
		c.out = stdout
		c.err = stderr
	}
}

// WithTimeout fails the wait with ErrTimeout if nothing else settles it within d.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
		c.hasTimeout = true
	}
}

// WithKillOnTimeout requests termination of the process before failing with ErrTimeout. Defaults to false.
func WithKillOnTimeout(b bool) Option {
	return func(c *config) {
		c.killOnTimeout = b
	}
}

// WithSignal sets the signal used to request termination. Defaults to SIGTERM.
func WithSignal(sig os.Signal) Option {
	return func(c *config) {
		c.signal = sig
	}
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *config) {
		c.log = l
	}
}

type result[T any] struct {
	value T
	err   error
}

// outcome is settled exactly once, by whichever of its competing sources gets there first.
type outcome[T any] struct {
	once sync.Once
	done chan struct{}
	res  result[T]

	m        sync.Mutex
	settled  bool
	cleanups []func()
}

func newOutcome[T any]() *outcome[T] {
	return &outcome[T]{done: make(chan struct{})}
}

func (o *outcome[T]) resolve(v T) {
	o.settle(result[T]{value: v}, nil)
}

func (o *outcome[T]) reject(err error) {
	o.settle(result[T]{err: err}, nil)
}

// settle records res if nothing settled o before. first runs only when this call is the one that settles o.
func (o *outcome[T]) settle(res result[T], first func()) {
	o.once.Do(func() {
		if first != nil {
			first()
		}
		o.res = res
		close(o.done)

		o.m.Lock()
		o.settled = true
		cleanups := o.cleanups
		o.cleanups = nil
		o.m.Unlock()

		for _, f := range cleanups {
			f()
		}
	})
}

// onSettle registers f to release a signal source once the outcome is settled, or runs it now if it already is.
func (o *outcome[T]) onSettle(f func()) {
	o.m.Lock()
	if !o.settled {
		o.cleanups = append(o.cleanups, f)
		o.m.Unlock()
		return
	}
	o.m.Unlock()
	f()
}

func (o *outcome[T]) isSettled() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

func (o *outcome[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-o.done:
		return o.res.value, o.res.err
	default:
	}
	select {
	case <-o.done:
		return o.res.value, o.res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// watchProcess settles o from the process's error and exit notifications and from the timer, if one is configured.
// The watching goroutine exits once o is settled.
func watchProcess[T any](o *outcome[T], p *process.Process, c *config, log *zap.SugaredLogger, onExit func(process.ExitStatus), onError func(error)) {
	var timeout <-chan time.Time
	if c.hasTimeout {
		timer := time.NewTimer(c.timeout)
		o.onSettle(func() { timer.Stop() })
		timeout = timer.C
	}

	go func() {
		select {
		case <-o.done:
		case <-p.Errored():
			onError(p.Err())
		case <-p.Exited():
			// an error is always signaled before the exit it accompanies
			if err := p.Err(); err != nil {
				onError(err)
				return
			}
			status, _ := p.ExitStatus()
			onExit(status)
		case <-timeout:
			o.settle(result[T]{err: ErrTimeout}, func() {
				log.Debugw("timed out", "Timeout", c.timeout, "Kill", c.killOnTimeout)
				if !c.killOnTimeout {
					return
				}
				if _, err := p.Kill(c.signal); err != nil {
					log.Debugw("requesting termination failed", "Signal", c.signal, "Error", err)
				}
			})
		}
	}()
}
