package waiter

import (
	"github.com/guseggert/procwait/process"
)

// WaitExit waits for the process to terminate and returns how it terminated.
//
// The wait fails with a *ProcessError if the process reports an error first, or with ErrTimeout if WithTimeout is set and
// elapses first. With WithKillOnTimeout, termination is requested before failing, but not awaited.
// A process that already exited is reported as such.
func WaitExit(p *process.Process, opts ...Option) Waiter[process.ExitStatus] {
	c := newConfig(opts)
	log := c.logger("wait_exit", p)
	o := newOutcome[process.ExitStatus]()

	watchProcess(o, p, c, log,
		func(status process.ExitStatus) {
			log.Debugw("process exited", "Status", status.String())
			o.resolve(status)
		},
		func(err error) {
			log.Debugw("process errored", "Error", err)
			o.reject(&ProcessError{Err: err})
		},
	)
	return o.wait
}
