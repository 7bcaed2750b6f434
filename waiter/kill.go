package waiter

import (
	"github.com/guseggert/procwait/process"
)

// Kill requests termination of the process with the configured signal and waits until termination is observed.
// The result is the exit code if the process exited on its own, or the terminating signal.
//
// If the process already exited, Kill settles immediately with the recorded status and sends nothing.
// A process that was already signaled but hasn't exited yet is waited for like any other.
// The wait fails with a *ProcessError if the signal can't be delivered or the process reports an error.
func Kill(p *process.Process, opts ...Option) Waiter[process.ExitStatus] {
	c := newConfig(opts)
	log := c.logger("kill", p)
	o := newOutcome[process.ExitStatus]()

	if status, ok := p.ExitStatus(); ok {
		log.Debugw("process already exited", "Status", status.String())
		o.resolve(status)
		return o.wait
	}

	// timeouts don't apply, termination is confirmed or the process errors
	c.hasTimeout = false
	watchProcess(o, p, c, log,
		func(status process.ExitStatus) {
			log.Debugw("termination confirmed", "Status", status.String())
			o.resolve(status)
		},
		func(err error) {
			log.Debugw("process errored", "Error", err)
			o.reject(&ProcessError{Err: err})
		},
	)

	sent, err := p.Kill(c.signal)
	if err != nil {
		log.Debugw("requesting termination failed", "Signal", c.signal, "Error", err)
		o.reject(&ProcessError{Err: err})
		return o.wait
	}
	log.Debugw("requested termination", "Signal", c.signal, "Sent", sent)
	return o.wait
}
