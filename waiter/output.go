package waiter

import (
	"regexp"
	"strings"

	"github.com/guseggert/procwait/process"
)

// Pattern matches a single line of output.
type Pattern interface {
	Match(line string) bool
}

type textPattern string

func (t textPattern) Match(line string) bool { return strings.Contains(line, string(t)) }

func (t textPattern) String() string { return string(t) }

// Text matches lines that contain s.
func Text(s string) Pattern {
	return textPattern(s)
}

type regexpPattern struct{ re *regexp.Regexp }

func (r regexpPattern) Match(line string) bool { return r.re.MatchString(line) }

func (r regexpPattern) String() string { return r.re.String() }

// Regexp matches lines that re matches anywhere.
func Regexp(re *regexp.Regexp) Pattern {
	return regexpPattern{re: re}
}

// MustRegexp compiles expr into a Pattern, panicking if it doesn't compile.
func MustRegexp(expr string) Pattern {
	return Regexp(regexp.MustCompile(expr))
}

// WaitOutput waits for a line of the process's output that matches pattern, and returns the full line.
// Lines are matched one at a time on stdout and stderr, unless disabled with WithStdout or WithStderr.
//
// The wait fails with ErrEndedWithoutMatch if the process exits first, with a *ProcessError if the process reports an
// error first, or with ErrTimeout if WithTimeout is set and elapses first. With WithKillOnTimeout, termination is
// requested before failing, but not awaited.
//
// Any number of waits may be in progress on the same process, and each of them sees every line.
func WaitOutput(p *process.Process, pattern Pattern, opts ...Option) Waiter[string] {
	c := newConfig(opts)
	log := c.logger("wait_output", p).With("Pattern", pattern)
	o := newOutcome[string]()

	watch := func(name string, s *process.LineStream) {
		if o.isSettled() {
			// matched in the history of an earlier stream
			return
		}
		if s == nil {
			log.Debugf("%s is not piped, not watching it", name)
			return
		}
		remove := s.OnLine(func(line string) {
			if pattern.Match(line) {
				o.settle(result[string]{value: line}, func() {
					log.Debugw("found match", "Stream", name, "Line", line)
				})
			}
		})
		o.onSettle(remove)
	}
	if c.stdout {
		watch("stdout", p.Stdout())
	}
	if c.stderr {
		watch("stderr", p.Stderr())
	}

	watchProcess(o, p, c, log,
		func(status process.ExitStatus) {
			o.settle(result[string]{err: ErrEndedWithoutMatch}, func() {
				log.Debugw("process ended without a match", "Status", status.String())
			})
		},
		func(err error) {
			o.settle(result[string]{err: &ProcessError{Msg: "process error", Err: err}}, func() {
				log.Debugw("process errored", "Error", err)
			})
		},
	)
	return o.wait
}
