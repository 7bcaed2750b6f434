package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/guseggert/procwait/process"
	"github.com/guseggert/procwait/waiter"
	"go.uber.org/zap"
)

// killTimeout bounds how long an interrupted run waits for the command to terminate.
const killTimeout = 5 * time.Second

type runConfig struct {
	command string
	args    []string

	echo      bool
	outPrefix string
	errPrefix string

	waitFor       string
	waitForRegexp string
	timeout       time.Duration
	killOnTimeout bool
	killAfter     bool

	stdout io.Writer
	stderr io.Writer
	log    *zap.SugaredLogger
}

func (c runConfig) pattern() (waiter.Pattern, error) {
	switch {
	case c.waitFor != "" && c.waitForRegexp != "":
		return nil, errors.New("only one of --wait-for and --wait-for-regexp may be given")
	case c.killAfter && c.waitFor == "" && c.waitForRegexp == "":
		return nil, errors.New("--kill-after-match requires --wait-for or --wait-for-regexp")
	case c.waitFor != "":
		return waiter.Text(c.waitFor), nil
	case c.waitForRegexp != "":
		re, err := regexp.Compile(c.waitForRegexp)
		if err != nil {
			return nil, fmt.Errorf("compiling --wait-for-regexp: %w", err)
		}
		return waiter.Regexp(re), nil
	}
	return nil, nil
}

// run starts the command and drives it according to c, returning the exit code the tool should exit with.
func run(ctx context.Context, c runConfig) (int, error) {
	pattern, err := c.pattern()
	if err != nil {
		return 1, err
	}

	p := process.New(process.StartProcRequest{
		Command: c.command,
		Args:    c.args,
	}, process.WithLogger(c.log.Named("process")))

	opts := []waiter.Option{
		waiter.WithLogger(c.log),
		waiter.WithOutput(c.stdout, c.stderr),
		waiter.WithOutPrefix(c.outPrefix),
		waiter.WithErrPrefix(c.errPrefix),
	}
	// the deadline applies to the first wait only, which is the match when there is a pattern
	deadline := opts
	if c.timeout > 0 {
		deadline = append(deadline[:len(deadline):len(deadline)],
			waiter.WithTimeout(c.timeout),
			waiter.WithKillOnTimeout(c.killOnTimeout),
		)
	}

	defer func() {
		if ctx.Err() == nil {
			return
		}
		killCtx, cancel := context.WithTimeout(context.Background(), killTimeout)
		defer cancel()
		status, err := waiter.Kill(p, opts...)(killCtx)
		c.log.Debugw("terminated command after interrupt", "Status", status.String(), "Error", err)
	}()

	// attach everything before the process can emit anything
	if c.echo {
		waiter.Echo(p, opts...)
	}
	var match waiter.Waiter[string]
	if pattern != nil {
		match = waiter.WaitOutput(p, pattern, deadline...)
	}
	p.Start()

	if match == nil {
		return waitExit(ctx, c, p, deadline)
	}
	line, err := match(ctx)
	if err != nil {
		return 1, fmt.Errorf("waiting for output: %w", err)
	}
	fmt.Fprintln(c.stdout, line)

	if !c.killAfter {
		return waitExit(ctx, c, p, opts)
	}
	status, err := waiter.Kill(p, opts...)(ctx)
	if err != nil {
		return 1, fmt.Errorf("killing process: %w", err)
	}
	c.log.Infow("process terminated", "Status", status.String())
	return 0, nil
}

func waitExit(ctx context.Context, c runConfig, p *process.Process, opts []waiter.Option) (int, error) {
	status, err := waiter.WaitExit(p, opts...)(ctx)
	if err != nil {
		return 1, fmt.Errorf("waiting for exit: %w", err)
	}
	c.log.Debugw("process exited", "Status", status.String())
	if status.Signaled() {
		return 1, nil
	}
	return status.Code, nil
}
